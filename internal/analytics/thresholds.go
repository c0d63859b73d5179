package analytics

import "fmt"

type Thresholds struct {
	MinWinRate      float64 `mapstructure:"min_win_rate" json:"minWinRate"`
	MinProfitFactor float64 `mapstructure:"min_profit_factor" json:"minProfitFactor"`
	MaxDrawdown     float64 `mapstructure:"max_drawdown" json:"maxDrawdown"`
	MinSharpe       float64 `mapstructure:"min_sharpe" json:"minSharpe"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinWinRate: 45, MinProfitFactor: 1.5, MaxDrawdown: 10, MinSharpe: 1.0}
}

// Breach is one metric outside its threshold.
type Breach struct {
	Metric  string  `json:"metric"`
	Value   float64 `json:"value"`
	Limit   float64 `json:"limit"`
	Message string  `json:"message"`
}

func (th Thresholds) Evaluate(m Metrics) []Breach {
	var out []Breach
	if m.WinRate < th.MinWinRate {
		out = append(out, Breach{"win_rate", m.WinRate, th.MinWinRate,
			fmt.Sprintf("win rate %.2f%% is below %.2f%%", m.WinRate, th.MinWinRate)})
	}
	if m.ProfitFactor < th.MinProfitFactor {
		out = append(out, Breach{"profit_factor", m.ProfitFactor, th.MinProfitFactor,
			fmt.Sprintf("profit factor %.2f is below %.2f", m.ProfitFactor, th.MinProfitFactor)})
	}
	if m.MaxDrawdown > th.MaxDrawdown {
		out = append(out, Breach{"max_drawdown", m.MaxDrawdown, th.MaxDrawdown,
			fmt.Sprintf("max drawdown %.2f%% exceeds %.2f%%", m.MaxDrawdown, th.MaxDrawdown)})
	}
	if m.SharpeRatio < th.MinSharpe {
		out = append(out, Breach{"sharpe_ratio", m.SharpeRatio, th.MinSharpe,
			fmt.Sprintf("sharpe ratio %.2f is below %.2f", m.SharpeRatio, th.MinSharpe)})
	}
	return out
}

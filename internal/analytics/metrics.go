// Package analytics derives performance metrics from closed trades.
package analytics

import (
	"math"
	"sort"

	"propdesk/internal/models"
)

const tradingDaysPerYear = 252

type Metrics struct {
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	WinRate       float64 `json:"winRate"`
	AverageWin    float64 `json:"averageWin"`
	AverageLoss   float64 `json:"averageLoss"`
	ProfitFactor  float64 `json:"profitFactor"`
	TotalProfit   float64 `json:"totalProfit"`
	TotalReturn   float64 `json:"totalReturn"`
	MaxDrawdown   float64 `json:"maxDrawdown"`
	SharpeRatio   float64 `json:"sharpeRatio"`

	// SortinoRatio is always 0 with SortinoComputed false: downside deviation
	// is not tracked.
	SortinoRatio    float64 `json:"sortinoRatio"`
	SortinoComputed bool    `json:"sortinoComputed"`
}

// ClosedByExit returns the closed trades of in ordered by exit time, oldest
// first. The input is not modified.
func ClosedByExit(in []models.Trade) []models.Trade {
	out := make([]models.Trade, 0, len(in))
	for _, t := range in {
		if t.Status == models.TradeClosed {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return exitTime(out[i]).Before(exitTime(out[j]))
	})
	return out
}

// Compute derives the metrics of an account whose starting balance is
// initialBalance. Only closed trades count.
func Compute(initialBalance float64, trades []models.Trade) Metrics {
	closed := ClosedByExit(trades)
	m := Metrics{TotalTrades: len(closed)}
	if len(closed) == 0 {
		return m
	}

	var sumWin, sumLoss float64
	returns := make([]float64, 0, len(closed))
	for _, t := range closed {
		p := t.ProfitValue()
		m.TotalProfit += p
		switch {
		case p > 0:
			m.WinningTrades++
			sumWin += p
		case p < 0:
			m.LosingTrades++
			sumLoss += -p
		}
		returns = append(returns, t.ProfitPercentValue()/100)
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	if m.WinningTrades > 0 {
		m.AverageWin = sumWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = sumLoss / float64(m.LosingTrades)
	}
	if m.AverageLoss > 0 {
		m.ProfitFactor = m.AverageWin / m.AverageLoss
	}
	if initialBalance > 0 {
		m.TotalReturn = m.TotalProfit / initialBalance * 100
	}
	m.MaxDrawdown = MaxDrawdown(initialBalance, closed)
	m.SharpeRatio = Sharpe(returns)
	return finite(m)
}

// MaxDrawdown walks closed trades in the given order from initialBalance and
// returns the largest peak-to-trough decline in percent, within [0, 100].
func MaxDrawdown(initialBalance float64, closed []models.Trade) float64 {
	equity := initialBalance
	peak := initialBalance
	var maxDD float64
	for _, t := range closed {
		equity += t.ProfitValue()
		if equity > peak {
			peak = equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - equity) / peak * 100; dd > maxDD {
			maxDD = dd
		}
	}
	return clamp(maxDD, 0, 100)
}

// Sharpe is the annualized mean over population standard deviation of
// per-trade returns, 0 when undefined.
func Sharpe(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	sd := math.Sqrt(variance)
	if sd <= 0 {
		return 0
	}
	s := mean / sd * math.Sqrt(tradingDaysPerYear)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return s
}

func finite(m Metrics) Metrics {
	fix := func(v *float64) {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
		}
	}
	fix(&m.WinRate)
	fix(&m.AverageWin)
	fix(&m.AverageLoss)
	fix(&m.ProfitFactor)
	fix(&m.TotalProfit)
	fix(&m.TotalReturn)
	fix(&m.MaxDrawdown)
	fix(&m.SharpeRatio)
	return m
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

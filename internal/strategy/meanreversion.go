package strategy

import (
	"math"

	"propdesk/internal/marketdata"
	"propdesk/internal/models"
)

// MeanReversion fades moves outside the Bollinger bands and targets the
// middle band.
type MeanReversion struct{}

func (MeanReversion) Type() models.StrategyType { return models.StrategyMeanReversion }

func (MeanReversion) DefaultParams() Params {
	return Params{
		"bb_period":      20,
		"bb_std_dev":     2,
		"min_confidence": 0.65,
		"stop_loss_pips": 40,
	}
}

func (MeanReversion) MinBars(p Params) int {
	return p.Int("bb_period", 20) + 10
}

func (e MeanReversion) Evaluate(symbol string, series []marketdata.OHLC, p Params) Signal {
	out := hold(e.Type(), symbol)
	if len(series) < e.MinBars(p) {
		return out
	}
	closes := marketdata.Closes(series)
	mid, upper, lower := Bollinger(closes, p.Int("bb_period", 20), p.Float("bb_std_dev", 2))
	if mid == nil {
		return out
	}
	n := len(closes)
	price := closes[n-1]
	m, u, l := mid[n-1], upper[n-1], lower[n-1]
	width := u - l
	if width <= 0 {
		return out
	}
	dev := (price - m) / width

	switch {
	case price <= l:
		out.Action = ActionBuy
	case price >= u:
		out.Action = ActionSell
	default:
		return out
	}
	conf := math.Min(0.9, 0.65+math.Abs(dev)*0.5)
	if conf < p.Float("min_confidence", 0.65) {
		return hold(e.Type(), symbol)
	}

	pip := p.Float("pip_size", DefaultPipSize)
	sl := p.Float("stop_loss_pips", 40) * pip
	out.Confidence = conf
	out.Timestamp = series[n-1].Timestamp
	out.EntryPrice = price
	out.TakeProfit = m
	if out.Action == ActionBuy {
		out.StopLoss = price - sl
	} else {
		out.StopLoss = price + sl
	}
	out.RiskReward = riskReward(out.EntryPrice, out.StopLoss, out.TakeProfit)
	out.Indicators = map[string]float64{
		"upper_band":  u,
		"middle_band": m,
		"lower_band":  l,
		"deviation":   dev,
	}
	return out
}

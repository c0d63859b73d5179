package strategy

import (
	"math"

	"propdesk/internal/marketdata"
	"propdesk/internal/models"
)

// Scalping trades RSI extremes with tight targets.
type Scalping struct{}

func (Scalping) Type() models.StrategyType { return models.StrategyScalping }

func (Scalping) DefaultParams() Params {
	return Params{
		"rsi_period":       14,
		"rsi_overbought":   70,
		"rsi_oversold":     30,
		"min_confidence":   0.7,
		"take_profit_pips": 5,
		"stop_loss_pips":   10,
	}
}

func (Scalping) MinBars(p Params) int {
	return p.Int("rsi_period", 14) + 10
}

func (e Scalping) Evaluate(symbol string, series []marketdata.OHLC, p Params) Signal {
	out := hold(e.Type(), symbol)
	if len(series) < e.MinBars(p) {
		return out
	}
	closes := marketdata.Closes(series)
	rsi := RSI(closes, p.Int("rsi_period", 14))
	if rsi == nil {
		return out
	}
	n := len(closes)
	cur, prev := rsi[n-1], rsi[n-2]
	if math.IsNaN(prev) {
		prev = cur
	}
	ob, os := p.Float("rsi_overbought", 70), p.Float("rsi_oversold", 30)

	var conf float64
	switch {
	case cur <= os:
		out.Action = ActionBuy
		conf = math.Min(0.95, 0.7+(os-cur)/100)
	case cur >= ob:
		out.Action = ActionSell
		conf = math.Min(0.95, 0.7+(cur-ob)/100)
	case prev <= os && cur > os:
		out.Action = ActionBuy
		conf = 0.85
	case prev >= ob && cur < ob:
		out.Action = ActionSell
		conf = 0.85
	default:
		return out
	}
	if conf < p.Float("min_confidence", 0.7) {
		return hold(e.Type(), symbol)
	}
	price := closes[n-1]
	out.Confidence = conf
	out.Timestamp = series[n-1].Timestamp
	out.Indicators = map[string]float64{"rsi": cur, "rsi_overbought": ob, "rsi_oversold": os}
	out = withTargets(out, price, p.Float("take_profit_pips", 5), p.Float("stop_loss_pips", 10), p.Float("pip_size", DefaultPipSize))
	out.RiskReward = riskReward(out.EntryPrice, out.StopLoss, out.TakeProfit)
	return out
}

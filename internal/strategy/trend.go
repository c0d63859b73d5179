package strategy

import (
	"math"

	"propdesk/internal/marketdata"
	"propdesk/internal/models"
)

// TrendFollowing trades moving-average crossovers and continuations.
type TrendFollowing struct{}

func (TrendFollowing) Type() models.StrategyType { return models.StrategyTrendFollowing }

func (TrendFollowing) DefaultParams() Params {
	return Params{
		"ma_short":         20,
		"ma_long":          50,
		"min_confidence":   0.6,
		"take_profit_pips": 50,
		"stop_loss_pips":   30,
	}
}

func (TrendFollowing) MinBars(p Params) int {
	return p.Int("ma_long", 50) + 10
}

func (e TrendFollowing) Evaluate(symbol string, series []marketdata.OHLC, p Params) Signal {
	out := hold(e.Type(), symbol)
	if len(series) < e.MinBars(p) {
		return out
	}
	closes := marketdata.Closes(series)
	short := SMA(closes, p.Int("ma_short", 20))
	long := SMA(closes, p.Int("ma_long", 50))
	if short == nil || long == nil {
		return out
	}
	n := len(closes)
	price := closes[n-1]
	s, l := short[n-1], long[n-1]
	sPrev, lPrev := short[n-2], long[n-2]
	if math.IsNaN(sPrev) || math.IsNaN(lPrev) || l == 0 || s == 0 {
		return out
	}

	var conf float64
	switch {
	case sPrev <= lPrev && s > l:
		out.Action = ActionBuy
		conf = math.Min(0.9, 0.6+(s-l)/l*10)
	case sPrev >= lPrev && s < l:
		out.Action = ActionSell
		conf = math.Min(0.9, 0.6+(l-s)/l*10)
	case s > l && price > s:
		out.Action = ActionBuy
		conf = math.Min(0.8, 0.5+(price-s)/s*5)
	case s < l && price < s:
		out.Action = ActionSell
		conf = math.Min(0.8, 0.5+(s-price)/s*5)
	default:
		return out
	}
	if conf < p.Float("min_confidence", 0.6) {
		return hold(e.Type(), symbol)
	}
	out.Confidence = conf
	out.Timestamp = series[n-1].Timestamp
	out.Indicators = map[string]float64{"ma_short": s, "ma_long": l, "current_price": price}
	out = withTargets(out, price, p.Float("take_profit_pips", 50), p.Float("stop_loss_pips", 30), p.Float("pip_size", DefaultPipSize))
	out.RiskReward = riskReward(out.EntryPrice, out.StopLoss, out.TakeProfit)
	return out
}

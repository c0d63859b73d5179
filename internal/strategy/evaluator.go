// Package strategy turns OHLC series into trade signals and drives them
// through risk validation, the trade ledger and the execution gateway.
package strategy

import (
	"sort"
	"time"

	"propdesk/internal/marketdata"
	"propdesk/internal/models"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// DefaultPipSize converts pip distances into price offsets.
const DefaultPipSize = 0.0001

type Signal struct {
	Strategy   models.StrategyType `json:"strategyType"`
	Symbol     string              `json:"symbol"`
	Action     Action              `json:"action"`
	Confidence float64             `json:"confidence"`
	EntryPrice float64             `json:"entryPrice"`
	StopLoss   float64             `json:"stopLoss"`
	TakeProfit float64             `json:"takeProfit"`
	RiskReward float64             `json:"riskReward"`
	Indicators map[string]float64  `json:"indicators"`
	Timestamp  time.Time           `json:"timestamp"`
}

func (s Signal) Actionable() bool {
	return s.Action == ActionBuy || s.Action == ActionSell
}

func (s Signal) Side() models.TradeSide {
	if s.Action == ActionSell {
		return models.SideSell
	}
	return models.SideBuy
}

// Evaluator is a pure decision rule over a close series.
type Evaluator interface {
	Type() models.StrategyType
	DefaultParams() Params
	// MinBars is the shortest series Evaluate will act on.
	MinBars(p Params) int
	Evaluate(symbol string, series []marketdata.OHLC, p Params) Signal
}

type Registry struct {
	byType map[models.StrategyType]Evaluator
}

func NewRegistry(evs ...Evaluator) *Registry {
	r := &Registry{byType: map[models.StrategyType]Evaluator{}}
	for _, ev := range evs {
		if ev != nil {
			r.byType[ev.Type()] = ev
		}
	}
	return r
}

// DefaultRegistry holds the three built-in evaluators.
func DefaultRegistry() *Registry {
	return NewRegistry(TrendFollowing{}, MeanReversion{}, Scalping{})
}

func (r *Registry) Get(t models.StrategyType) (Evaluator, bool) {
	if r == nil {
		return nil, false
	}
	ev, ok := r.byType[t]
	return ev, ok
}

func (r *Registry) Types() []models.StrategyType {
	out := make([]models.StrategyType, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func hold(t models.StrategyType, symbol string) Signal {
	return Signal{Strategy: t, Symbol: symbol, Action: ActionHold}
}

// withTargets fills entry and pip-based stops for an actionable signal.
func withTargets(s Signal, price, tpPips, slPips, pip float64) Signal {
	sign := 1.0
	if s.Action == ActionSell {
		sign = -1
	}
	s.EntryPrice = price
	s.TakeProfit = price + sign*tpPips*pip
	s.StopLoss = price - sign*slPips*pip
	return s
}

func riskReward(entry, sl, tp float64) float64 {
	den := entry - sl
	if den < 0 {
		den = -den
	}
	if den == 0 {
		return 0
	}
	num := tp - entry
	if num < 0 {
		num = -num
	}
	return num / den
}

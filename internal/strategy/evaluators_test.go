package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdesk/internal/marketdata"
	"propdesk/internal/models"
)

func bars(closes ...float64) []marketdata.OHLC {
	start := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	out := make([]marketdata.OHLC, len(closes))
	for i, c := range closes {
		out[i] = marketdata.OHLC{Open: c, High: c, Low: c, Close: c, Timestamp: start.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func ramp(from, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

func TestTrendFollowingCrossover(t *testing.T) {
	ev := TrendFollowing{}
	p := ev.DefaultParams()
	p["ma_short"], p["ma_long"] = 2, 4

	up := append(ramp(20, -1, 13), 30)
	sig := ev.Evaluate("EURUSD", bars(up...), p)
	require.Equal(t, ActionBuy, sig.Action)
	assert.InDelta(t, 0.9, sig.Confidence, 1e-9)
	assert.InDelta(t, 30.005, sig.TakeProfit, 1e-9)
	assert.InDelta(t, 29.997, sig.StopLoss, 1e-9)
	assert.InDelta(t, 50.0/30.0, sig.RiskReward, 1e-6)
	assert.Equal(t, models.StrategyTrendFollowing, sig.Strategy)
	assert.Contains(t, sig.Indicators, "ma_short")

	down := append(ramp(8, 1, 13), 0)
	sig = ev.Evaluate("EURUSD", bars(down...), p)
	require.Equal(t, ActionSell, sig.Action)
	assert.Greater(t, sig.StopLoss, sig.EntryPrice)
	assert.Less(t, sig.TakeProfit, sig.EntryPrice)
}

func TestTrendFollowingContinuation(t *testing.T) {
	ev := TrendFollowing{}
	p := ev.DefaultParams()
	p["ma_short"], p["ma_long"] = 2, 4

	sig := ev.Evaluate("EURUSD", bars(ramp(1, 1, 20)...), p)
	require.Equal(t, ActionBuy, sig.Action)
	assert.InDelta(t, 0.5+0.5/19.5*5, sig.Confidence, 1e-9)

	p["min_confidence"] = 0.7
	sig = ev.Evaluate("EURUSD", bars(ramp(1, 1, 20)...), p)
	assert.Equal(t, ActionHold, sig.Action)
}

func TestTrendFollowingHolds(t *testing.T) {
	ev := TrendFollowing{}
	p := ev.DefaultParams()
	flat := make([]float64, 60)
	for i := range flat {
		flat[i] = 2
	}
	assert.Equal(t, ActionHold, ev.Evaluate("EURUSD", bars(flat...), p).Action)
	assert.Equal(t, ActionHold, ev.Evaluate("EURUSD", bars(flat[:59]...), p).Action, "needs ma_long+10 bars")
}

func TestMeanReversion(t *testing.T) {
	ev := MeanReversion{}
	p := ev.DefaultParams()
	p["bb_period"], p["bb_std_dev"] = 5, 1.5

	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 10
	}
	closes[14] = 9
	sig := ev.Evaluate("EURUSD", bars(closes...), p)
	require.Equal(t, ActionBuy, sig.Action)
	assert.InDelta(t, 0.9, sig.Confidence, 1e-9)
	assert.InDelta(t, 9.8, sig.TakeProfit, 1e-9)
	assert.InDelta(t, 8.996, sig.StopLoss, 1e-9)

	closes[14] = 11
	sig = ev.Evaluate("EURUSD", bars(closes...), p)
	require.Equal(t, ActionSell, sig.Action)
	assert.InDelta(t, 10.2, sig.TakeProfit, 1e-9)
	assert.InDelta(t, 11.004, sig.StopLoss, 1e-9)

	closes[14] = 10
	assert.Equal(t, ActionHold, ev.Evaluate("EURUSD", bars(closes...), p).Action, "zero width bands")
}

func TestScalping(t *testing.T) {
	ev := Scalping{}
	p := ev.DefaultParams()

	falling := ramp(1.2, -0.0001, 30)
	sig := ev.Evaluate("EURUSD", bars(falling...), p)
	require.Equal(t, ActionBuy, sig.Action)
	assert.InDelta(t, 0.95, sig.Confidence, 1e-9)
	assert.InDelta(t, falling[29]+0.0005, sig.TakeProfit, 1e-12)
	assert.InDelta(t, falling[29]-0.0010, sig.StopLoss, 1e-12)
	assert.InDelta(t, 0.5, sig.RiskReward, 1e-6)

	sig = ev.Evaluate("EURUSD", bars(ramp(1.1, 0.0001, 30)...), p)
	assert.Equal(t, ActionSell, sig.Action)

	cross := append(ramp(100, -1, 30), 100-29+13)
	sig = ev.Evaluate("EURUSD", bars(cross...), p)
	require.Equal(t, ActionBuy, sig.Action)
	assert.InDelta(t, 0.85, sig.Confidence, 1e-9)

	assert.Equal(t, ActionHold, ev.Evaluate("EURUSD", bars(falling[:23]...), p).Action)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Len(t, r.Types(), 3)
	ev, ok := r.Get(models.StrategyScalping)
	require.True(t, ok)
	assert.Equal(t, models.StrategyScalping, ev.Type())
	_, ok = r.Get("ARBITRAGE")
	assert.False(t, ok)
}

func TestMergeParamsLayers(t *testing.T) {
	defaults := map[string]any{
		"trend_following": map[string]any{"ma_short": 10, "enabled": true, "min_confidence": "0.7"},
	}
	p := MergeParams(TrendFollowing{}, defaults, models.StrategyTrendFollowing, []byte(`{"ma_short": 12, "note": "x"}`))
	assert.Equal(t, 12.0, p["ma_short"])
	assert.Equal(t, 50.0, p["ma_long"])
	assert.Equal(t, 0.7, p["min_confidence"])
	assert.NotContains(t, p, "enabled")
	assert.NotContains(t, p, "note")

	p = MergeParams(Scalping{}, nil, models.StrategyScalping, nil)
	assert.Equal(t, 14.0, p["rsi_period"])
}

package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdesk/internal/models"
)

var t0 = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

func closedTrade(id string, profit, pct float64, exitAfter time.Duration) models.Trade {
	exit := t0.Add(exitAfter)
	return models.Trade{
		ID:            id,
		Status:        models.TradeClosed,
		Profit:        &profit,
		ProfitPercent: &pct,
		ExitTime:      &exit,
	}
}

func TestComputeEmpty(t *testing.T) {
	m := Compute(10000, nil)
	assert.Equal(t, Metrics{}, m)
}

func TestComputeCountsAndAverages(t *testing.T) {
	trades := []models.Trade{
		closedTrade("a", 500, 5, time.Hour),
		closedTrade("b", -200, -2, 2*time.Hour),
		closedTrade("c", 100, 1, 3*time.Hour),
		{ID: "open", Status: models.TradeOpen},
	}
	m := Compute(10000, trades)

	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 66.6667, m.WinRate, 1e-3)
	assert.InDelta(t, 300, m.AverageWin, 1e-9)
	assert.InDelta(t, 200, m.AverageLoss, 1e-9)
	assert.InDelta(t, 1.5, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 400, m.TotalProfit, 1e-9)
	assert.InDelta(t, 4, m.TotalReturn, 1e-9)
	// Equity path 10000 -> 10500 -> 10300 -> 10400.
	assert.InDelta(t, 1.9048, m.MaxDrawdown, 1e-4)
	assert.False(t, m.SortinoComputed)
	assert.Zero(t, m.SortinoRatio)
}

func TestMaxDrawdownUsesExitOrder(t *testing.T) {
	// Inserted out of order: the loss happens first by exit time.
	trades := []models.Trade{
		closedTrade("win", 1000, 10, 2*time.Hour),
		closedTrade("loss", -1000, -10, time.Hour),
	}
	m := Compute(10000, trades)
	assert.InDelta(t, 10, m.MaxDrawdown, 1e-9)
}

func TestMaxDrawdownClamped(t *testing.T) {
	trades := []models.Trade{closedTrade("wipe", -15000, -150, time.Hour)}
	assert.Equal(t, 100.0, MaxDrawdown(10000, ClosedByExit(trades)))
}

func TestProfitFactorZeroWithoutLosses(t *testing.T) {
	m := Compute(10000, []models.Trade{closedTrade("a", 50, 0.5, time.Hour)})
	assert.Zero(t, m.ProfitFactor)
	assert.Zero(t, m.SharpeRatio)
}

func TestSharpe(t *testing.T) {
	assert.Zero(t, Sharpe(nil))
	assert.Zero(t, Sharpe([]float64{0.01, 0.01}))

	got := Sharpe([]float64{0.02, -0.01})
	// mean 0.005, population sd 0.015
	assert.InDelta(t, 0.005/0.015*math.Sqrt(252), got, 1e-9)
}

func TestEquityCurve(t *testing.T) {
	acc := models.Account{Balance: 10000, CreatedAt: t0.Add(-24 * time.Hour)}
	points := EquityCurve(acc, []models.Trade{
		closedTrade("b", -200, -2, 2*time.Hour),
		closedTrade("a", 500, 5, time.Hour),
	})
	require.Len(t, points, 3)
	assert.Equal(t, "2024-01-01", points[0].Date)
	assert.Equal(t, 10000.0, points[0].Equity)
	assert.Equal(t, 500.0, points[1].Profit)
	assert.Equal(t, 10500.0, points[1].Equity)
	assert.Equal(t, 10300.0, points[2].Equity)
}

func TestThresholds(t *testing.T) {
	th := DefaultThresholds()
	assert.Empty(t, th.Evaluate(Metrics{WinRate: 60, ProfitFactor: 2, MaxDrawdown: 3, SharpeRatio: 1.2}))

	breaches := th.Evaluate(Metrics{WinRate: 30, ProfitFactor: 1, MaxDrawdown: 12, SharpeRatio: 0.2})
	require.Len(t, breaches, 4)
	assert.Equal(t, "win_rate", breaches[0].Metric)
	assert.Equal(t, "max_drawdown", breaches[2].Metric)
}

package risk

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdesk/internal/apperr"
	"propdesk/internal/config"
	"propdesk/internal/models"
	memrepository "propdesk/internal/repository/memory"
)

func defaultConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionSizePct:     2,
		RiskRewardRatio:        1.5,
		MaxTradesPerDay:        20,
		MaxConcurrentPositions: 5,
		ContractSize:           1,
		DefaultDailyLossPct:    5,
		DefaultMaxDrawdownPct:  10,
		PipSize:                0.0001,
		PipValue:               10,
		MinVolume:              0.01,
		MaxVolume:              10,
	}
}

func TestEvaluate_ReportsEveryFailure(t *testing.T) {
	cfg := defaultConfig()
	cfg.ContractSize = 100000
	st := State{
		Balance:           10000,
		Equity:            8800,
		PeakEquity:        10000,
		DailyRealized:     -600,
		TradesToday:       20,
		OpenPositions:     5,
		DailyLossLimitPct: 5,
		MaxDrawdownPct:    10,
	}
	p := Proposal{Symbol: "EURUSD", Side: models.SideBuy, EntryPrice: 1.1, Volume: 1, StopLoss: 1.099, TakeProfit: 1.101}
	res := Evaluate(st, p, cfg)
	if res.IsValid {
		t.Fatalf("expected invalid result")
	}
	if len(res.Violations) != 5 {
		t.Fatalf("violations=%v want 5", res.Violations)
	}
	if len(res.Checks) != 6 {
		t.Fatalf("checks=%d want 6", len(res.Checks))
	}
	last := res.Checks[5]
	if last.Name != RuleRiskReward || last.Status != StatusWarn {
		t.Fatalf("risk_reward check=%+v want warn", last)
	}
	for _, v := range res.Violations {
		if v.Rule == RuleRiskReward {
			t.Fatalf("risk_reward must not be a violation")
		}
	}
}

func TestEvaluate_PassesWithinLimits(t *testing.T) {
	st := State{Balance: 10000, Equity: 10000, PeakEquity: 10000, DailyLossLimitPct: 5, MaxDrawdownPct: 10}
	p := Proposal{EntryPrice: 1.1, Volume: 1, StopLoss: 1.098, TakeProfit: 1.103}
	res := Evaluate(st, p, defaultConfig())
	if !res.IsValid || len(res.Violations) != 0 {
		t.Fatalf("expected valid, got %+v", res.Violations)
	}
	for _, c := range res.Checks {
		if c.Status != StatusPass {
			t.Fatalf("check %s status=%s want pass", c.Name, c.Status)
		}
	}
}

func TestEvaluate_DrawdownAtLimitPasses(t *testing.T) {
	st := State{Balance: 10000, Equity: 9000, PeakEquity: 10000, DailyLossLimitPct: 5, MaxDrawdownPct: 10}
	res := Evaluate(st, Proposal{EntryPrice: 1, Volume: 1, StopLoss: 0.9, TakeProfit: 1.2}, defaultConfig())
	if !res.IsValid {
		t.Fatalf("drawdown equal to limit must pass: %+v", res.Violations)
	}
}

func TestSuggestVolume(t *testing.T) {
	cfg := defaultConfig()
	cases := []struct {
		name                 string
		balance, entry, stop float64
		want                 float64
	}{
		{"twenty pips", 10000, 1.1, 1.098, 1.0},
		{"zero pips", 10000, 1.1, 1.1, 0.01},
		{"clamped high", 1000000, 1.1, 1.0999, 10},
		{"clamped low", 1000, 1.1, 1.0, 0.01},
	}
	for _, tc := range cases {
		got := SuggestVolume(cfg, tc.balance, tc.entry, tc.stop)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestValidator_LoadsStateFromTrades(t *testing.T) {
	now := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	repo := memrepository.New()
	ctx := context.Background()

	require.NoError(t, repo.InsertAccount(ctx, &models.Account{
		ID: "acc", Balance: 10000, Equity: 9800, FreeMargin: 9800,
		Status: models.AccountTrading, DailyLossLimitPct: 5, MaxDrawdownPct: 10,
	}))
	yesterday := now.Add(-24 * time.Hour)
	earlier := now.Add(-time.Hour)
	win, loss := 500.0, -700.0
	require.NoError(t, repo.InsertTrade(ctx, &models.Trade{
		ID: "t1", AccountID: "acc", Status: models.TradeClosed, Profit: &win,
		ExitTime: &yesterday, CreatedAt: yesterday,
	}))
	require.NoError(t, repo.InsertTrade(ctx, &models.Trade{
		ID: "t2", AccountID: "acc", Status: models.TradeClosed, Profit: &loss,
		ExitTime: &earlier, CreatedAt: earlier,
	}))
	require.NoError(t, repo.InsertTrade(ctx, &models.Trade{
		ID: "t3", AccountID: "acc", Status: models.TradeOpen, CreatedAt: earlier,
	}))

	v := &Validator{Config: defaultConfig(), Repo: repo, Clock: clock}
	st, _, err := v.State(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, 10500.0, st.PeakEquity)
	assert.Equal(t, -700.0, st.DailyRealized)
	assert.Equal(t, 2, st.TradesToday)
	assert.Equal(t, 1, st.OpenPositions)

	res, err := v.Validate(ctx, "acc", Proposal{EntryPrice: 1.1, Volume: 0.1, StopLoss: 1.098, TakeProfit: 1.103})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, RuleDailyLoss, res.Violations[0].Rule)

	snap, err := v.Snapshot(ctx, "acc")
	require.NoError(t, err)
	assert.InDelta(t, 7.0, snap.DailyLossPct, 1e-9)
	assert.InDelta(t, 6.6667, snap.DrawdownPct, 1e-3)
	assert.False(t, snap.Breached())
}

func TestValidator_UnknownAccount(t *testing.T) {
	v := &Validator{Config: defaultConfig(), Repo: memrepository.New()}
	_, err := v.Validate(context.Background(), "missing", Proposal{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSnapshotBreachedMatchesDrawdownRule(t *testing.T) {
	cfg := defaultConfig()
	for _, tc := range []struct {
		name   string
		equity float64
		want   bool
	}{
		{"below limit", 9500, false},
		{"at limit", 9000, false},
		{"over limit", 8990, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			st := State{Balance: 10000, Equity: tc.equity, PeakEquity: 10000, MaxDrawdownPct: 10, DailyLossLimitPct: 100}
			res := Evaluate(st, Proposal{EntryPrice: 1.1, Volume: 0.01, StopLoss: 1.098, TakeProfit: 1.103}, cfg)
			ddViolated := false
			for _, v := range res.Violations {
				if v.Rule == RuleMaxDrawdown {
					ddViolated = true
				}
			}
			snap := Snapshot{DrawdownPct: st.DrawdownPct(), MaxDrawdownPct: st.MaxDrawdownPct}
			assert.Equal(t, tc.want, snap.Breached())
			assert.Equal(t, tc.want, ddViolated)
		})
	}
}

package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/datatypes"

	"propdesk/internal/apperr"
	"propdesk/internal/audit"
	"propdesk/internal/auth"
	"propdesk/internal/config"
	"propdesk/internal/execution"
	"propdesk/internal/keylock"
	"propdesk/internal/ledger"
	"propdesk/internal/marketdata"
	"propdesk/internal/models"
	"propdesk/internal/repository"
	memrepository "propdesk/internal/repository/memory"
	"propdesk/internal/risk"
)

var owner = auth.Identity{UserID: "user-1", Role: models.RoleUser}

type fixedFeed struct {
	series map[string][]marketdata.OHLC
	err    error
}

func (f *fixedFeed) FetchSeries(ctx context.Context, symbol string, lookback int) ([]marketdata.OHLC, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.series[symbol], nil
}

type failingGateway struct{}

func (failingGateway) Place(ctx context.Context, o execution.Order) (execution.Fill, error) {
	return execution.Fill{}, apperr.Unavailable("GATEWAY_UNAVAILABLE", errors.New("bridge down"))
}

func (failingGateway) Close(ctx context.Context, ticket string, price float64) (execution.Fill, error) {
	return execution.Fill{}, apperr.Unavailable("GATEWAY_UNAVAILABLE", errors.New("bridge down"))
}

// gatedGateway parks Place until release is closed, then fills on paper.
type gatedGateway struct {
	paper   *execution.Paper
	entered chan struct{}
	release chan struct{}
}

func (g *gatedGateway) Place(ctx context.Context, o execution.Order) (execution.Fill, error) {
	close(g.entered)
	<-g.release
	return g.paper.Place(ctx, o)
}

func (g *gatedGateway) Close(ctx context.Context, ticket string, price float64) (execution.Fill, error) {
	return g.paper.Close(ctx, ticket, price)
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Write(ctx context.Context, ev audit.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Action)
	}
	return out
}

type engineFixture struct {
	clock   *clockwork.FakeClock
	repo    *memrepository.Store
	trades  *ledger.TradeLedger
	sink    *recordingSink
	engine  *Engine
	account *models.Account
	last    float64
}

func riskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionSizePct:     2,
		RiskRewardRatio:        1.5,
		MaxTradesPerDay:        20,
		MaxConcurrentPositions: 5,
		ContractSize:           1,
		PipSize:                0.0001,
		PipValue:               10,
		MinVolume:              0.01,
		MaxVolume:              10,
	}
}

func newEngineFixture(t *testing.T, cfg config.RiskConfig) *engineFixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC))
	repo := memrepository.New().WithClock(clock.Now)
	locks := keylock.New()
	sink := &recordingSink{}

	accounts := &ledger.AccountLedger{Repo: repo, Locks: locks, Clock: clock, Events: sink}
	trades := &ledger.TradeLedger{Repo: repo, Locks: locks, Clock: clock, Events: sink, Accounts: accounts}

	acc, err := accounts.Create(ctx, owner, ledger.CreateAccountInput{Name: "Bot", PropFirm: "DNA_FUNDED", InitialBalance: 10000})
	require.NoError(t, err)
	_, err = accounts.Transition(ctx, owner, acc.ID, ledger.EventVerify)
	require.NoError(t, err)
	acc, err = accounts.Transition(ctx, owner, acc.ID, ledger.EventStartTrading)
	require.NoError(t, err)

	falling := ramp(1.2, -0.0001, 30)
	feed := &fixedFeed{series: map[string][]marketdata.OHLC{"EURUSD": bars(falling...)}}

	e := &Engine{
		Repo:     repo,
		Accounts: accounts,
		Trades:   trades,
		Risk:     &risk.Validator{Config: cfg, Repo: repo, Clock: clock},
		Feed:     feed,
		Gateway:  &execution.Paper{Clock: clock},
		Registry: DefaultRegistry(),
		Clock:    clock,
		Events:   sink,
		Symbols:  []string{"EURUSD"},
	}
	return &engineFixture{clock: clock, repo: repo, trades: trades, sink: sink, engine: e, account: acc, last: falling[29]}
}

func (f *engineFixture) addStrategy(t *testing.T, typ models.StrategyType) {
	t.Helper()
	require.NoError(t, f.repo.InsertStrategy(context.Background(), &models.Strategy{
		ID:        "strat-" + string(typ),
		AccountID: f.account.ID,
		Type:      typ,
		Enabled:   true,
		Params:    datatypes.JSON(`{}`),
		Symbols:   datatypes.JSON(`["EURUSD","NOT_A_SYMBOL"]`),
	}))
}

func (f *engineFixture) allTrades(t *testing.T) []models.Trade {
	t.Helper()
	items, err := f.repo.ListTrades(context.Background(), repository.ListTradesParams{AccountID: f.account.ID})
	require.NoError(t, err)
	return items
}

func TestRunOnceExecutesSignal(t *testing.T) {
	f := newEngineFixture(t, riskConfig())
	f.addStrategy(t, models.StrategyScalping)

	f.engine.RunOnce(context.Background())

	items := f.allTrades(t)
	require.Len(t, items, 1)
	tr := items[0]
	assert.Equal(t, models.TradeOpen, tr.Status)
	assert.Equal(t, models.SideBuy, tr.Side)
	assert.Equal(t, "PAPER-1", tr.BrokerTicket)
	assert.InDelta(t, 2.0, tr.Volume, 1e-9)
	assert.InDelta(t, f.last, tr.EntryPrice, 1e-12)
	assert.Equal(t, models.StrategyScalping, tr.StrategyTag)

	// An open trade for the same symbol and strategy suppresses repeats.
	f.engine.RunOnce(context.Background())
	assert.Len(t, f.allTrades(t), 1)
}

func TestGatewayFailureCancelsPendingTrade(t *testing.T) {
	f := newEngineFixture(t, riskConfig())
	f.addStrategy(t, models.StrategyScalping)
	f.engine.Gateway = failingGateway{}

	f.engine.RunOnce(context.Background())

	items := f.allTrades(t)
	require.Len(t, items, 1)
	assert.Equal(t, models.TradeCancelled, items[0].Status)
	assert.Contains(t, f.sink.actions(), audit.ActionTradeCancelled)
}

func TestRiskRejectionLeavesNoTrade(t *testing.T) {
	cfg := riskConfig()
	cfg.MaxTradesPerDay = 0
	f := newEngineFixture(t, cfg)
	f.addStrategy(t, models.StrategyScalping)

	f.engine.RunOnce(context.Background())

	assert.Empty(t, f.allTrades(t))
	assert.Contains(t, f.sink.actions(), audit.ActionSignalRejected)
}

func TestExitPassClosesOnTakeProfit(t *testing.T) {
	f := newEngineFixture(t, riskConfig())
	ctx := context.Background()
	tr, err := f.trades.Create(ctx, owner, ledger.CreateTradeInput{
		AccountID: f.account.ID, Symbol: "EURUSD", Side: models.SideBuy,
		EntryPrice: 1.19, Volume: 1, StopLoss: 1.18, TakeProfit: 1.195,
		Strategy: models.StrategyTrendFollowing,
	})
	require.NoError(t, err)
	_, err = f.trades.Open(ctx, owner, tr.ID, 0, "T-1")
	require.NoError(t, err)

	f.engine.RunOnce(ctx)

	closed, err := f.repo.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, closed.Status)
	require.NotNil(t, closed.Profit)
	assert.InDelta(t, f.last-1.19, *closed.Profit, 1e-9)

	acc, err := f.repo.GetAccount(ctx, f.account.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10000+f.last-1.19, acc.Equity, 1e-9)
}

func TestFeedFailureIsSkipped(t *testing.T) {
	f := newEngineFixture(t, riskConfig())
	f.addStrategy(t, models.StrategyScalping)
	f.engine.Feed = &fixedFeed{err: apperr.Unavailable("MARKET_DATA_UNAVAILABLE", context.DeadlineExceeded)}

	assert.NotPanics(t, func() { f.engine.RunOnce(context.Background()) })
	assert.Empty(t, f.allTrades(t))
}

func TestDisabledSwitchSkipsTick(t *testing.T) {
	f := newEngineFixture(t, riskConfig())
	f.addStrategy(t, models.StrategyScalping)
	f.engine.Enabled = func(context.Context) bool { return false }

	f.engine.RunOnce(context.Background())
	assert.Empty(t, f.allTrades(t))
}

func TestStartStopIdempotent(t *testing.T) {
	f := newEngineFixture(t, riskConfig())
	calls := make(chan struct{}, 16)
	f.engine.Interval = time.Second
	f.engine.Enabled = func(context.Context) bool {
		select {
		case calls <- struct{}{}:
		default:
		}
		return false
	}

	ctx := context.Background()
	f.engine.Start(ctx)
	f.engine.Start(ctx)
	f.clock.BlockUntil(1)
	f.clock.Advance(time.Second)

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not run")
	}

	f.engine.Stop()
	f.engine.Stop()
	f.clock.Advance(5 * time.Second)
	select {
	case <-calls:
		t.Fatal("tick ran after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopLetsInFlightTickFinish(t *testing.T) {
	f := newEngineFixture(t, riskConfig())
	f.addStrategy(t, models.StrategyScalping)
	gw := &gatedGateway{
		paper:   &execution.Paper{Clock: f.clock},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f.engine.Gateway = gw
	f.engine.Interval = time.Second

	f.engine.Start(context.Background())
	f.clock.BlockUntil(1)
	f.clock.Advance(time.Second)
	select {
	case <-gw.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("order was not placed")
	}

	stopped := make(chan struct{})
	go func() {
		f.engine.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned before the tick finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(gw.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	items := f.allTrades(t)
	require.Len(t, items, 1)
	assert.Equal(t, models.TradeOpen, items[0].Status)
	assert.Equal(t, "PAPER-1", items[0].BrokerTicket)
}

func TestStrategySymbolsWarnsOnBadJSON(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	e := &Engine{Logger: zap.New(core), Symbols: []string{"EURUSD", "GOLD"}}

	got := e.strategySymbols(models.Strategy{ID: "s-1", Symbols: datatypes.JSON(`{"broken"`)})

	assert.Equal(t, []string{"EURUSD", "GOLD"}, got)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "decode strategy symbols failed", logs.All()[0].Message)
	assert.Equal(t, "s-1", logs.All()[0].ContextMap()["strategy_id"])
}

func TestExitReason(t *testing.T) {
	buy := models.Trade{Side: models.SideBuy, StopLoss: 1.0, TakeProfit: 1.2}
	assert.Equal(t, "stop_loss", exitReason(buy, 0.99))
	assert.Equal(t, "take_profit", exitReason(buy, 1.2))
	assert.Equal(t, "", exitReason(buy, 1.1))

	sell := models.Trade{Side: models.SideSell, StopLoss: 1.2, TakeProfit: 1.0}
	assert.Equal(t, "stop_loss", exitReason(sell, 1.25))
	assert.Equal(t, "take_profit", exitReason(sell, 0.95))
}

func TestPerformanceUpdaterWritesPerStrategyType(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	repo := memrepository.New().WithClock(clock.Now)
	require.NoError(t, repo.InsertAccount(ctx, &models.Account{
		ID: "acc-1", OwnerID: owner.UserID, Balance: 10000, Equity: 10300, Status: models.AccountTrading,
	}))
	require.NoError(t, repo.InsertStrategy(ctx, &models.Strategy{
		ID: "s-trend", AccountID: "acc-1", Type: models.StrategyTrendFollowing, Enabled: true, Params: datatypes.JSON(`{}`),
	}))
	require.NoError(t, repo.InsertStrategy(ctx, &models.Strategy{
		ID: "s-scalp", AccountID: "acc-1", Type: models.StrategyScalping, Enabled: true, Params: datatypes.JSON(`{}`),
	}))

	closed := func(id string, tag models.StrategyType, profit float64, at time.Time) *models.Trade {
		exit := 1.1
		return &models.Trade{
			ID: id, AccountID: "acc-1", Symbol: "EURUSD", Side: models.SideBuy, Status: models.TradeClosed,
			EntryPrice: 1.1, EntryTime: at.Add(-time.Hour), ExitPrice: &exit, ExitTime: &at,
			Volume: 1, StopLoss: 1.09, TakeProfit: 1.12, Profit: &profit, StrategyTag: tag,
		}
	}
	base := clock.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.InsertTrade(ctx, closed("t1", models.StrategyTrendFollowing, 500, base)))
	require.NoError(t, repo.InsertTrade(ctx, closed("t2", models.StrategyTrendFollowing, -200, base.Add(time.Hour))))

	u := &PerformanceUpdater{Repo: repo, Locks: keylock.New(), Clock: clock}
	require.NoError(t, u.UpdateOnce(ctx))

	var trend models.StrategyPerformance
	s, err := repo.GetStrategy(ctx, "s-trend")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(s.Performance, &trend))
	assert.Equal(t, 2, trend.TotalTrades)
	assert.InDelta(t, 50, trend.WinRate, 1e-9)
	assert.True(t, trend.UpdatedAt.Equal(clock.Now()))

	var scalp models.StrategyPerformance
	s, err = repo.GetStrategy(ctx, "s-scalp")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(s.Performance, &scalp))
	assert.Zero(t, scalp.TotalTrades)
}

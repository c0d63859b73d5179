package service

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

	"propdesk/internal/alert"
	"propdesk/internal/analytics"
	"propdesk/internal/apperr"
	"propdesk/internal/audit"
	"propdesk/internal/auth"
	"propdesk/internal/cache"
	"propdesk/internal/config"
	"propdesk/internal/keylock"
	"propdesk/internal/ledger"
	"propdesk/internal/models"
	memrepository "propdesk/internal/repository/memory"
	"propdesk/internal/risk"
	"propdesk/internal/strategy"
)

var (
	owner    = auth.Identity{UserID: "user-1", Role: models.RoleUser}
	stranger = auth.Identity{UserID: "user-2", Role: models.RoleUser}
)

type recordingSink struct {
	mu      sync.Mutex
	actions []string
}

func (s *recordingSink) Write(ctx context.Context, ev audit.Event) error {
	s.mu.Lock()
	s.actions = append(s.actions, ev.Action)
	s.mu.Unlock()
	return nil
}

type fixture struct {
	clock    *clockwork.FakeClock
	repo     *memrepository.Store
	locks    *keylock.Locker
	sink     *recordingSink
	accounts *ledger.AccountLedger
	trades   *ledger.TradeLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC))
	repo := memrepository.New().WithClock(clock.Now)
	locks := keylock.New()
	sink := &recordingSink{}
	accounts := &ledger.AccountLedger{Repo: repo, Locks: locks, Clock: clock, Events: sink}
	trades := &ledger.TradeLedger{Repo: repo, Locks: locks, Clock: clock, Events: sink, Accounts: accounts}
	return &fixture{clock: clock, repo: repo, locks: locks, sink: sink, accounts: accounts, trades: trades}
}

func (f *fixture) account(t *testing.T, actor auth.Identity, balance float64, trading bool) *models.Account {
	t.Helper()
	ctx := context.Background()
	acc, err := f.accounts.Create(ctx, actor, ledger.CreateAccountInput{Name: "Challenge", PropFirm: "DNA_FUNDED", InitialBalance: balance})
	require.NoError(t, err)
	if trading {
		_, err = f.accounts.Transition(ctx, actor, acc.ID, ledger.EventVerify)
		require.NoError(t, err)
		acc, err = f.accounts.Transition(ctx, actor, acc.ID, ledger.EventStartTrading)
		require.NoError(t, err)
	}
	return acc
}

// closedTrade opens a GOLD buy at 100 and closes it at exit.
func (f *fixture) closedTrade(t *testing.T, accountID string, exit float64, at *time.Time) *models.Trade {
	t.Helper()
	tr := f.openTrade(t, accountID)
	tr, err := f.trades.Close(context.Background(), owner, tr.ID, exit, at)
	require.NoError(t, err)
	return tr
}

func (f *fixture) openTrade(t *testing.T, accountID string) *models.Trade {
	t.Helper()
	ctx := context.Background()
	tr, err := f.trades.Create(ctx, owner, ledger.CreateTradeInput{
		AccountID: accountID, Symbol: "GOLD", Side: models.SideBuy,
		EntryPrice: 100, Volume: 10, StopLoss: 90, TakeProfit: 120,
		Strategy: models.StrategyTrendFollowing,
	})
	require.NoError(t, err)
	tr, err = f.trades.Open(ctx, owner, tr.ID, 0, "")
	require.NoError(t, err)
	return tr
}

func errCode(err error) string {
	if e, ok := apperr.As(err); ok {
		return e.Code
	}
	return ""
}

func (f *fixture) strategies() *StrategyService {
	return &StrategyService{
		Repo:     f.repo,
		Accounts: f.accounts,
		Registry: strategy.DefaultRegistry(),
		Locks:    f.locks,
		Clock:    f.clock,
		Events:   f.sink,
		Defaults: map[string]any{"trend_following": map[string]any{"ma_long": 40.0, "enabled": true}},
		Symbols:  []string{"EURUSD", "GOLD"},
	}
}

func TestStrategyCreateMergesDefaults(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, owner, 10000, false)
	svc := f.strategies()
	ctx := context.Background()

	item, err := svc.Create(ctx, owner, CreateStrategyInput{
		AccountID:  acc.ID,
		Type:       "trend_following",
		Parameters: map[string]float64{"ma_short": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StrategyTrendFollowing, item.Type)
	assert.True(t, item.Enabled)

	params := strategy.ParseParams(item.Params)
	assert.Equal(t, 10.0, params["ma_short"])
	assert.Equal(t, 40.0, params["ma_long"])
	assert.Equal(t, 0.6, params["min_confidence"])
	_, hasEnabled := params["enabled"]
	assert.False(t, hasEnabled)

	var symbols []string
	require.NoError(t, json.Unmarshal(item.Symbols, &symbols))
	assert.Equal(t, []string{"EURUSD", "GOLD"}, symbols)

	off := false
	disabled, err := svc.Create(ctx, owner, CreateStrategyInput{AccountID: acc.ID, Type: models.StrategyScalping, Enabled: &off, Symbols: []string{"gbpusd"}})
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)
	require.NoError(t, json.Unmarshal(disabled.Symbols, &symbols))
	assert.Equal(t, []string{"GBPUSD"}, symbols)
}

func TestStrategyCreateRejects(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, owner, 10000, false)
	svc := f.strategies()
	ctx := context.Background()

	_, err := svc.Create(ctx, owner, CreateStrategyInput{AccountID: acc.ID})
	assert.Equal(t, "MISSING_FIELDS", errCode(err))

	_, err = svc.Create(ctx, owner, CreateStrategyInput{AccountID: acc.ID, Type: "GRID"})
	assert.Equal(t, "INVALID_STRATEGY_TYPE", errCode(err))

	_, err = svc.Create(ctx, owner, CreateStrategyInput{AccountID: acc.ID, Type: models.StrategyScalping, Symbols: []string{"DOGE"}})
	assert.Equal(t, "INVALID_SYMBOL", errCode(err))

	_, err = svc.Create(ctx, stranger, CreateStrategyInput{AccountID: acc.ID, Type: models.StrategyScalping})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	items, err := svc.List(ctx, owner, acc.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStrategyLifecycle(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, owner, 10000, false)
	svc := f.strategies()
	ctx := context.Background()

	item, err := svc.Create(ctx, owner, CreateStrategyInput{AccountID: acc.ID, Type: models.StrategyMeanReversion})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, owner, item.ID, UpdateStrategyInput{Parameters: map[string]float64{"bb_period": 30}})
	require.NoError(t, err)
	params := strategy.ParseParams(updated.Params)
	assert.Equal(t, 30.0, params["bb_period"])
	assert.Equal(t, 2.0, params["bb_std_dev"])

	_, err = svc.SetEnabled(ctx, owner, item.ID, false)
	require.NoError(t, err)
	got, err := svc.Get(ctx, owner, item.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	_, err = svc.Get(ctx, stranger, item.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	all, err := svc.List(ctx, owner, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, svc.Delete(ctx, owner, item.ID))
	_, err = svc.Get(ctx, owner, item.ID)
	assert.Equal(t, "STRATEGY_NOT_FOUND", errCode(err))

	assert.Subset(t, f.sink.actions, []string{
		audit.ActionStrategyCreated,
		audit.ActionStrategyUpdated,
		audit.ActionStrategyDisabled,
		audit.ActionStrategyDeleted,
	})
}

func TestSystemSettingsSwitches(t *testing.T) {
	f := newFixture(t)
	svc := &SystemSettingsService{Repo: f.repo, Clock: f.clock}
	ctx := context.Background()

	require.NoError(t, svc.EnsureDefaultSwitches(ctx))
	assert.True(t, svc.IsEnabled(ctx, FeatureStrategyEngine, false))

	require.NoError(t, svc.SetEnabled(ctx, FeatureStrategyEngine, false))
	require.NoError(t, svc.EnsureDefaultSwitches(ctx))
	assert.False(t, svc.Switch(FeatureStrategyEngine, true)(ctx))

	_, err := svc.Set(ctx, FeatureMonitoring, json.RawMessage(`"yes"`))
	assert.Equal(t, "INVALID_VALUE", errCode(err))
	assert.True(t, svc.IsEnabled(ctx, "feature.unknown", true))
}

func TestSystemSettingsSealsCredentials(t *testing.T) {
	f := newFixture(t)
	svc := &SystemSettingsService{Repo: f.repo, Clock: f.clock, Cipher: NewSettingsCipher("0123456789abcdef0123456789abcdef")}
	ctx := context.Background()

	out, err := svc.Set(ctx, "notify.telegram_bot_token", json.RawMessage(`"123:abc"`))
	require.NoError(t, err)
	assert.JSONEq(t, RedactedValue, string(out.Value))

	stored, err := f.repo.GetSystemSettingByKey(ctx, "notify.telegram_bot_token")
	require.NoError(t, err)
	assert.NotContains(t, string(stored.Value), "123:abc")

	token, ok := svc.StringValue(ctx, "notify.telegram_bot_token")
	require.True(t, ok)
	assert.Equal(t, "123:abc", token)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, RedactedValue, string(items[0].Value))

	rotated := NewSettingsCipher("fedcba9876543210fedcba9876543210", "0123456789abcdef0123456789abcdef")
	assert.Equal(t, `"123:abc"`, string(rotated.Open(stored.Key, stored.Value)))
	assert.Nil(t, NewSettingsCipher("short"))

	cfg := svc.NotifyConfig(ctx, config.NotifyConfig{TelegramBotToken: "from-file", TelegramChatID: "42"})
	assert.Equal(t, "123:abc", cfg.TelegramBotToken)
	assert.Equal(t, "42", cfg.TelegramChatID)
}

func (f *fixture) dashboard(t *testing.T) *DashboardService {
	t.Helper()
	store, err := cache.NewMemoryStore(1 << 20)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	svc := &DashboardService{
		Repo:           f.repo,
		Accounts:       f.accounts,
		Trades:         f.trades,
		Analyzer:       &analytics.Analyzer{Repo: f.repo},
		Risk:           &risk.Validator{Config: config.RiskConfig{MaxTradesPerDay: 20, MaxConcurrentPositions: 5}, Repo: f.repo, Clock: f.clock},
		AlertStore:     alert.NewStore(),
		Cache:          store,
		AccountTTL:     time.Minute,
		PerformanceTTL: 5 * time.Minute,
	}
	f.accounts.OnChange = svc.Invalidate
	f.trades.OnChange = svc.Invalidate
	return svc
}

func TestDashboardCachesUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	svc := f.dashboard(t)
	acc := f.account(t, owner, 10000, true)
	ctx := context.Background()

	first, err := svc.Dashboard(ctx, owner, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Performance.TotalTrades)
	assert.Empty(t, first.Strategies)

	// Written behind the services' back, so the cached view stays stale.
	require.NoError(t, f.repo.InsertStrategy(ctx, &models.Strategy{ID: "s1", AccountID: acc.ID, Type: models.StrategyScalping}))
	cached, err := svc.Dashboard(ctx, owner, acc.ID)
	require.NoError(t, err)
	assert.Empty(t, cached.Strategies)

	f.closedTrade(t, acc.ID, 110, nil)
	fresh, err := svc.Dashboard(ctx, owner, acc.ID)
	require.NoError(t, err)
	assert.Len(t, fresh.Strategies, 1)
	assert.Equal(t, 1, fresh.Performance.TotalTrades)
	assert.Len(t, fresh.RecentTrades, 1)
	assert.Empty(t, fresh.OpenPositions)
	assert.InDelta(t, 10100, fresh.Account.Equity, 1e-9)
	assert.Equal(t, acc.ID, fresh.Risk.AccountID)

	_, err = svc.Dashboard(ctx, stranger, acc.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	points, err := svc.PerformanceChart(ctx, owner, acc.ID)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.InDelta(t, 10100, points[1].Equity, 1e-9)
}

func TestDashboardAlerts(t *testing.T) {
	f := newFixture(t)
	svc := f.dashboard(t)
	acc := f.account(t, owner, 10000, false)
	ctx := context.Background()

	added := svc.AlertStore.Replace(acc.ID, []models.Alert{{Kind: alert.KindHighDrawdown, Severity: models.AlertWarning}})
	require.Len(t, added, 1)

	items, err := svc.Alerts(ctx, owner, acc.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, svc.MarkAlertRead(ctx, owner, acc.ID, added[0].ID))
	items, err = svc.Alerts(ctx, owner, acc.ID)
	require.NoError(t, err)
	assert.True(t, items[0].Read)

	err = svc.MarkAlertRead(ctx, owner, acc.ID, "missing")
	assert.Equal(t, "ALERT_NOT_FOUND", errCode(err))
}

func TestOverview(t *testing.T) {
	f := newFixture(t)
	svc := f.dashboard(t)
	trading := f.account(t, owner, 10000, true)
	f.account(t, owner, 5000, false)
	f.account(t, stranger, 50000, true)
	f.closedTrade(t, trading.ID, 110, nil)

	out, err := svc.Overview(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 2, out.TotalAccounts)
	assert.Equal(t, 1, out.ActiveAccounts)
	assert.Equal(t, 15000.0, out.TotalBalance)
	assert.Equal(t, 15100.0, out.TotalEquity)
	assert.Equal(t, 100.0, out.TotalProfit)
	assert.Equal(t, 0.67, out.TotalReturn)
	assert.Equal(t, 1, out.TotalTrades)
	assert.Equal(t, 100.0, out.WinRate)
}

func TestSnapshotTakeDaily(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, owner, 10000, true)
	yesterday := time.Date(2024, 5, 5, 15, 0, 0, 0, time.UTC)
	today := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	f.closedTrade(t, acc.ID, 110, &yesterday)
	f.closedTrade(t, acc.ID, 95, &today)
	f.openTrade(t, acc.ID)

	svc := &SnapshotService{Repo: f.repo, Clock: f.clock}
	ctx := context.Background()
	require.NoError(t, svc.TakeDaily(ctx))
	require.NoError(t, svc.TakeDaily(ctx))

	snaps, err := f.repo.ListAccountSnapshots(ctx, acc.ID, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	snap := snaps[0]
	assert.Equal(t, time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC), snap.Day)
	assert.Equal(t, 1, snap.ClosedTrades)
	assert.InDelta(t, 100, snap.DailyProfit, 1e-9)
	assert.Equal(t, 1, snap.OpenTrades)
	assert.InDelta(t, 10050, snap.Equity, 1e-9)
}

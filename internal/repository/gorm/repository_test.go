package gormrepository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"propdesk/internal/config"
	"propdesk/internal/db"
	"propdesk/internal/models"
	"propdesk/internal/repository"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	d, err := db.Open(config.DBConfig{Driver: "sqlite", DSN: "file:" + name + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(d) })
	require.NoError(t, db.AutoMigrate(d))
	return New(d.Gorm)
}

func TestAccountRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	got, err := s.GetAccount(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	acc := &models.Account{ID: "a1", OwnerID: "u1", Name: "one", Balance: 5000, Equity: 5000, FreeMargin: 5000, Status: models.AccountEvaluation, PropFirm: "DNA_FUNDED"}
	require.NoError(t, s.InsertAccount(ctx, acc))
	require.NoError(t, s.InsertAccount(ctx, &models.Account{ID: "a2", OwnerID: "u2", Name: "two", Status: models.AccountTrading, PropFirm: "DNA_FUNDED"}))

	acc.Equity = 5100
	require.NoError(t, s.SaveAccount(ctx, acc))
	got, err = s.GetAccount(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5100.0, got.Equity)

	items, err := s.ListAccounts(ctx, repository.ListAccountsParams{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = s.ListAccounts(ctx, repository.ListAccountsParams{Statuses: []models.AccountStatus{models.AccountTrading}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a2", items[0].ID)

	require.NoError(t, s.DeleteAccount(ctx, "a2"))
	got, err = s.GetAccount(ctx, "a2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTradeQueries(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	for i, st := range []models.TradeStatus{models.TradeOpen, models.TradeClosed, models.TradeClosed, models.TradeCancelled} {
		tr := &models.Trade{
			ID:          string(rune('a' + i)),
			AccountID:   "acc",
			Symbol:      "EURUSD",
			Side:        models.SideBuy,
			Status:      st,
			EntryPrice:  1.1,
			EntryTime:   base,
			Volume:      1,
			StopLoss:    1.09,
			TakeProfit:  1.12,
			StrategyTag: models.StrategyScalping,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}
		if st == models.TradeClosed {
			exit := base.Add(time.Duration(10-i) * time.Hour)
			profit := float64(i)
			tr.ExitTime = &exit
			tr.Profit = &profit
		}
		require.NoError(t, s.InsertTrade(ctx, tr))
	}

	items, err := s.ListTrades(ctx, repository.ListTradesParams{AccountID: "acc"})
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, "d", items[0].ID)

	closed, err := s.ListTrades(ctx, repository.ListTradesParams{
		AccountID: "acc",
		Statuses:  []models.TradeStatus{models.TradeClosed},
		OrderBy:   repository.OrderByExitTime,
		Asc:       true,
	})
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, "c", closed[0].ID)
	assert.Equal(t, 2.0, closed[0].ProfitValue())

	n, err := s.CountTrades(ctx, repository.ListTradesParams{AccountID: "acc", Statuses: []models.TradeStatus{models.TradeOpen, models.TradeCancelled}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	from := base.Add(2 * time.Hour)
	n, err = s.CountTrades(ctx, repository.ListTradesParams{AccountID: "acc", CreatedFrom: &from})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.GetTrade(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StrategyScalping, got.StrategyTag)

	removed, err := s.DeleteTradesUpdatedBefore(ctx, models.TradeCancelled, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestStrategiesSettingsSnapshots(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertStrategy(ctx, &models.Strategy{ID: "s1", AccountID: "acc", Type: models.StrategyTrendFollowing, Enabled: true, Params: datatypes.JSON(`{"ma_short":20}`)}))
	require.NoError(t, s.InsertStrategy(ctx, &models.Strategy{ID: "s2", AccountID: "acc", Type: models.StrategyScalping, Enabled: true, Params: datatypes.JSON(`{}`)}))
	s2, err := s.GetStrategy(ctx, "s2")
	require.NoError(t, err)
	s2.Enabled = false
	require.NoError(t, s.SaveStrategy(ctx, s2))

	enabled := true
	items, err := s.ListStrategies(ctx, repository.ListStrategiesParams{AccountID: "acc", Enabled: &enabled})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"ma_short":20}`, string(items[0].Params))

	n, err := s.DeleteStrategiesByAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.UpsertSystemSetting(ctx, &models.SystemSetting{Key: "feature.x", Value: datatypes.JSON(`true`)}))
	require.NoError(t, s.UpsertSystemSetting(ctx, &models.SystemSetting{Key: "feature.x", Value: datatypes.JSON(`false`)}))
	setting, err := s.GetSystemSettingByKey(ctx, "feature.x")
	require.NoError(t, err)
	require.NotNil(t, setting)
	assert.JSONEq(t, `false`, string(setting.Value))

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertAccountSnapshot(ctx, &models.AccountSnapshot{AccountID: "acc", Day: day, Equity: 1}))
	require.NoError(t, s.UpsertAccountSnapshot(ctx, &models.AccountSnapshot{AccountID: "acc", Day: day, Equity: 2}))
	require.NoError(t, s.UpsertAccountSnapshot(ctx, &models.AccountSnapshot{AccountID: "acc", Day: day.AddDate(0, 0, 1), Equity: 3}))
	snaps, err := s.ListAccountSnapshots(ctx, "acc", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 3.0, snaps[0].Equity)
	assert.Equal(t, 2.0, snaps[1].Equity)

	removed, err := s.DeleteAccountSnapshotsBefore(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestUsersByEmail(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertUser(ctx, &models.User{ID: "u1", Email: "a@b.io", PasswordHash: "x", Role: models.RoleUser}))

	u, err := s.GetUserByEmail(ctx, " A@B.io ")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID)

	u, err = s.GetUserByID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, u)
}

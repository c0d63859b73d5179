package strategy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"propdesk/internal/analytics"
	"propdesk/internal/keylock"
	"propdesk/internal/models"
	"propdesk/internal/repository"
)

// PerformanceUpdater writes each strategy's performance snapshot from the
// closed trades tagged with its type, so reads never recompute it.
type PerformanceUpdater struct {
	Repo   repository.Repository
	Locks  *keylock.Locker
	Clock  clockwork.Clock
	Logger *zap.Logger
}

// StrategyKey is the lock key shared with strategy mutations.
func StrategyKey(id string) string { return "strategy:" + id }

func (u *PerformanceUpdater) UpdateOnce(ctx context.Context) error {
	if u == nil || u.Repo == nil {
		return nil
	}
	strategies, err := u.Repo.ListStrategies(ctx, repository.ListStrategiesParams{})
	if err != nil {
		u.logWarn("list strategies failed", err)
		return err
	}
	byAccount := map[string][]models.Strategy{}
	for _, s := range strategies {
		byAccount[s.AccountID] = append(byAccount[s.AccountID], s)
	}

	now := u.now()
	for accountID, items := range byAccount {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		acc, err := u.Repo.GetAccount(ctx, accountID)
		if err != nil {
			u.logWarn("get account failed", err, zap.String("account_id", accountID))
			continue
		}
		if acc == nil {
			continue
		}
		closed, err := u.Repo.ListTrades(ctx, repository.ListTradesParams{
			AccountID: accountID,
			Statuses:  []models.TradeStatus{models.TradeClosed},
			OrderBy:   repository.OrderByExitTime,
			Asc:       true,
		})
		if err != nil {
			u.logWarn("list closed trades failed", err, zap.String("account_id", accountID))
			continue
		}
		byType := map[models.StrategyType][]models.Trade{}
		for _, t := range closed {
			byType[t.StrategyTag] = append(byType[t.StrategyTag], t)
		}
		for _, s := range items {
			m := analytics.Compute(acc.Balance, byType[s.Type])
			perf := models.StrategyPerformance{
				TotalTrades:  m.TotalTrades,
				WinRate:      m.WinRate,
				ProfitFactor: m.ProfitFactor,
				MaxDrawdown:  m.MaxDrawdown,
				SharpeRatio:  m.SharpeRatio,
				UpdatedAt:    now,
			}
			if err := u.write(ctx, s.ID, perf); err != nil {
				u.logWarn("write strategy performance failed", err, zap.String("strategy_id", s.ID))
			}
		}
	}
	return nil
}

func (u *PerformanceUpdater) write(ctx context.Context, id string, perf models.StrategyPerformance) error {
	raw, err := json.Marshal(perf)
	if err != nil {
		return err
	}
	if u.Locks != nil {
		unlock := u.Locks.Lock(StrategyKey(id))
		defer unlock()
	}
	current, err := u.Repo.GetStrategy(ctx, id)
	if err != nil || current == nil {
		return err
	}
	current.Performance = datatypes.JSON(raw)
	return u.Repo.SaveStrategy(ctx, current)
}

func (u *PerformanceUpdater) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

func (u *PerformanceUpdater) logWarn(msg string, err error, fields ...zap.Field) {
	if u != nil && u.Logger != nil {
		u.Logger.Warn(msg, append(fields, zap.Error(err))...)
	}
}

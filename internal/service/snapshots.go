package service

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"propdesk/internal/models"
	"propdesk/internal/repository"
)

// SnapshotService records the end-of-day state of every account.
type SnapshotService struct {
	Repo   repository.Repository
	Clock  clockwork.Clock
	Logger *zap.Logger
}

// TakeDaily writes the snapshot of the UTC day that ended before now. It is
// idempotent per (account, day).
func (s *SnapshotService) TakeDaily(ctx context.Context) error {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.Take(ctx, today.AddDate(0, 0, -1))
}

func (s *SnapshotService) Take(ctx context.Context, day time.Time) error {
	accounts, err := s.Repo.ListAccounts(ctx, repository.ListAccountsParams{})
	if err != nil {
		return err
	}
	end := day.AddDate(0, 0, 1)
	written := 0
	for _, acc := range accounts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		snap, err := s.snapshot(ctx, acc, day, end)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("account snapshot failed", zap.String("account_id", acc.ID), zap.Error(err))
			}
			continue
		}
		if err := s.Repo.UpsertAccountSnapshot(ctx, snap); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("save account snapshot failed", zap.String("account_id", acc.ID), zap.Error(err))
			}
			continue
		}
		written++
	}
	if s.Logger != nil {
		s.Logger.Info("account snapshots written", zap.Time("day", day), zap.Int("accounts", written))
	}
	return nil
}

func (s *SnapshotService) snapshot(ctx context.Context, acc models.Account, day, end time.Time) (*models.AccountSnapshot, error) {
	open, err := s.Repo.CountTrades(ctx, repository.ListTradesParams{
		AccountID: acc.ID,
		Statuses:  []models.TradeStatus{models.TradeOpen},
	})
	if err != nil {
		return nil, err
	}
	closed, err := s.Repo.ListTrades(ctx, repository.ListTradesParams{
		AccountID:  acc.ID,
		Statuses:   []models.TradeStatus{models.TradeClosed},
		ClosedFrom: &day,
		OrderBy:    repository.OrderByExitTime,
		Asc:        true,
	})
	if err != nil {
		return nil, err
	}
	snap := &models.AccountSnapshot{
		AccountID:  acc.ID,
		Day:        day,
		Balance:    acc.Balance,
		Equity:     acc.Equity,
		OpenTrades: int(open),
	}
	for _, t := range closed {
		if t.ExitTime == nil || !t.ExitTime.Before(end) {
			continue
		}
		snap.ClosedTrades++
		snap.DailyProfit += t.ProfitValue()
	}
	return snap, nil
}

func (s *SnapshotService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

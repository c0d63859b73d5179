package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"propdesk/internal/alert"
	"propdesk/internal/apperr"
	"propdesk/internal/auth"
	"propdesk/internal/config"
	"propdesk/internal/ledger"
	"propdesk/internal/models"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
	"propdesk/internal/strategy"
)

// RiskWatcher snapshots every trading account and fails the ones whose
// drawdown reached their limit.
type RiskWatcher struct {
	Accounts *ledger.AccountLedger
	Risk     *risk.Validator
	AutoFail bool
	Logger   *zap.Logger
}

func (w *RiskWatcher) Check(ctx context.Context) error {
	accounts, err := w.Accounts.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		snap, err := w.Risk.Snapshot(ctx, acc.ID)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) && w.Logger != nil {
				w.Logger.Warn("risk snapshot failed", zap.String("account_id", acc.ID), zap.Error(err))
			}
			continue
		}
		if !snap.Breached() {
			continue
		}
		if w.Logger != nil {
			w.Logger.Warn("account drawdown limit reached",
				zap.String("account_id", acc.ID),
				zap.Float64("drawdown_pct", snap.DrawdownPct),
				zap.Float64("max_drawdown_pct", snap.MaxDrawdownPct),
			)
		}
		if !w.AutoFail {
			continue
		}
		if _, err := w.Accounts.Transition(ctx, auth.System, acc.ID, ledger.EventFail); err != nil && w.Logger != nil {
			w.Logger.Warn("fail account failed", zap.String("account_id", acc.ID), zap.Error(err))
		}
	}
	return nil
}

// Housekeeper drops state nothing reads any more.
type Housekeeper struct {
	Repo   repository.Repository
	Alerts *alert.Store
	Clock  clockwork.Clock
	Logger *zap.Logger

	CancelledRetention time.Duration
	SnapshotRetention  time.Duration
}

func (h *Housekeeper) Run(ctx context.Context) error {
	now := h.now()
	if h.Alerts != nil {
		for _, id := range h.Alerts.Accounts() {
			acc, err := h.Repo.GetAccount(ctx, id)
			if err != nil {
				return err
			}
			if acc == nil {
				h.Alerts.Forget(id)
			}
		}
	}
	var snapshots, cancelled int64
	var err error
	if h.SnapshotRetention > 0 {
		if snapshots, err = h.Repo.DeleteAccountSnapshotsBefore(ctx, now.Add(-h.SnapshotRetention)); err != nil {
			return err
		}
	}
	if h.CancelledRetention > 0 {
		if cancelled, err = h.Repo.DeleteTradesUpdatedBefore(ctx, models.TradeCancelled, now.Add(-h.CancelledRetention)); err != nil {
			return err
		}
	}
	if h.Logger != nil && (snapshots > 0 || cancelled > 0) {
		h.Logger.Info("housekeeping purged rows",
			zap.Int64("snapshots", snapshots),
			zap.Int64("cancelled_trades", cancelled),
		)
	}
	return nil
}

func (h *Housekeeper) now() time.Time {
	if h.Clock == nil {
		return time.Now().UTC()
	}
	return h.Clock.Now().UTC()
}

// Deps are the components the standard jobs drive.
type Deps struct {
	Performance *strategy.PerformanceUpdater
	Risk        *RiskWatcher
	Alerts      *alert.Generator
	Housekeeper *Housekeeper
}

// NewScheduler builds the four standard jobs. A nil dependency drops its job.
func NewScheduler(cfg config.MonitoringConfig, deps Deps, clock clockwork.Clock, logger *zap.Logger) *Scheduler {
	s := &Scheduler{Clock: clock, Logger: logger}
	if deps.Performance != nil {
		s.Jobs = append(s.Jobs, Job{Name: "performance", Interval: orDefault(cfg.PerformanceInterval, 10*time.Second), Run: deps.Performance.UpdateOnce})
	}
	if deps.Risk != nil {
		s.Jobs = append(s.Jobs, Job{Name: "risk", Interval: orDefault(cfg.RiskInterval, 5*time.Second), Run: deps.Risk.Check})
	}
	if deps.Alerts != nil {
		s.Jobs = append(s.Jobs, Job{Name: "alerts", Interval: orDefault(cfg.AlertsInterval, 10*time.Second), Run: deps.Alerts.CheckAll})
	}
	if deps.Housekeeper != nil {
		s.Jobs = append(s.Jobs, Job{Name: "cleanup", Interval: orDefault(cfg.CleanupInterval, 300*time.Second), Run: deps.Housekeeper.Run})
	}
	return s
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

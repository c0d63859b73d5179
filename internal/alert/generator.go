package alert

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"propdesk/internal/analytics"
	"propdesk/internal/audit"
	"propdesk/internal/models"
	"propdesk/internal/repository"
)

// Generator runs the alerts check over every account.
type Generator struct {
	Repo       repository.Repository
	Analyzer   *analytics.Analyzer
	Store      *Store
	Notifier   Notifier
	Events     audit.Sink
	Thresholds analytics.Thresholds
	MinTrades  int
	Clock      clockwork.Clock
	Logger     *zap.Logger
	// Timeout bounds each notification call.
	Timeout time.Duration
	// Notify gates outbound notifications; nil means on.
	Notify func(ctx context.Context) bool
}

func (g *Generator) CheckAll(ctx context.Context) error {
	accounts, err := g.Repo.ListAccounts(ctx, repository.ListAccountsParams{})
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := g.CheckAccount(ctx, acc); err != nil && g.Logger != nil {
			g.Logger.Warn("alerts check failed", zap.String("account_id", acc.ID), zap.Error(err))
		}
	}
	return nil
}

// CheckAccount refreshes the account's alert set and returns the alerts it
// raised for the first time.
func (g *Generator) CheckAccount(ctx context.Context, acc models.Account) ([]models.Alert, error) {
	m, err := g.Analyzer.ComputeMetrics(ctx, acc)
	if err != nil {
		return nil, err
	}
	derived := Derive(acc, m, g.Thresholds, g.minTrades(), g.now())
	added := g.Store.Replace(acc.ID, derived)
	for _, a := range added {
		audit.Emit(g.Events, g.Logger, audit.Event{
			Action:    audit.ActionAlertRaised,
			Level:     levelFor(a.Severity),
			UserID:    acc.OwnerID,
			AccountID: acc.ID,
			Details: map[string]any{
				"id":       a.ID,
				"kind":     a.Kind,
				"severity": string(a.Severity),
				"title":    a.Title,
				"message":  a.Message,
			},
			At: a.CreatedAt,
		})
		g.notify(ctx, a)
	}
	return added, nil
}

func (g *Generator) notify(ctx context.Context, a models.Alert) {
	if g.Notifier == nil || (g.Notify != nil && !g.Notify(ctx)) {
		return
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	nctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := g.Notifier.Notify(nctx, a); err != nil && g.Logger != nil {
		g.Logger.Debug("alert notification failed", zap.String("account_id", a.AccountID), zap.String("kind", a.Kind), zap.Error(err))
	}
}

func (g *Generator) minTrades() int {
	if g.MinTrades <= 0 {
		return 10
	}
	return g.MinTrades
}

func (g *Generator) now() time.Time {
	if g.Clock == nil {
		return time.Now().UTC()
	}
	return g.Clock.Now().UTC()
}

func levelFor(s models.AlertSeverity) string {
	switch s {
	case models.AlertError:
		return audit.LevelError
	case models.AlertWarning:
		return audit.LevelWarn
	}
	return audit.LevelInfo
}

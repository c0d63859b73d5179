// Package alert derives account alerts, keeps the current set per account
// and pushes newly raised alerts to notification channels.
package alert

import (
	"time"

	"github.com/shopspring/decimal"

	"propdesk/internal/analytics"
	"propdesk/internal/models"
)

// Alert kinds. Performance breaches use KindPerformancePrefix + metric.
const (
	KindAccountFailed     = "account_failed"
	KindHighDrawdown      = "high_drawdown"
	KindPerformancePrefix = "performance_"
)

// DrawdownFloor is the equity/balance ratio below which a warning is raised.
const DrawdownFloor = 0.5

// Derive is a pure function of the account and its metrics.
func Derive(acc models.Account, m analytics.Metrics, th analytics.Thresholds, minTrades int, now time.Time) []models.Alert {
	var out []models.Alert
	add := func(kind string, sev models.AlertSeverity, title, msg string) {
		out = append(out, models.Alert{
			AccountID: acc.ID,
			Kind:      kind,
			Severity:  sev,
			Title:     title,
			Message:   msg,
			CreatedAt: now,
		})
	}

	if acc.Status == models.AccountFailed {
		add(KindAccountFailed, models.AlertError, "Account failed",
			"The account did not meet the evaluation criteria")
	}
	if acc.Balance > 0 && acc.Equity < acc.Balance*DrawdownFloor {
		pct := decimal.NewFromInt(1).
			Sub(decimal.NewFromFloat(acc.Equity).Div(decimal.NewFromFloat(acc.Balance))).
			Mul(decimal.NewFromInt(100))
		add(KindHighDrawdown, models.AlertWarning, "High drawdown",
			"Account drawdown is "+pct.StringFixed(2)+"%")
	}
	if m.TotalTrades >= minTrades {
		for _, b := range th.Evaluate(m) {
			add(KindPerformancePrefix+b.Metric, models.AlertInfo, "Performance threshold", b.Message)
		}
	}
	return out
}

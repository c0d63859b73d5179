package analytics

import (
	"time"

	"propdesk/internal/models"
)

type CurvePoint struct {
	Date   string    `json:"date"`
	At     time.Time `json:"at"`
	Equity float64   `json:"equity"`
	Profit float64   `json:"profit"`
}

// EquityCurve starts at the account creation with its balance and adds one
// point per closed trade in exit order.
func EquityCurve(acc models.Account, trades []models.Trade) []CurvePoint {
	closed := ClosedByExit(trades)
	out := make([]CurvePoint, 0, len(closed)+1)
	equity := acc.Balance
	out = append(out, point(acc.CreatedAt, equity, 0))
	for _, t := range closed {
		p := t.ProfitValue()
		equity += p
		out = append(out, point(exitTime(t), equity, p))
	}
	return out
}

func point(at time.Time, equity, profit float64) CurvePoint {
	at = at.UTC()
	return CurvePoint{Date: at.Format("2006-01-02"), At: at, Equity: equity, Profit: profit}
}

func exitTime(t models.Trade) time.Time {
	if t.ExitTime != nil {
		return *t.ExitTime
	}
	return t.UpdatedAt
}

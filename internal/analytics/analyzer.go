package analytics

import (
	"context"

	"propdesk/internal/apperr"
	"propdesk/internal/models"
	"propdesk/internal/repository"
)

// Analyzer loads closed trades and feeds them to Compute.
type Analyzer struct {
	Repo repository.Repository
}

func (a *Analyzer) ClosedTrades(ctx context.Context, accountID string) ([]models.Trade, error) {
	items, err := a.Repo.ListTrades(ctx, repository.ListTradesParams{
		AccountID: accountID,
		Statuses:  []models.TradeStatus{models.TradeClosed},
		OrderBy:   repository.OrderByExitTime,
		Asc:       true,
	})
	if err != nil {
		return nil, apperr.Internal("list closed trades", err)
	}
	return items, nil
}

func (a *Analyzer) ComputeMetrics(ctx context.Context, acc models.Account) (Metrics, error) {
	closed, err := a.ClosedTrades(ctx, acc.ID)
	if err != nil {
		return Metrics{}, err
	}
	return Compute(acc.Balance, closed), nil
}

func (a *Analyzer) Curve(ctx context.Context, acc models.Account) ([]CurvePoint, error) {
	closed, err := a.ClosedTrades(ctx, acc.ID)
	if err != nil {
		return nil, err
	}
	return EquityCurve(acc, closed), nil
}

package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"propdesk/internal/alert"
	"propdesk/internal/analytics"
	"propdesk/internal/apperr"
	"propdesk/internal/auth"
	"propdesk/internal/cache"
	"propdesk/internal/ledger"
	"propdesk/internal/models"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
)

const recentTradesLimit = 10

// DashboardService serves the read-side aggregates. Per-account results are
// cached and dropped by Invalidate whenever the account or its trades change.
type DashboardService struct {
	Repo       repository.Repository
	Accounts   *ledger.AccountLedger
	Trades     *ledger.TradeLedger
	Analyzer   *analytics.Analyzer
	Risk       *risk.Validator
	AlertStore *alert.Store
	Cache      cache.Store
	Logger     *zap.Logger

	AccountTTL     time.Duration
	PerformanceTTL time.Duration
}

type Dashboard struct {
	Account       *models.Account   `json:"account"`
	Performance   analytics.Metrics `json:"performance"`
	RecentTrades  []models.Trade    `json:"recentTrades"`
	OpenPositions []models.Trade    `json:"openPositions"`
	Strategies    []models.Strategy `json:"strategies"`
	Alerts        []models.Alert    `json:"alerts"`
	Risk          risk.Snapshot     `json:"risk"`
}

type Overview struct {
	TotalAccounts  int     `json:"totalAccounts"`
	ActiveAccounts int     `json:"activeAccounts"`
	TotalBalance   float64 `json:"totalBalance"`
	TotalEquity    float64 `json:"totalEquity"`
	TotalProfit    float64 `json:"totalProfit"`
	TotalReturn    float64 `json:"totalReturn"`
	TotalTrades    int     `json:"totalTrades"`
	WinRate        float64 `json:"winRate"`
}

func dashboardKey(id string) string { return "dashboard:" + id }
func metricsKey(id string) string   { return "metrics:" + id }
func chartKey(id string) string     { return "chart:" + id }

func (s *DashboardService) Dashboard(ctx context.Context, actor auth.Identity, accountID string) (*Dashboard, error) {
	acc, err := s.Accounts.Get(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}
	out := &Dashboard{}
	if !s.cached(ctx, dashboardKey(acc.ID), out) {
		if out, err = s.buildDashboard(ctx, *acc); err != nil {
			return nil, err
		}
		s.store(ctx, dashboardKey(acc.ID), out, s.AccountTTL)
	}
	out.Account = acc
	out.Alerts = s.alerts(acc.ID)
	return out, nil
}

func (s *DashboardService) buildDashboard(ctx context.Context, acc models.Account) (*Dashboard, error) {
	metrics, err := s.metrics(ctx, acc)
	if err != nil {
		return nil, err
	}
	recent, err := s.Repo.ListTrades(ctx, repository.ListTradesParams{AccountID: acc.ID, Limit: recentTradesLimit})
	if err != nil {
		return nil, apperr.Internal("list recent trades", err)
	}
	open, err := s.Trades.OpenTrades(ctx, acc.ID)
	if err != nil {
		return nil, err
	}
	strategies, err := s.Repo.ListStrategies(ctx, repository.ListStrategiesParams{AccountID: acc.ID})
	if err != nil {
		return nil, apperr.Internal("list strategies", err)
	}
	snap, err := s.Risk.Snapshot(ctx, acc.ID)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Performance:   metrics,
		RecentTrades:  recent,
		OpenPositions: open,
		Strategies:    strategies,
		Risk:          snap,
	}, nil
}

// Overview sums every account the actor can see.
func (s *DashboardService) Overview(ctx context.Context, actor auth.Identity) (*Overview, error) {
	accounts, err := s.Accounts.List(ctx, actor)
	if err != nil {
		return nil, err
	}
	balance, equity := decimal.Zero, decimal.Zero
	out := &Overview{TotalAccounts: len(accounts)}
	wins := 0
	for _, acc := range accounts {
		if acc.Status == models.AccountTrading {
			out.ActiveAccounts++
		}
		balance = balance.Add(decimal.NewFromFloat(acc.Balance))
		equity = equity.Add(decimal.NewFromFloat(acc.Equity))
		closed, err := s.Analyzer.ClosedTrades(ctx, acc.ID)
		if err != nil {
			return nil, err
		}
		out.TotalTrades += len(closed)
		for _, t := range closed {
			if t.ProfitValue() > 0 {
				wins++
			}
		}
	}
	profit := equity.Sub(balance)
	out.TotalBalance = balance.Round(2).InexactFloat64()
	out.TotalEquity = equity.Round(2).InexactFloat64()
	out.TotalProfit = profit.Round(2).InexactFloat64()
	if balance.IsPositive() {
		out.TotalReturn = profit.Div(balance).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	if out.TotalTrades > 0 {
		out.WinRate = decimal.NewFromInt(int64(wins)).
			Div(decimal.NewFromInt(int64(out.TotalTrades))).
			Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	return out, nil
}

func (s *DashboardService) PerformanceChart(ctx context.Context, actor auth.Identity, accountID string) ([]analytics.CurvePoint, error) {
	acc, err := s.Accounts.Get(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}
	var points []analytics.CurvePoint
	if s.cached(ctx, chartKey(acc.ID), &points) {
		return points, nil
	}
	if points, err = s.Analyzer.Curve(ctx, *acc); err != nil {
		return nil, err
	}
	s.store(ctx, chartKey(acc.ID), points, s.PerformanceTTL)
	return points, nil
}

func (s *DashboardService) Metrics(ctx context.Context, actor auth.Identity, accountID string) (analytics.Metrics, error) {
	acc, err := s.Accounts.Get(ctx, actor, accountID)
	if err != nil {
		return analytics.Metrics{}, err
	}
	return s.metrics(ctx, *acc)
}

func (s *DashboardService) Alerts(ctx context.Context, actor auth.Identity, accountID string) ([]models.Alert, error) {
	acc, err := s.Accounts.Get(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}
	return s.alerts(acc.ID), nil
}

func (s *DashboardService) MarkAlertRead(ctx context.Context, actor auth.Identity, accountID, alertID string) error {
	acc, err := s.Accounts.Get(ctx, actor, accountID)
	if err != nil {
		return err
	}
	if s.AlertStore == nil || !s.AlertStore.MarkRead(acc.ID, alertID) {
		return apperr.NotFound("ALERT_NOT_FOUND", "alert not found")
	}
	return nil
}

// Invalidate drops the cached aggregates of an account. It matches
// ledger.ChangeFunc.
func (s *DashboardService) Invalidate(ctx context.Context, accountID string) {
	if s.Cache == nil {
		return
	}
	for _, key := range []string{dashboardKey(accountID), metricsKey(accountID), chartKey(accountID)} {
		if err := s.Cache.Delete(ctx, key); err != nil && s.Logger != nil {
			s.Logger.Debug("cache delete failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *DashboardService) metrics(ctx context.Context, acc models.Account) (analytics.Metrics, error) {
	var m analytics.Metrics
	if s.cached(ctx, metricsKey(acc.ID), &m) {
		return m, nil
	}
	m, err := s.Analyzer.ComputeMetrics(ctx, acc)
	if err != nil {
		return analytics.Metrics{}, err
	}
	s.store(ctx, metricsKey(acc.ID), m, s.PerformanceTTL)
	return m, nil
}

func (s *DashboardService) alerts(accountID string) []models.Alert {
	if s.AlertStore == nil {
		return []models.Alert{}
	}
	return s.AlertStore.List(accountID)
}

func (s *DashboardService) cached(ctx context.Context, key string, dst any) bool {
	ok, err := cache.GetJSON(ctx, s.Cache, key, dst)
	if err != nil && s.Logger != nil {
		s.Logger.Debug("cache read failed", zap.String("key", key), zap.Error(err))
	}
	return ok
}

func (s *DashboardService) store(ctx context.Context, key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := cache.SetJSON(ctx, s.Cache, key, v, ttl); err != nil && s.Logger != nil {
		s.Logger.Debug("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

package ledger

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"propdesk/internal/analytics"
	"propdesk/internal/apperr"
	"propdesk/internal/audit"
	"propdesk/internal/auth"
	"propdesk/internal/keylock"
	"propdesk/internal/models"
	"propdesk/internal/repository"
)

const defaultConfidence = 0.5

type TradeLedger struct {
	Repo     repository.Repository
	Locks    *keylock.Locker
	Clock    clockwork.Clock
	Events   audit.Sink
	Logger   *zap.Logger
	Accounts *AccountLedger

	OnChange ChangeFunc
}

type CreateTradeInput struct {
	AccountID  string              `json:"accountId"`
	Symbol     string              `json:"symbol"`
	Side       models.TradeSide    `json:"type"`
	EntryPrice float64             `json:"entryPrice"`
	Volume     float64             `json:"volume"`
	StopLoss   float64             `json:"stopLoss"`
	TakeProfit float64             `json:"takeProfit"`
	Strategy   models.StrategyType `json:"strategy"`
	Confidence *float64            `json:"confidence,omitempty"`
}

type UpdateTradeInput struct {
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
}

type TradeFilter struct {
	AccountID string
	Status    models.TradeStatus
	Limit     int
}

// TradeStats summarizes the closed trades of an account.
type TradeStats struct {
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	WinRate       float64 `json:"winRate"`
	TotalProfit   float64 `json:"totalProfit"`
	AverageWin    float64 `json:"averageWin"`
	AverageLoss   float64 `json:"averageLoss"`
	ProfitFactor  float64 `json:"profitFactor"`
}

func tradeKey(id string) string { return "trade:" + id }

// RiskReward is the take-profit distance over the stop-loss distance.
func RiskReward(entry, stopLoss, takeProfit float64) (float64, bool) {
	risk := math.Abs(entry - stopLoss)
	if risk == 0 {
		return 0, false
	}
	return math.Abs(takeProfit-entry) / risk, true
}

// Create validates a trade request and records it as pending.
func (l *TradeLedger) Create(ctx context.Context, actor auth.Identity, in CreateTradeInput) (*models.Trade, error) {
	in.AccountID = strings.TrimSpace(in.AccountID)
	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	in.Side = models.TradeSide(strings.ToUpper(strings.TrimSpace(string(in.Side))))

	missing := map[string]string{}
	if in.AccountID == "" {
		missing["accountId"] = "required"
	}
	if in.Symbol == "" {
		missing["symbol"] = "required"
	}
	if in.Side == "" {
		missing["type"] = "required"
	}
	for name, v := range map[string]float64{
		"entryPrice": in.EntryPrice,
		"volume":     in.Volume,
		"stopLoss":   in.StopLoss,
		"takeProfit": in.TakeProfit,
	} {
		if !(v > 0) || math.IsInf(v, 0) {
			missing[name] = "must be > 0"
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("MISSING_FIELDS", "missing required fields", missing)
	}
	if !IsTradingSymbol(in.Symbol) {
		return nil, apperr.Validation("INVALID_SYMBOL", "invalid symbol", map[string]string{"symbol": in.Symbol})
	}
	if !in.Side.Valid() {
		return nil, apperr.Validation("INVALID_TRADE_TYPE", "trade type must be BUY or SELL", map[string]string{"type": string(in.Side)})
	}
	if !in.Strategy.Valid() {
		return nil, apperr.Validation("INVALID_STRATEGY", "invalid strategy", map[string]string{"strategy": string(in.Strategy)})
	}
	confidence := defaultConfidence
	if in.Confidence != nil {
		confidence = *in.Confidence
		if confidence < 0 || confidence > 1 || math.IsNaN(confidence) {
			return nil, apperr.Validation("INVALID_CONFIDENCE", "confidence must be within [0,1]", map[string]string{"confidence": "out of range"})
		}
	}
	rr, ok := RiskReward(in.EntryPrice, in.StopLoss, in.TakeProfit)
	if !ok {
		return nil, apperr.Validation("INVALID_STOP_LOSS", "stop loss cannot equal entry price", map[string]string{"stopLoss": "equals entryPrice"})
	}

	// The account lock keeps creation from racing an account delete.
	unlock := l.Accounts.lock(in.AccountID)
	defer unlock()

	acc, err := l.Accounts.Get(ctx, actor, in.AccountID)
	if err != nil {
		return nil, err
	}
	if acc.Status == models.AccountFailed {
		return nil, apperr.InvalidState("ACCOUNT_FAILED", "account has failed", string(acc.Status))
	}

	now := l.now()
	trade := &models.Trade{
		ID:          uuid.NewString(),
		AccountID:   acc.ID,
		Symbol:      in.Symbol,
		Side:        in.Side,
		Status:      models.TradePending,
		EntryPrice:  in.EntryPrice,
		EntryTime:   now,
		Volume:      in.Volume,
		StopLoss:    in.StopLoss,
		TakeProfit:  in.TakeProfit,
		StrategyTag: in.Strategy,
		Confidence:  confidence,
		RiskReward:  rr,
		CreatedAt:   now,
	}
	if err := l.Repo.InsertTrade(ctx, trade); err != nil {
		return nil, apperr.Internal("insert trade", err)
	}
	l.emit(audit.ActionTradeCreated, actor, trade, map[string]any{"symbol": trade.Symbol, "type": string(trade.Side)})
	return trade, nil
}

// Open marks a pending trade as filled. A positive fillPrice replaces the
// requested entry price.
func (l *TradeLedger) Open(ctx context.Context, actor auth.Identity, id string, fillPrice float64, ticket string) (*models.Trade, error) {
	unlock := l.lock(id)
	defer unlock()

	trade, err := l.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if trade.Status != models.TradePending {
		return nil, apperr.InvalidState("TRADE_NOT_PENDING", "only pending trades can be opened", string(trade.Status))
	}
	if fillPrice > 0 {
		trade.EntryPrice = fillPrice
	}
	trade.Status = models.TradeOpen
	trade.EntryTime = l.now()
	if t := strings.TrimSpace(ticket); t != "" {
		trade.BrokerTicket = t
	}
	if err := l.Repo.SaveTrade(ctx, trade); err != nil {
		return nil, apperr.Internal("save trade", err)
	}
	l.emit(audit.ActionTradeOpened, actor, trade, map[string]any{"entryPrice": trade.EntryPrice})
	l.changed(ctx, trade.AccountID)
	return trade, nil
}

// Close realizes the PnL of an open trade and credits it to the account.
// The trade lock is taken before the account lock, never the reverse.
func (l *TradeLedger) Close(ctx context.Context, actor auth.Identity, id string, exitPrice float64, exitTime *time.Time) (*models.Trade, error) {
	if !(exitPrice > 0) {
		return nil, apperr.Validation("MISSING_EXIT_PRICE", "exit price is required", map[string]string{"exitPrice": "must be > 0"})
	}

	unlock := l.lock(id)
	defer unlock()

	trade, err := l.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	switch trade.Status {
	case models.TradeOpen:
	case models.TradeClosed, models.TradeCancelled:
		return nil, apperr.InvalidState("TRADE_ALREADY_CLOSED", "trade is already closed", string(trade.Status))
	default:
		return nil, apperr.InvalidState("TRADE_NOT_OPEN", "trade is not open", string(trade.Status))
	}

	at := l.now()
	if exitTime != nil && !exitTime.IsZero() {
		at = exitTime.UTC()
	}
	profit, pct := ComputeProfit(trade.Side, trade.EntryPrice, exitPrice, trade.Volume)
	prev := *trade
	trade.Status = models.TradeClosed
	trade.ExitPrice = &exitPrice
	trade.ExitTime = &at
	trade.Profit = &profit
	trade.ProfitPercent = &pct
	if err := l.Repo.SaveTrade(ctx, trade); err != nil {
		return nil, apperr.Internal("save trade", err)
	}

	if _, err := l.Accounts.ApplyEquityDelta(ctx, trade.AccountID, profit); err != nil {
		// Reopen the trade so the close can be retried.
		rerr := l.Repo.SaveTrade(ctx, &prev)
		if l.Logger != nil {
			fields := []zap.Field{
				zap.String("trade_id", trade.ID),
				zap.String("account_id", trade.AccountID),
				zap.Float64("profit", profit),
				zap.Error(err),
			}
			if rerr != nil {
				fields = append(fields, zap.NamedError("restore_error", rerr))
			}
			l.Logger.Error("apply equity delta failed", fields...)
		}
		return nil, err
	}
	l.emit(audit.ActionTradeClosed, actor, trade, map[string]any{"exitPrice": exitPrice, "profit": profit})
	l.changed(ctx, trade.AccountID)
	return trade, nil
}

// Cancel drops a pending trade, e.g. when the broker rejected the order.
func (l *TradeLedger) Cancel(ctx context.Context, actor auth.Identity, id string) (*models.Trade, error) {
	unlock := l.lock(id)
	defer unlock()

	trade, err := l.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if trade.Status != models.TradePending {
		return nil, apperr.InvalidState("TRADE_NOT_PENDING", "only pending trades can be cancelled", string(trade.Status))
	}
	trade.Status = models.TradeCancelled
	if err := l.Repo.SaveTrade(ctx, trade); err != nil {
		return nil, apperr.Internal("save trade", err)
	}
	l.emit(audit.ActionTradeCancelled, actor, trade, nil)
	l.changed(ctx, trade.AccountID)
	return trade, nil
}

// Update moves the stops of a live trade. The risk/reward computed at
// creation is kept.
func (l *TradeLedger) Update(ctx context.Context, actor auth.Identity, id string, in UpdateTradeInput) (*models.Trade, error) {
	bad := map[string]string{}
	if in.StopLoss != nil && !(*in.StopLoss > 0) {
		bad["stopLoss"] = "must be > 0"
	}
	if in.TakeProfit != nil && !(*in.TakeProfit > 0) {
		bad["takeProfit"] = "must be > 0"
	}
	if len(bad) > 0 {
		return nil, apperr.Validation("INVALID_FIELDS", "invalid stop levels", bad)
	}

	unlock := l.lock(id)
	defer unlock()

	trade, err := l.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if trade.Status.Terminal() {
		return nil, apperr.InvalidState("TRADE_ALREADY_CLOSED", "trade is already closed", string(trade.Status))
	}
	if in.StopLoss != nil {
		trade.StopLoss = *in.StopLoss
	}
	if in.TakeProfit != nil {
		trade.TakeProfit = *in.TakeProfit
	}
	if err := l.Repo.SaveTrade(ctx, trade); err != nil {
		return nil, apperr.Internal("save trade", err)
	}
	l.emit(audit.ActionTradeUpdated, actor, trade, map[string]any{"stopLoss": trade.StopLoss, "takeProfit": trade.TakeProfit})
	return trade, nil
}

func (l *TradeLedger) Get(ctx context.Context, actor auth.Identity, id string) (*models.Trade, error) {
	return l.loadOwned(ctx, actor, id)
}

// List returns trades newest first. Without an account filter a regular user
// sees the trades of all their accounts.
func (l *TradeLedger) List(ctx context.Context, actor auth.Identity, f TradeFilter) ([]models.Trade, error) {
	params := repository.ListTradesParams{Limit: f.Limit}
	if f.Status != "" {
		params.Statuses = []models.TradeStatus{f.Status}
	}
	if id := strings.TrimSpace(f.AccountID); id != "" {
		if _, err := l.Accounts.Get(ctx, actor, id); err != nil {
			return nil, err
		}
		params.AccountID = id
		return l.list(ctx, params)
	}
	if actor.IsAdmin() {
		return l.list(ctx, params)
	}

	accounts, err := l.Accounts.List(ctx, actor)
	if err != nil {
		return nil, err
	}
	out := make([]models.Trade, 0)
	for _, acc := range accounts {
		params.AccountID = acc.ID
		items, err := l.list(ctx, params)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// OpenTrades lists the open trades of an account for the schedulers.
func (l *TradeLedger) OpenTrades(ctx context.Context, accountID string) ([]models.Trade, error) {
	return l.list(ctx, repository.ListTradesParams{
		AccountID: accountID,
		Statuses:  []models.TradeStatus{models.TradeOpen},
	})
}

func (l *TradeLedger) Stats(ctx context.Context, actor auth.Identity, accountID string) (*TradeStats, error) {
	acc, err := l.Accounts.Get(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}
	closed, err := l.list(ctx, repository.ListTradesParams{
		AccountID: acc.ID,
		Statuses:  []models.TradeStatus{models.TradeClosed},
		OrderBy:   repository.OrderByExitTime,
		Asc:       true,
	})
	if err != nil {
		return nil, err
	}
	m := analytics.Compute(acc.Balance, closed)
	return &TradeStats{
		TotalTrades:   m.TotalTrades,
		WinningTrades: m.WinningTrades,
		LosingTrades:  m.LosingTrades,
		WinRate:       m.WinRate,
		TotalProfit:   m.TotalProfit,
		AverageWin:    m.AverageWin,
		AverageLoss:   m.AverageLoss,
		ProfitFactor:  m.ProfitFactor,
	}, nil
}

// ComputeProfit returns the realized profit and the percent move for a close
// at exitPrice.
func ComputeProfit(side models.TradeSide, entry, exit, volume float64) (profit, percent float64) {
	sign := side.Sign()
	profit = (exit - entry) * volume * sign
	if entry != 0 {
		percent = (exit - entry) / entry * 100 * sign
	}
	return profit, percent
}

func (l *TradeLedger) list(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	items, err := l.Repo.ListTrades(ctx, params)
	if err != nil {
		return nil, apperr.Internal("list trades", err)
	}
	return items, nil
}

func (l *TradeLedger) loadOwned(ctx context.Context, actor auth.Identity, id string) (*models.Trade, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.NotFound("TRADE_NOT_FOUND", "trade not found")
	}
	trade, err := l.Repo.GetTrade(ctx, id)
	if err != nil {
		return nil, apperr.Internal("get trade", err)
	}
	if trade == nil {
		return nil, apperr.NotFound("TRADE_NOT_FOUND", "trade not found")
	}
	if actor.IsAdmin() {
		return trade, nil
	}
	acc, err := l.Repo.GetAccount(ctx, trade.AccountID)
	if err != nil {
		return nil, apperr.Internal("get account", err)
	}
	if acc == nil || !actor.CanAccess(acc.OwnerID) {
		return nil, apperr.Forbidden()
	}
	return trade, nil
}

func (l *TradeLedger) lock(id string) func() {
	if l.Locks == nil {
		return func() {}
	}
	return l.Locks.Lock(tradeKey(strings.TrimSpace(id)))
}

func (l *TradeLedger) now() time.Time {
	return nowFrom(l.Clock)
}

func (l *TradeLedger) emit(action string, actor auth.Identity, t *models.Trade, details map[string]any) {
	audit.Emit(l.Events, l.Logger, audit.Event{
		Action:    action,
		UserID:    actor.UserID,
		AccountID: t.AccountID,
		TradeID:   t.ID,
		Details:   details,
		At:        l.now(),
	})
}

func (l *TradeLedger) changed(ctx context.Context, accountID string) {
	if l.OnChange != nil {
		l.OnChange(ctx, accountID)
	}
}

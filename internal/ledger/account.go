// Package ledger owns accounts and trades. Every mutation runs under the
// entity's key lock and is a single repository write, so a failed call leaves
// no partial state behind.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"propdesk/internal/apperr"
	"propdesk/internal/audit"
	"propdesk/internal/auth"
	"propdesk/internal/keylock"
	"propdesk/internal/models"
	"propdesk/internal/repository"
)

// Event drives the account status machine.
type Event string

const (
	EventVerify       Event = "verify"
	EventStartTrading Event = "start_trading"
	EventFail         Event = "fail"
	EventPause        Event = "pause"
)

// ChangeFunc is called after an account's persisted state changed.
type ChangeFunc func(ctx context.Context, accountID string)

type AccountLedger struct {
	Repo   repository.Repository
	Locks  *keylock.Locker
	Clock  clockwork.Clock
	Events audit.Sink
	Logger *zap.Logger

	OnChange ChangeFunc
}

type CreateAccountInput struct {
	Name           string  `json:"name"`
	PropFirm       string  `json:"propFirm"`
	InitialBalance float64 `json:"initialBalance"`
}

type UpdateAccountInput struct {
	Name   *string               `json:"name,omitempty"`
	Status *models.AccountStatus `json:"status,omitempty"`
}

func accountKey(id string) string { return "account:" + id }

func (l *AccountLedger) Create(ctx context.Context, actor auth.Identity, in CreateAccountInput) (*models.Account, error) {
	name := strings.TrimSpace(in.Name)
	missing := map[string]string{}
	if name == "" {
		missing["name"] = "required"
	}
	if strings.TrimSpace(in.PropFirm) == "" {
		missing["propFirm"] = "required"
	}
	if in.InitialBalance == 0 {
		missing["initialBalance"] = "required"
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("MISSING_FIELDS", "missing required fields", missing)
	}
	firm, ok := LookupPropFirm(in.PropFirm)
	if !ok {
		return nil, apperr.Validation("INVALID_PROP_FIRM", "unknown prop firm", map[string]string{"propFirm": in.PropFirm})
	}
	if in.InitialBalance < MinInitialBalance {
		return nil, apperr.Validation("INVALID_BALANCE", "initial balance must be at least 1000", map[string]string{"initialBalance": "min 1000"})
	}

	now := l.now()
	acc := &models.Account{
		ID:                uuid.NewString(),
		OwnerID:           actor.UserID,
		Name:              name,
		Balance:           in.InitialBalance,
		Equity:            in.InitialBalance,
		Margin:            0,
		FreeMargin:        in.InitialBalance,
		Status:            models.AccountEvaluation,
		PropFirm:          firm.Key,
		MaxDrawdownPct:    firm.MaxDrawdownPct,
		DailyLossLimitPct: firm.DailyLossLimitPct,
		ProfitSplitPct:    firm.ProfitSplitPct,
		CreatedAt:         now,
	}
	if err := l.Repo.InsertAccount(ctx, acc); err != nil {
		return nil, apperr.Internal("insert account", err)
	}
	l.emit(audit.ActionAccountCreated, actor, acc.ID, map[string]any{"propFirm": firm.Key, "balance": acc.Balance})
	return acc, nil
}

// Get returns the account if actor may see it.
func (l *AccountLedger) Get(ctx context.Context, actor auth.Identity, id string) (*models.Account, error) {
	acc, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(acc.OwnerID) {
		return nil, apperr.Forbidden()
	}
	return acc, nil
}

// List returns the actor's accounts; admins see all of them.
func (l *AccountLedger) List(ctx context.Context, actor auth.Identity) ([]models.Account, error) {
	params := repository.ListAccountsParams{}
	if !actor.IsAdmin() {
		params.OwnerID = actor.UserID
	}
	items, err := l.Repo.ListAccounts(ctx, params)
	if err != nil {
		return nil, apperr.Internal("list accounts", err)
	}
	return items, nil
}

// ListActive returns accounts in the trading state.
func (l *AccountLedger) ListActive(ctx context.Context) ([]models.Account, error) {
	items, err := l.Repo.ListAccounts(ctx, repository.ListAccountsParams{
		Statuses: []models.AccountStatus{models.AccountTrading},
	})
	if err != nil {
		return nil, apperr.Internal("list active accounts", err)
	}
	return items, nil
}

func (l *AccountLedger) Transition(ctx context.Context, actor auth.Identity, id string, ev Event) (*models.Account, error) {
	unlock := l.lock(id)
	defer unlock()

	acc, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(acc.OwnerID) {
		return nil, apperr.Forbidden()
	}
	next, err := nextStatus(acc.Status, ev)
	if err != nil {
		return nil, err
	}
	acc.Status = next
	if err := l.Repo.SaveAccount(ctx, acc); err != nil {
		return nil, apperr.Internal("save account", err)
	}
	l.emit(transitionAction(ev), actor, acc.ID, map[string]any{"status": string(next)})
	l.changed(ctx, acc.ID)
	return acc, nil
}

// Update renames an account and/or moves it through the status machine in
// one write. A status change obeys the same guards as Transition.
func (l *AccountLedger) Update(ctx context.Context, actor auth.Identity, id string, in UpdateAccountInput) (*models.Account, error) {
	var ev Event
	if in.Status != nil {
		var err error
		if ev, err = eventForStatus(*in.Status); err != nil {
			return nil, err
		}
	}
	var name string
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperr.Validation("MISSING_FIELDS", "name cannot be empty", map[string]string{"name": "required"})
		}
	}

	unlock := l.lock(id)
	defer unlock()

	acc, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(acc.OwnerID) {
		return nil, apperr.Forbidden()
	}
	if ev != "" && *in.Status != acc.Status {
		next, err := nextStatus(acc.Status, ev)
		if err != nil {
			return nil, err
		}
		acc.Status = next
	}
	if name != "" {
		acc.Name = name
	}
	if err := l.Repo.SaveAccount(ctx, acc); err != nil {
		return nil, apperr.Internal("save account", err)
	}
	l.emit(audit.ActionAccountUpdated, actor, acc.ID, map[string]any{"status": string(acc.Status), "name": acc.Name})
	l.changed(ctx, acc.ID)
	return acc, nil
}

// Delete removes an account and its strategies. Accounts with pending or
// open trades cannot be deleted.
func (l *AccountLedger) Delete(ctx context.Context, actor auth.Identity, id string) error {
	unlock := l.lock(id)
	defer unlock()

	acc, err := l.load(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanAccess(acc.OwnerID) {
		return apperr.Forbidden()
	}
	live, err := l.Repo.CountTrades(ctx, repository.ListTradesParams{
		AccountID: acc.ID,
		Statuses:  []models.TradeStatus{models.TradePending, models.TradeOpen},
	})
	if err != nil {
		return apperr.Internal("count trades", err)
	}
	if live > 0 {
		return apperr.InvalidState("ACCOUNT_HAS_OPEN_TRADES", "account has pending or open trades", string(acc.Status))
	}
	if _, err := l.Repo.DeleteStrategiesByAccount(ctx, acc.ID); err != nil {
		return apperr.Internal("delete strategies", err)
	}
	if err := l.Repo.DeleteAccount(ctx, acc.ID); err != nil {
		return apperr.Internal("delete account", err)
	}
	l.emit(audit.ActionAccountDeleted, actor, acc.ID, nil)
	l.changed(ctx, acc.ID)
	return nil
}

// ApplyEquityDelta adds delta to equity and free margin and stamps the last
// trade time. Only the trade ledger calls it.
func (l *AccountLedger) ApplyEquityDelta(ctx context.Context, id string, delta float64) (*models.Account, error) {
	unlock := l.lock(id)
	defer unlock()

	acc, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := l.now()
	acc.Equity += delta
	acc.FreeMargin = acc.Equity - acc.Margin
	acc.LastTradeAt = &now
	if err := l.Repo.SaveAccount(ctx, acc); err != nil {
		return nil, apperr.Internal("save account", err)
	}
	l.changed(ctx, acc.ID)
	return acc, nil
}

func (l *AccountLedger) load(ctx context.Context, id string) (*models.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.NotFound("ACCOUNT_NOT_FOUND", "account not found")
	}
	acc, err := l.Repo.GetAccount(ctx, id)
	if err != nil {
		return nil, apperr.Internal("get account", err)
	}
	if acc == nil {
		return nil, apperr.NotFound("ACCOUNT_NOT_FOUND", "account not found")
	}
	return acc, nil
}

func (l *AccountLedger) lock(id string) func() {
	if l.Locks == nil {
		return func() {}
	}
	return l.Locks.Lock(accountKey(strings.TrimSpace(id)))
}

func (l *AccountLedger) now() time.Time {
	return nowFrom(l.Clock)
}

func (l *AccountLedger) emit(action string, actor auth.Identity, accountID string, details map[string]any) {
	audit.Emit(l.Events, l.Logger, audit.Event{
		Action:    action,
		UserID:    actor.UserID,
		AccountID: accountID,
		Details:   details,
		At:        l.now(),
	})
}

func (l *AccountLedger) changed(ctx context.Context, accountID string) {
	if l.OnChange != nil {
		l.OnChange(ctx, accountID)
	}
}

func nextStatus(cur models.AccountStatus, ev Event) (models.AccountStatus, error) {
	if cur == models.AccountFailed {
		return "", apperr.InvalidState("ACCOUNT_FAILED", "account has failed", string(cur))
	}
	switch ev {
	case EventVerify:
		return models.AccountVerified, nil
	case EventStartTrading:
		if cur != models.AccountVerified {
			return "", apperr.InvalidState("ACCOUNT_NOT_VERIFIED", "account must be verified", string(cur))
		}
		return models.AccountTrading, nil
	case EventFail:
		return models.AccountFailed, nil
	case EventPause:
		return models.AccountPaused, nil
	}
	return "", apperr.Validation("INVALID_EVENT", "unknown account event", map[string]string{"event": string(ev)})
}

func eventForStatus(s models.AccountStatus) (Event, error) {
	switch s {
	case models.AccountVerified:
		return EventVerify, nil
	case models.AccountTrading:
		return EventStartTrading, nil
	case models.AccountFailed:
		return EventFail, nil
	case models.AccountPaused:
		return EventPause, nil
	}
	return "", apperr.Validation("INVALID_STATUS", "status cannot be set directly", map[string]string{"status": string(s)})
}

func transitionAction(ev Event) string {
	switch ev {
	case EventVerify:
		return audit.ActionAccountVerified
	case EventStartTrading:
		return audit.ActionAccountTradingStarted
	case EventFail:
		return audit.ActionAccountFailed
	case EventPause:
		return audit.ActionAccountPaused
	}
	return audit.ActionAccountUpdated
}

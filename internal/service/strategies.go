package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"propdesk/internal/apperr"
	"propdesk/internal/audit"
	"propdesk/internal/auth"
	"propdesk/internal/keylock"
	"propdesk/internal/ledger"
	"propdesk/internal/models"
	"propdesk/internal/repository"
	"propdesk/internal/strategy"
)

// StrategyService manages per-account strategy configurations. Ownership is
// checked through the account ledger.
type StrategyService struct {
	Repo     repository.Repository
	Accounts *ledger.AccountLedger
	Registry *strategy.Registry
	Locks    *keylock.Locker
	Clock    clockwork.Clock
	Events   audit.Sink
	Logger   *zap.Logger

	// Defaults is config.strategy_defaults.
	Defaults map[string]any
	// Symbols is the watch list given to strategies created without symbols.
	Symbols []string
}

type CreateStrategyInput struct {
	AccountID  string              `json:"accountId"`
	Type       models.StrategyType `json:"type"`
	Enabled    *bool               `json:"enabled,omitempty"`
	Parameters map[string]float64  `json:"parameters,omitempty"`
	Symbols    []string            `json:"symbols,omitempty"`
}

type UpdateStrategyInput struct {
	Enabled    *bool              `json:"enabled,omitempty"`
	Parameters map[string]float64 `json:"parameters,omitempty"`
	Symbols    []string           `json:"symbols,omitempty"`
}

func (s *StrategyService) Create(ctx context.Context, actor auth.Identity, in CreateStrategyInput) (*models.Strategy, error) {
	missing := map[string]string{}
	if strings.TrimSpace(in.AccountID) == "" {
		missing["accountId"] = "required"
	}
	if strings.TrimSpace(string(in.Type)) == "" {
		missing["type"] = "required"
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("MISSING_FIELDS", "missing required fields", missing)
	}
	t := models.StrategyType(strings.ToUpper(strings.TrimSpace(string(in.Type))))
	ev, ok := s.evaluator(t)
	if !ok {
		return nil, apperr.Validation("INVALID_STRATEGY_TYPE", "unknown strategy type", map[string]string{"type": string(in.Type)})
	}
	symbols, err := s.symbols(in.Symbols)
	if err != nil {
		return nil, err
	}
	acc, err := s.Accounts.Get(ctx, actor, in.AccountID)
	if err != nil {
		return nil, err
	}

	stored, _ := json.Marshal(in.Parameters)
	params := strategy.MergeParams(ev, s.Defaults, t, stored)
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	now := s.now()
	item := &models.Strategy{
		ID:        uuid.NewString(),
		AccountID: acc.ID,
		Type:      t,
		Enabled:   enabled,
		Params:    params.JSON(),
		Symbols:   symbolsJSON(symbols),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.InsertStrategy(ctx, item); err != nil {
		return nil, apperr.Internal("insert strategy", err)
	}
	s.emit(audit.ActionStrategyCreated, actor, item, map[string]any{"type": string(t), "enabled": enabled})
	return item, nil
}

func (s *StrategyService) Get(ctx context.Context, actor auth.Identity, id string) (*models.Strategy, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.Accounts.Get(ctx, actor, item.AccountID); err != nil {
		return nil, err
	}
	return item, nil
}

// List returns the strategies of one account, or of every account the actor
// can see when accountID is empty.
func (s *StrategyService) List(ctx context.Context, actor auth.Identity, accountID string) ([]models.Strategy, error) {
	var accountIDs []string
	if strings.TrimSpace(accountID) != "" {
		acc, err := s.Accounts.Get(ctx, actor, accountID)
		if err != nil {
			return nil, err
		}
		accountIDs = []string{acc.ID}
	} else {
		accounts, err := s.Accounts.List(ctx, actor)
		if err != nil {
			return nil, err
		}
		for _, acc := range accounts {
			accountIDs = append(accountIDs, acc.ID)
		}
	}
	out := make([]models.Strategy, 0)
	for _, id := range accountIDs {
		items, err := s.Repo.ListStrategies(ctx, repository.ListStrategiesParams{AccountID: id})
		if err != nil {
			return nil, apperr.Internal("list strategies", err)
		}
		out = append(out, items...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Update overlays the given parameters on the stored ones and replaces the
// symbol list when one is given.
func (s *StrategyService) Update(ctx context.Context, actor auth.Identity, id string, in UpdateStrategyInput) (*models.Strategy, error) {
	var symbols []string
	if in.Symbols != nil {
		var err error
		if symbols, err = s.symbols(in.Symbols); err != nil {
			return nil, err
		}
	}
	unlock := s.lock(id)
	defer unlock()

	item, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if len(in.Parameters) > 0 {
		params := strategy.ParseParams(item.Params)
		for k, v := range in.Parameters {
			params[k] = v
		}
		item.Params = params.JSON()
	}
	if symbols != nil {
		item.Symbols = symbolsJSON(symbols)
	}
	if in.Enabled != nil {
		item.Enabled = *in.Enabled
	}
	item.UpdatedAt = s.now()
	if err := s.Repo.SaveStrategy(ctx, item); err != nil {
		return nil, apperr.Internal("save strategy", err)
	}
	s.emit(audit.ActionStrategyUpdated, actor, item, map[string]any{"enabled": item.Enabled})
	return item, nil
}

func (s *StrategyService) SetEnabled(ctx context.Context, actor auth.Identity, id string, enabled bool) (*models.Strategy, error) {
	unlock := s.lock(id)
	defer unlock()

	item, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	item.Enabled = enabled
	item.UpdatedAt = s.now()
	if err := s.Repo.SaveStrategy(ctx, item); err != nil {
		return nil, apperr.Internal("save strategy", err)
	}
	action := audit.ActionStrategyDisabled
	if enabled {
		action = audit.ActionStrategyEnabled
	}
	s.emit(action, actor, item, nil)
	return item, nil
}

func (s *StrategyService) Delete(ctx context.Context, actor auth.Identity, id string) error {
	unlock := s.lock(id)
	defer unlock()

	item, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.Repo.DeleteStrategy(ctx, item.ID); err != nil {
		return apperr.Internal("delete strategy", err)
	}
	s.emit(audit.ActionStrategyDeleted, actor, item, nil)
	return nil
}

func (s *StrategyService) evaluator(t models.StrategyType) (strategy.Evaluator, bool) {
	if !t.Valid() {
		return nil, false
	}
	reg := s.Registry
	if reg == nil {
		reg = strategy.DefaultRegistry()
	}
	return reg.Get(t)
}

func (s *StrategyService) symbols(in []string) ([]string, error) {
	if len(in) == 0 {
		return append([]string(nil), s.Symbols...), nil
	}
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, raw := range in {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if !ledger.IsTradingSymbol(sym) {
			return nil, apperr.Validation("INVALID_SYMBOL", "unsupported symbol", map[string]string{"symbols": raw})
		}
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out, nil
}

func (s *StrategyService) load(ctx context.Context, id string) (*models.Strategy, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.NotFound("STRATEGY_NOT_FOUND", "strategy not found")
	}
	item, err := s.Repo.GetStrategy(ctx, id)
	if err != nil {
		return nil, apperr.Internal("get strategy", err)
	}
	if item == nil {
		return nil, apperr.NotFound("STRATEGY_NOT_FOUND", "strategy not found")
	}
	return item, nil
}

func (s *StrategyService) lock(id string) func() {
	if s.Locks == nil {
		return func() {}
	}
	return s.Locks.Lock(strategy.StrategyKey(strings.TrimSpace(id)))
}

func (s *StrategyService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *StrategyService) emit(action string, actor auth.Identity, item *models.Strategy, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["strategyId"] = item.ID
	audit.Emit(s.Events, s.Logger, audit.Event{
		Action:    action,
		UserID:    actor.UserID,
		AccountID: item.AccountID,
		Details:   details,
		At:        s.now(),
	})
}

func symbolsJSON(symbols []string) datatypes.JSON {
	raw, err := json.Marshal(symbols)
	if err != nil || len(symbols) == 0 {
		return datatypes.JSON(`[]`)
	}
	return datatypes.JSON(raw)
}

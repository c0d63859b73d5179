// Package memrepository keeps every record in process memory. It backs the
// "memory" db driver and the package tests.
package memrepository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"

	"propdesk/internal/models"
	"propdesk/internal/repository"
)

type Store struct {
	mu sync.RWMutex

	accounts   map[string]models.Account
	trades     map[string]models.Trade
	strategies map[string]models.Strategy
	users      map[string]models.User
	settings   map[string]models.SystemSetting
	snapshots  map[string]models.AccountSnapshot

	settingSeq  uint64
	snapshotSeq uint64

	now func() time.Time
}

var _ repository.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts:   map[string]models.Account{},
		trades:     map[string]models.Trade{},
		strategies: map[string]models.Strategy{},
		users:      map[string]models.User{},
		settings:   map[string]models.SystemSetting{},
		snapshots:  map[string]models.AccountSnapshot{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock makes autoCreate/autoUpdate timestamps follow now.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

func (s *Store) stamp(created *time.Time, updated *time.Time) {
	now := s.now()
	if created != nil && created.IsZero() {
		*created = now
	}
	if updated != nil {
		*updated = now
	}
}

// --- accounts ---------------------------------------------------------------

func (s *Store) InsertAccount(ctx context.Context, item *models.Account) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&item.CreatedAt, &item.UpdatedAt)
	s.accounts[item.ID] = cloneAccount(*item)
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.accounts[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	out := cloneAccount(item)
	return &out, nil
}

func (s *Store) ListAccounts(ctx context.Context, params repository.ListAccountsParams) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if params.OwnerID != "" && a.OwnerID != params.OwnerID {
			continue
		}
		if len(params.Statuses) > 0 && !containsAccountStatus(params.Statuses, a.Status) {
			continue
		}
		out = append(out, cloneAccount(a))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *Store) SaveAccount(ctx context.Context, item *models.Account) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&item.CreatedAt, &item.UpdatedAt)
	s.accounts[item.ID] = cloneAccount(*item)
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	return nil
}

// --- trades -----------------------------------------------------------------

func (s *Store) InsertTrade(ctx context.Context, item *models.Trade) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&item.CreatedAt, &item.UpdatedAt)
	s.trades[item.ID] = cloneTrade(*item)
	return nil
}

func (s *Store) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.trades[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	out := cloneTrade(item)
	return &out, nil
}

func (s *Store) matchTrades(params repository.ListTradesParams) []models.Trade {
	out := make([]models.Trade, 0)
	for _, t := range s.trades {
		if params.AccountID != "" && t.AccountID != params.AccountID {
			continue
		}
		if len(params.Statuses) > 0 && !containsTradeStatus(params.Statuses, t.Status) {
			continue
		}
		if params.Symbol != "" && t.Symbol != params.Symbol {
			continue
		}
		if params.Strategy != "" && t.StrategyTag != params.Strategy {
			continue
		}
		if params.CreatedFrom != nil && t.CreatedAt.Before(*params.CreatedFrom) {
			continue
		}
		if params.ClosedFrom != nil && (t.ExitTime == nil || t.ExitTime.Before(*params.ClosedFrom)) {
			continue
		}
		out = append(out, cloneTrade(t))
	}
	return out
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	s.mu.RLock()
	out := s.matchTrades(params)
	s.mu.RUnlock()

	key := func(t models.Trade) time.Time { return t.CreatedAt }
	if params.OrderBy == repository.OrderByExitTime {
		key = func(t models.Trade) time.Time {
			if t.ExitTime == nil {
				return time.Time{}
			}
			return *t.ExitTime
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := key(out[i]), key(out[j])
		if ki.Equal(kj) {
			if params.Asc {
				return out[i].ID < out[j].ID
			}
			return out[i].ID > out[j].ID
		}
		if params.Asc {
			return ki.Before(kj)
		}
		return ki.After(kj)
	})
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *Store) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.matchTrades(params))), nil
}

func (s *Store) SaveTrade(ctx context.Context, item *models.Trade) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&item.CreatedAt, &item.UpdatedAt)
	s.trades[item.ID] = cloneTrade(*item)
	return nil
}

func (s *Store) DeleteTradesUpdatedBefore(ctx context.Context, status models.TradeStatus, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.trades {
		if t.Status == status && t.UpdatedAt.Before(before) {
			delete(s.trades, id)
			n++
		}
	}
	return n, nil
}

// --- strategies -------------------------------------------------------------

func (s *Store) InsertStrategy(ctx context.Context, item *models.Strategy) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&item.CreatedAt, &item.UpdatedAt)
	s.strategies[item.ID] = cloneStrategy(*item)
	return nil
}

func (s *Store) GetStrategy(ctx context.Context, id string) (*models.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.strategies[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	out := cloneStrategy(item)
	return &out, nil
}

func (s *Store) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Strategy, 0)
	for _, st := range s.strategies {
		if params.AccountID != "" && st.AccountID != params.AccountID {
			continue
		}
		if params.Enabled != nil && st.Enabled != *params.Enabled {
			continue
		}
		out = append(out, cloneStrategy(st))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SaveStrategy(ctx context.Context, item *models.Strategy) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&item.CreatedAt, &item.UpdatedAt)
	s.strategies[item.ID] = cloneStrategy(*item)
	return nil
}

func (s *Store) DeleteStrategy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.strategies, id)
	return nil
}

func (s *Store) DeleteStrategiesByAccount(ctx context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, st := range s.strategies {
		if st.AccountID == accountID {
			delete(s.strategies, id)
			n++
		}
	}
	return n, nil
}

// --- users ------------------------------------------------------------------

func (s *Store) InsertUser(ctx context.Context, item *models.User) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&item.CreatedAt, &item.UpdatedAt)
	s.users[item.ID] = *item
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

// --- system settings --------------------------------------------------------

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.settings[strings.TrimSpace(key)]
	if !ok {
		return nil, nil
	}
	item.Value = cloneJSON(item.Value)
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SystemSetting, 0, len(s.settings))
	for _, it := range s.settings {
		it.Value = cloneJSON(it.Value)
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.settings[item.Key]
	if ok {
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
	} else {
		s.settingSeq++
		item.ID = s.settingSeq
	}
	s.stamp(&item.CreatedAt, &item.UpdatedAt)
	stored := *item
	stored.Value = cloneJSON(item.Value)
	s.settings[item.Key] = stored
	return nil
}

// --- snapshots --------------------------------------------------------------

func snapshotKey(accountID string, day time.Time) string {
	return accountID + "|" + day.UTC().Format("2006-01-02")
}

func (s *Store) UpsertAccountSnapshot(ctx context.Context, item *models.AccountSnapshot) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snapshotKey(item.AccountID, item.Day)
	if existing, ok := s.snapshots[key]; ok {
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
	} else {
		s.snapshotSeq++
		item.ID = s.snapshotSeq
	}
	s.stamp(&item.CreatedAt, nil)
	s.snapshots[key] = *item
	return nil
}

func (s *Store) ListAccountSnapshots(ctx context.Context, accountID string, limit int) ([]models.AccountSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AccountSnapshot, 0)
	for _, snap := range s.snapshots {
		if snap.AccountID == accountID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.After(out[j].Day) })
	if limit <= 0 {
		limit = 30
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteAccountSnapshotsBefore(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, snap := range s.snapshots {
		if snap.Day.Before(before) {
			delete(s.snapshots, key)
			n++
		}
	}
	return n, nil
}

func cloneAccount(a models.Account) models.Account {
	if a.LastTradeAt != nil {
		t := *a.LastTradeAt
		a.LastTradeAt = &t
	}
	return a
}

func cloneTrade(t models.Trade) models.Trade {
	if t.ExitPrice != nil {
		v := *t.ExitPrice
		t.ExitPrice = &v
	}
	if t.ExitTime != nil {
		v := *t.ExitTime
		t.ExitTime = &v
	}
	if t.Profit != nil {
		v := *t.Profit
		t.Profit = &v
	}
	if t.ProfitPercent != nil {
		v := *t.ProfitPercent
		t.ProfitPercent = &v
	}
	return t
}

func cloneStrategy(s models.Strategy) models.Strategy {
	s.Params = cloneJSON(s.Params)
	s.Symbols = cloneJSON(s.Symbols)
	s.Performance = cloneJSON(s.Performance)
	return s
}

func cloneJSON(in datatypes.JSON) datatypes.JSON {
	if in == nil {
		return nil
	}
	out := make(datatypes.JSON, len(in))
	copy(out, in)
	return out
}

func containsAccountStatus(items []models.AccountStatus, v models.AccountStatus) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}

func containsTradeStatus(items []models.TradeStatus, v models.TradeStatus) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}

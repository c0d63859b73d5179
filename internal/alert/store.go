package alert

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"propdesk/internal/models"
)

// Store keeps the current alert set of every account, keyed by kind.
type Store struct {
	mu   sync.RWMutex
	sets map[string]map[string]models.Alert
}

func NewStore() *Store {
	return &Store{sets: map[string]map[string]models.Alert{}}
}

// Replace swaps the account's set for derived. Kinds that were already
// active keep their id, creation time and read flag. It returns the alerts
// whose kind was not active before.
func (s *Store) Replace(accountID string, derived []models.Alert) []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.sets[accountID]
	next := make(map[string]models.Alert, len(derived))
	var added []models.Alert
	for _, a := range derived {
		a.AccountID = accountID
		if old, ok := prev[a.Kind]; ok {
			a.ID = old.ID
			a.CreatedAt = old.CreatedAt
			a.Read = old.Read
		} else {
			a.ID = uuid.NewString()
			a.Read = false
			added = append(added, a)
		}
		next[a.Kind] = a
	}
	if len(next) == 0 {
		delete(s.sets, accountID)
	} else {
		s.sets[accountID] = next
	}
	return added
}

// List returns the account's alerts, oldest first.
func (s *Store) List(accountID string) []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Alert, 0, len(s.sets[accountID]))
	for _, a := range s.sets[accountID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Kind < out[j].Kind
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) MarkRead(accountID, alertID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, a := range s.sets[accountID] {
		if a.ID == alertID {
			a.Read = true
			s.sets[accountID][kind] = a
			return true
		}
	}
	return false
}

func (s *Store) Forget(accountID string) {
	s.mu.Lock()
	delete(s.sets, accountID)
	s.mu.Unlock()
}

func (s *Store) Accounts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sets))
	for id := range s.sets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

type MemoryStore struct {
	c *ristretto.Cache
}

func NewMemoryStore(maxCost int64) (*MemoryStore, error) {
	if maxCost <= 0 {
		maxCost = 64 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryStore{c: c}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	return b, ok, nil
}

// Set waits for the write buffer so a following Get observes the value.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(value))
	if cost == 0 {
		cost = 1
	}
	s.c.SetWithTTL(key, value, cost, ttl)
	s.c.Wait()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.c.Del(key)
	return nil
}

func (s *MemoryStore) Close() {
	s.c.Close()
}

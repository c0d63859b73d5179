package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdesk/internal/config"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s, err := NewMemoryStore(1 << 20)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(got))

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	s, err := NewMemoryStore(0)
	require.NoError(t, err)
	ctx := context.Background()

	type payload struct {
		Equity float64 `json:"equity"`
	}
	require.NoError(t, SetJSON(ctx, s, "p", payload{Equity: 10500}, time.Minute))
	var out payload
	ok, err := GetJSON(ctx, s, "p", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10500.0, out.Equity)

	ok, err = GetJSON(ctx, nil, "p", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(config.CacheConfig{Driver: "memcached"})
	assert.Error(t, err)

	s, err := New(config.CacheConfig{Driver: "redis", RedisAddr: "127.0.0.1:1", KeyPrefix: "pd:"})
	require.NoError(t, err)
	assert.Equal(t, "pd:", s.(*RedisStore).Prefix)
}

package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"propdesk/internal/apperr"
	"propdesk/internal/cache"
	"propdesk/internal/config"
)

func TestSimulatedIsDeterministic(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC))
	a := NewSimulated(7, clock)
	b := NewSimulated(7, clock)
	ctx := context.Background()

	sa, err := a.FetchSeries(ctx, "EURUSD", 60)
	require.NoError(t, err)
	sb, err := b.FetchSeries(ctx, "EURUSD", 60)
	require.NoError(t, err)
	require.Len(t, sa, 60)
	assert.Equal(t, sa, sb)

	for _, bar := range sa {
		assert.GreaterOrEqual(t, bar.High, bar.Low)
		assert.GreaterOrEqual(t, bar.High, bar.Close)
		assert.LessOrEqual(t, bar.Low, bar.Open)
	}
}

func TestSimulatedAdvancesAndGrows(t *testing.T) {
	s := NewSimulated(1, clockwork.NewFakeClock())
	ctx := context.Background()

	first, err := s.FetchSeries(ctx, "GOLD", 20)
	require.NoError(t, err)
	second, err := s.FetchSeries(ctx, "GOLD", 20)
	require.NoError(t, err)
	assert.Equal(t, first[len(first)-1].Close, second[len(second)-2].Close)

	wide, err := s.FetchSeries(ctx, "GOLD", 80)
	require.NoError(t, err)
	assert.Len(t, wide, 80)
}

func TestSimulatedHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimulated(1, nil).FetchSeries(ctx, "EURUSD", 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market/ohlc" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "EURUSD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"symbol": "EURUSD",
			"candles": []map[string]any{
				{"open": 1.1, "high": 1.2, "low": 1.0, "close": 1.15},
				{"open": 1.15, "high": 1.2, "low": 1.1, "close": 1.12},
				{"open": 1.12, "high": 1.13, "low": 1.1, "close": 1.11},
			},
		})
	}))
	defer srv.Close()

	f := NewHTTPFeed(srv.URL+"/", time.Second)
	series, err := f.FetchSeries(context.Background(), "EURUSD", 3)
	require.NoError(t, err)
	require.Len(t, series, 3)
	last, ok := LastClose(series)
	assert.True(t, ok)
	assert.Equal(t, 1.11, last)
}

func TestHTTPFeedErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPFeed(srv.URL, time.Second).FetchSeries(context.Background(), "EURUSD", 3)
	assert.ErrorIs(t, err, apperr.ErrExternalUnavailable)
}

type countingFeed struct {
	calls atomic.Int32
}

func (c *countingFeed) FetchSeries(ctx context.Context, symbol string, lookback int) ([]OHLC, error) {
	c.calls.Add(1)
	return []OHLC{{Close: 1.5}}, nil
}

func TestCachedServesRepeatReads(t *testing.T) {
	store, err := cache.NewMemoryStore(1 << 20)
	require.NoError(t, err)
	inner := &countingFeed{}
	c := &Cached{Feed: inner, Store: store, TTL: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		series, err := c.FetchSeries(ctx, "EURUSD", 10)
		require.NoError(t, err)
		assert.Equal(t, 1.5, series[0].Close)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	_, err = c.FetchSeries(ctx, "GBPUSD", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestLimitedStopsOnContext(t *testing.T) {
	l := &Limited{Feed: &countingFeed{}, Limiter: rate.NewLimiter(rate.Every(time.Hour), 1)}
	ctx := context.Background()
	_, err := l.FetchSeries(ctx, "EURUSD", 1)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = l.FetchSeries(short, "EURUSD", 1)
	assert.ErrorIs(t, err, apperr.ErrExternalUnavailable)
}

func TestNewFeedSelection(t *testing.T) {
	_, err := New(config.MarketDataConfig{Source: "http"}, nil, nil)
	assert.Error(t, err)

	_, err = New(config.MarketDataConfig{Source: "bloomberg"}, nil, nil)
	assert.Error(t, err)

	store, err := cache.NewMemoryStore(0)
	require.NoError(t, err)
	feed, err := New(config.MarketDataConfig{Source: "simulated", CacheTTL: time.Second, RatePerSecond: 5}, store, nil)
	require.NoError(t, err)
	cached, ok := feed.(*Cached)
	require.True(t, ok)
	_, ok = cached.Feed.(*Limited)
	assert.True(t, ok)
}

// Package marketdata supplies OHLC series to the strategy engine.
package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"propdesk/internal/cache"
	"propdesk/internal/config"
)

type OHLC struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Feed returns the most recent bars for symbol, oldest first.
type Feed interface {
	FetchSeries(ctx context.Context, symbol string, lookback int) ([]OHLC, error)
}

// Closes extracts the close prices of a series.
func Closes(series []OHLC) []float64 {
	out := make([]float64, len(series))
	for i, b := range series {
		out[i] = b.Close
	}
	return out
}

// LastClose returns the close of the newest bar.
func LastClose(series []OHLC) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1].Close, true
}

// New builds the configured feed, wrapped with the cache and limiter when
// they are enabled.
func New(cfg config.MarketDataConfig, store cache.Store, clock clockwork.Clock) (Feed, error) {
	var feed Feed
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "", "simulated":
		feed = NewSimulated(cfg.Seed, clock)
	case "http":
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("market_data.base_url is required for the http source")
		}
		feed = NewHTTPFeed(cfg.BaseURL, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unsupported market data source %q", cfg.Source)
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		feed = &Limited{Feed: feed, Limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)}
	}
	if store != nil && cfg.CacheTTL > 0 {
		feed = &Cached{Feed: feed, Store: store, TTL: cfg.CacheTTL}
	}
	return feed, nil
}

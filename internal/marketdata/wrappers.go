package marketdata

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"propdesk/internal/apperr"
	"propdesk/internal/cache"
)

// Cached serves repeated requests for the same series from a cache.Store.
type Cached struct {
	Feed   Feed
	Store  cache.Store
	TTL    time.Duration
	Logger *zap.Logger
}

func (c *Cached) FetchSeries(ctx context.Context, symbol string, lookback int) ([]OHLC, error) {
	key := fmt.Sprintf("ohlc:%s:%d", symbol, lookback)
	var series []OHLC
	if ok, err := cache.GetJSON(ctx, c.Store, key, &series); err == nil && ok {
		return series, nil
	} else if err != nil && c.Logger != nil {
		c.Logger.Debug("ohlc cache read failed", zap.String("symbol", symbol), zap.Error(err))
	}
	series, err := c.Feed.FetchSeries(ctx, symbol, lookback)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, c.Store, key, series, c.TTL); err != nil && c.Logger != nil {
		c.Logger.Debug("ohlc cache write failed", zap.String("symbol", symbol), zap.Error(err))
	}
	return series, nil
}

// Limited throttles calls to the wrapped feed.
type Limited struct {
	Feed    Feed
	Limiter *rate.Limiter
}

func (l *Limited) FetchSeries(ctx context.Context, symbol string, lookback int) ([]OHLC, error) {
	if err := l.Limiter.Wait(ctx); err != nil {
		return nil, apperr.Unavailable("MARKET_DATA_RATE_LIMITED", err)
	}
	return l.Feed.FetchSeries(ctx, symbol, lookback)
}

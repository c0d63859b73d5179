package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"propdesk/internal/apperr"
)

// HTTPFeed reads candles from the trading bridge.
type HTTPFeed struct {
	client *resty.Client
}

type ohlcResponse struct {
	Symbol  string `json:"symbol"`
	Candles []OHLC `json:"candles"`
}

func NewHTTPFeed(baseURL string, timeout time.Duration) *HTTPFeed {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPFeed{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

func (f *HTTPFeed) FetchSeries(ctx context.Context, symbol string, lookback int) ([]OHLC, error) {
	var out ohlcResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"count":  strconv.Itoa(lookback),
		}).
		SetResult(&out).
		Get("/market/ohlc")
	if err != nil {
		return nil, apperr.Unavailable("MARKET_DATA_UNAVAILABLE", err)
	}
	if resp.IsError() {
		return nil, apperr.Unavailable("MARKET_DATA_UNAVAILABLE",
			fmt.Errorf("ohlc %s: status %d: %s", symbol, resp.StatusCode(), resp.String()))
	}
	return out.Candles, nil
}

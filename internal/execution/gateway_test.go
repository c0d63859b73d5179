package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdesk/internal/apperr"
	"propdesk/internal/config"
	"propdesk/internal/models"
)

func TestPaperFillsWithSlippage(t *testing.T) {
	p := &Paper{SlippagePips: 2, PipSize: 0.0001}
	ctx := context.Background()

	fill, err := p.Place(ctx, Order{Symbol: "EURUSD", Side: models.SideBuy, Volume: 1, Price: 1.1})
	require.NoError(t, err)
	assert.Equal(t, "PAPER-1", fill.Ticket)
	assert.InDelta(t, 1.1002, fill.Price, 1e-12)

	closed, err := p.Close(ctx, fill.Ticket, 1.105)
	require.NoError(t, err)
	assert.InDelta(t, 1.1048, closed.Price, 1e-12)

	sell, err := p.Place(ctx, Order{Side: models.SideSell, Volume: 1, Price: 1.1})
	require.NoError(t, err)
	assert.Equal(t, "PAPER-2", sell.Ticket)
	assert.InDelta(t, 1.0998, sell.Price, 1e-12)
}

func TestPaperRejects(t *testing.T) {
	p := &Paper{}
	_, err := p.Place(context.Background(), Order{Volume: 0, Price: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Place(ctx, Order{Volume: 1, Price: 1})
	assert.ErrorIs(t, err, apperr.ErrExternalUnavailable)
}

func TestHTTPGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/trade/execute":
			var o Order
			require.NoError(t, json.NewDecoder(r.Body).Decode(&o))
			if o.Symbol == "OIL" {
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "market closed"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "ticket": "9001", "price": o.Price + 0.0001})
		case "/trade/close":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "ticket": "9001"})
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, time.Second)
	ctx := context.Background()

	fill, err := g.Place(ctx, Order{Symbol: "EURUSD", Side: models.SideBuy, Volume: 0.1, Price: 1.1})
	require.NoError(t, err)
	assert.Equal(t, "9001", fill.Ticket)
	assert.InDelta(t, 1.1001, fill.Price, 1e-12)

	closed, err := g.Close(ctx, "9001", 1.2)
	require.NoError(t, err)
	assert.Equal(t, 1.2, closed.Price)

	_, err = g.Place(ctx, Order{Symbol: "OIL", Volume: 1, Price: 80})
	assert.ErrorIs(t, err, apperr.ErrExternalUnavailable)
}

func TestNewGateway(t *testing.T) {
	g, err := New(config.ExecutionConfig{}, 0.0001)
	require.NoError(t, err)
	assert.IsType(t, &Paper{}, g)

	_, err = New(config.ExecutionConfig{Gateway: "http"}, 0.0001)
	assert.Error(t, err)
}

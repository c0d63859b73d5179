package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"propdesk/internal/apperr"
)

// HTTPGateway talks to the trading bridge in front of the broker terminal.
type HTTPGateway struct {
	client *resty.Client
}

type executeResponse struct {
	Success bool    `json:"success"`
	Ticket  string  `json:"ticket"`
	Price   float64 `json:"price"`
	Error   string  `json:"error,omitempty"`
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPGateway{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

func (g *HTTPGateway) Place(ctx context.Context, o Order) (Fill, error) {
	return g.post(ctx, "/trade/execute", o, o.Price)
}

func (g *HTTPGateway) Close(ctx context.Context, ticket string, price float64) (Fill, error) {
	body := map[string]any{"ticket": ticket, "price": price}
	return g.post(ctx, "/trade/close", body, price)
}

func (g *HTTPGateway) post(ctx context.Context, path string, body any, requested float64) (Fill, error) {
	var out executeResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(path)
	if err != nil {
		return Fill{}, apperr.Unavailable("GATEWAY_UNAVAILABLE", err)
	}
	if resp.IsError() {
		return Fill{}, apperr.Unavailable("GATEWAY_UNAVAILABLE",
			fmt.Errorf("%s: status %d: %s", path, resp.StatusCode(), resp.String()))
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "order rejected"
		}
		return Fill{}, apperr.Unavailable("ORDER_REJECTED", fmt.Errorf("%s: %s", path, msg))
	}
	price := out.Price
	if price <= 0 {
		price = requested
	}
	return Fill{Ticket: out.Ticket, Price: price, At: time.Now().UTC()}, nil
}

// Package execution places and closes orders with a broker gateway.
package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"propdesk/internal/config"
	"propdesk/internal/models"
)

type Order struct {
	TradeID    string           `json:"tradeId"`
	AccountID  string           `json:"accountId"`
	Symbol     string           `json:"symbol"`
	Side       models.TradeSide `json:"type"`
	Volume     float64          `json:"volume"`
	Price      float64          `json:"price"`
	StopLoss   float64          `json:"stopLoss"`
	TakeProfit float64          `json:"takeProfit"`
	Comment    string           `json:"comment,omitempty"`
}

type Fill struct {
	Ticket string    `json:"ticket"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

type Gateway interface {
	Place(ctx context.Context, o Order) (Fill, error)
	Close(ctx context.Context, ticket string, price float64) (Fill, error)
}

func New(cfg config.ExecutionConfig, pipSize float64) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Gateway)) {
	case "", "paper":
		return &Paper{SlippagePips: cfg.SlippagePips, PipSize: pipSize}, nil
	case "http":
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("execution.base_url is required for the http gateway")
		}
		return NewHTTPGateway(cfg.BaseURL, cfg.Timeout), nil
	}
	return nil, fmt.Errorf("unsupported execution gateway %q", cfg.Gateway)
}

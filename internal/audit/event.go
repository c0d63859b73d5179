// Package audit carries structured business events to the log, kafka and the
// websocket stream. Emission is best effort: a failing sink never fails the
// operation that produced the event.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	ActionAccountCreated        = "ACCOUNT_CREATED"
	ActionAccountUpdated        = "ACCOUNT_UPDATED"
	ActionAccountDeleted        = "ACCOUNT_DELETED"
	ActionAccountVerified       = "ACCOUNT_VERIFIED"
	ActionAccountTradingStarted = "ACCOUNT_TRADING_STARTED"
	ActionAccountPaused         = "ACCOUNT_PAUSED"
	ActionAccountFailed         = "ACCOUNT_FAILED"

	ActionTradeCreated   = "TRADE_CREATED"
	ActionTradeOpened    = "TRADE_OPENED"
	ActionTradeClosed    = "TRADE_CLOSED"
	ActionTradeCancelled = "TRADE_CANCELLED"
	ActionTradeUpdated   = "TRADE_UPDATED"

	ActionStrategyCreated  = "STRATEGY_CREATED"
	ActionStrategyUpdated  = "STRATEGY_UPDATED"
	ActionStrategyEnabled  = "STRATEGY_ENABLED"
	ActionStrategyDisabled = "STRATEGY_DISABLED"
	ActionStrategyDeleted  = "STRATEGY_DELETED"

	ActionSignalRejected = "SIGNAL_REJECTED"
	ActionAlertRaised    = "ALERT_RAISED"
	ActionUserRegistered = "USER_REGISTERED"
	ActionUserLogin      = "USER_LOGIN"
	ActionHTTPWrite      = "HTTP_WRITE"
)

const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

type Event struct {
	Action    string         `json:"action"`
	Level     string         `json:"level"`
	UserID    string         `json:"userId,omitempty"`
	AccountID string         `json:"accountId,omitempty"`
	TradeID   string         `json:"tradeId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	At        time.Time      `json:"at"`
}

type Sink interface {
	Write(ctx context.Context, ev Event) error
}

// Multi writes to every sink and returns the first error after trying all.
type Multi []Sink

func (m Multi) Write(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Emit writes ev with a short deadline of its own so a slow sink cannot hold
// up the caller's request context.
func Emit(sink Sink, logger *zap.Logger, ev Event) {
	if sink == nil {
		return
	}
	if ev.Level == "" {
		ev.Level = LevelInfo
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sink.Write(ctx, ev); err != nil && logger != nil {
		logger.Debug("audit emit failed", zap.String("action", ev.Action), zap.Error(err))
	}
}

// LevelFromStatus maps an HTTP status to an event level.
func LevelFromStatus(status int) string {
	if status >= 500 {
		return LevelError
	}
	if status >= 400 {
		return LevelWarn
	}
	return LevelInfo
}

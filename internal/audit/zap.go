package audit

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapSink writes events to the service log.
type ZapSink struct {
	Logger *zap.Logger
}

func (s ZapSink) Write(ctx context.Context, ev Event) error {
	if s.Logger == nil {
		return nil
	}
	level := zapcore.InfoLevel
	switch ev.Level {
	case LevelWarn:
		level = zapcore.WarnLevel
	case LevelError:
		level = zapcore.ErrorLevel
	}
	fields := []zap.Field{
		zap.String("action", ev.Action),
		zap.Time("at", ev.At),
	}
	if ev.UserID != "" {
		fields = append(fields, zap.String("user_id", ev.UserID))
	}
	if ev.AccountID != "" {
		fields = append(fields, zap.String("account_id", ev.AccountID))
	}
	if ev.TradeID != "" {
		fields = append(fields, zap.String("trade_id", ev.TradeID))
	}
	if len(ev.Details) > 0 {
		fields = append(fields, zap.Any("details", ev.Details))
	}
	if ce := s.Logger.Check(level, "audit"); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

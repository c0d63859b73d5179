package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"propdesk/internal/audit"
	"propdesk/internal/auth"
	"propdesk/internal/execution"
	"propdesk/internal/ledger"
	"propdesk/internal/marketdata"
	"propdesk/internal/models"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
)

// Engine is the periodic strategy loop. One tick walks every trading
// account in turn: exits first, then new signals.
type Engine struct {
	Repo     repository.Repository
	Accounts *ledger.AccountLedger
	Trades   *ledger.TradeLedger
	Risk     *risk.Validator
	Feed     marketdata.Feed
	Gateway  execution.Gateway
	Registry *Registry
	Clock    clockwork.Clock
	Events   audit.Sink
	Logger   *zap.Logger

	Interval    time.Duration
	FeedTimeout time.Duration
	ExecTimeout time.Duration

	// StrategyDefaults is config.strategy_defaults, keyed by lowercased type.
	StrategyDefaults map[string]any
	// Symbols is used by strategies that list none.
	Symbols []string
	// Enabled gates each tick; nil means always on.
	Enabled func(ctx context.Context) bool

	runMu  sync.Mutex
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches the loop. Calling Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	ticker := e.clock().NewTicker(e.interval())
	if e.Logger != nil {
		e.Logger.Info("strategy engine started", zap.Duration("interval", e.interval()))
	}
	go e.loop(ctx, ticker, e.done)
}

// Stop cancels the loop and waits for an in-flight tick to finish. The tick
// itself is not cancelled.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	if e.Logger != nil {
		e.Logger.Info("strategy engine stopped")
	}
}

func (e *Engine) loop(ctx context.Context, ticker clockwork.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			// Ticks run to completion; Stop only halts the ticker.
			e.RunOnce(context.WithoutCancel(ctx))
		}
	}
}

// RunOnce runs a single tick. Concurrent callers are serialized.
func (e *Engine) RunOnce(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	defer func() {
		if p := recover(); p != nil && e.Logger != nil {
			e.Logger.Error("strategy tick panicked", zap.Any("panic", p))
		}
	}()
	if e.Enabled != nil && !e.Enabled(ctx) {
		return
	}
	accounts, err := e.Accounts.ListActive(ctx)
	if err != nil {
		e.warn("list active accounts failed", err)
		return
	}
	for _, acc := range accounts {
		if ctx.Err() != nil {
			return
		}
		e.processAccount(ctx, acc)
	}
}

func (e *Engine) processAccount(ctx context.Context, acc models.Account) {
	enabled := true
	strategies, err := e.Repo.ListStrategies(ctx, repository.ListStrategiesParams{AccountID: acc.ID, Enabled: &enabled})
	if err != nil {
		e.warn("list strategies failed", err, zap.String("account_id", acc.ID))
		return
	}
	open, err := e.Trades.OpenTrades(ctx, acc.ID)
	if err != nil {
		e.warn("list open trades failed", err, zap.String("account_id", acc.ID))
		return
	}
	if len(strategies) == 0 && len(open) == 0 {
		return
	}

	symbolsByStrategy := make(map[string][]string, len(strategies))
	lookback := 0
	wanted := map[string]struct{}{}
	for _, s := range strategies {
		ev, ok := e.Registry.Get(s.Type)
		if !ok {
			continue
		}
		syms := e.strategySymbols(s)
		symbolsByStrategy[s.ID] = syms
		for _, sym := range syms {
			wanted[sym] = struct{}{}
		}
		if n := ev.MinBars(MergeParams(ev, e.StrategyDefaults, s.Type, s.Params)); n > lookback {
			lookback = n
		}
	}
	for _, t := range open {
		wanted[t.Symbol] = struct{}{}
	}
	if lookback < 100 {
		lookback = 100
	}

	series := e.fetchAll(ctx, acc.ID, wanted, lookback)

	e.exitPass(ctx, acc, open, series)

	for _, s := range strategies {
		ev, ok := e.Registry.Get(s.Type)
		if !ok {
			continue
		}
		params := MergeParams(ev, e.StrategyDefaults, s.Type, s.Params)
		for _, sym := range symbolsByStrategy[s.ID] {
			bars, ok := series[sym]
			if !ok {
				continue
			}
			sig := ev.Evaluate(sym, bars, params)
			if !sig.Actionable() {
				continue
			}
			if sig.Timestamp.IsZero() {
				sig.Timestamp = e.clock().Now().UTC()
			}
			e.execute(ctx, acc, sig)
		}
	}
}

func (e *Engine) fetchAll(ctx context.Context, accountID string, symbols map[string]struct{}, lookback int) map[string][]marketdata.OHLC {
	names := make([]string, 0, len(symbols))
	for s := range symbols {
		names = append(names, s)
	}
	sort.Strings(names)
	out := make(map[string][]marketdata.OHLC, len(names))
	for _, sym := range names {
		fctx, cancel := context.WithTimeout(ctx, e.feedTimeout())
		bars, err := e.Feed.FetchSeries(fctx, sym, lookback)
		cancel()
		if err != nil {
			e.warn("market data fetch failed", err, zap.String("account_id", accountID), zap.String("symbol", sym))
			continue
		}
		if len(bars) > 0 {
			out[sym] = bars
		}
	}
	return out
}

// exitPass closes open trades whose stop loss or take profit was crossed by
// the latest close.
func (e *Engine) exitPass(ctx context.Context, acc models.Account, open []models.Trade, series map[string][]marketdata.OHLC) {
	for _, t := range open {
		price, ok := marketdata.LastClose(series[t.Symbol])
		if !ok {
			continue
		}
		reason := exitReason(t, price)
		if reason == "" {
			continue
		}
		exit := price
		if t.BrokerTicket != "" {
			xctx, cancel := context.WithTimeout(ctx, e.execTimeout())
			fill, err := e.Gateway.Close(xctx, t.BrokerTicket, price)
			cancel()
			if err != nil {
				e.warn("gateway close failed", err, zap.String("trade_id", t.ID))
				continue
			}
			if fill.Price > 0 {
				exit = fill.Price
			}
		}
		if _, err := e.Trades.Close(ctx, auth.System, t.ID, exit, nil); err != nil {
			e.warn("close trade failed", err, zap.String("trade_id", t.ID))
			continue
		}
		if e.Logger != nil {
			e.Logger.Info("trade exited",
				zap.String("account_id", acc.ID),
				zap.String("trade_id", t.ID),
				zap.String("reason", reason),
				zap.Float64("exit_price", exit),
			)
		}
	}
}

func exitReason(t models.Trade, price float64) string {
	if t.Side == models.SideSell {
		switch {
		case t.StopLoss > 0 && price >= t.StopLoss:
			return "stop_loss"
		case t.TakeProfit > 0 && price <= t.TakeProfit:
			return "take_profit"
		}
		return ""
	}
	switch {
	case t.StopLoss > 0 && price <= t.StopLoss:
		return "stop_loss"
	case t.TakeProfit > 0 && price >= t.TakeProfit:
		return "take_profit"
	}
	return ""
}

func (e *Engine) execute(ctx context.Context, acc models.Account, sig Signal) {
	dup, err := e.Repo.CountTrades(ctx, repository.ListTradesParams{
		AccountID: acc.ID,
		Symbol:    sig.Symbol,
		Strategy:  sig.Strategy,
		Statuses:  []models.TradeStatus{models.TradePending, models.TradeOpen},
	})
	if err != nil {
		e.warn("count trades failed", err, zap.String("account_id", acc.ID))
		return
	}
	if dup > 0 {
		return
	}

	volume := e.Risk.SuggestVolume(acc.Balance, sig.EntryPrice, sig.StopLoss)
	res, err := e.Risk.Validate(ctx, acc.ID, risk.Proposal{
		Symbol:     sig.Symbol,
		Side:       sig.Side(),
		EntryPrice: sig.EntryPrice,
		Volume:     volume,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		RiskReward: sig.RiskReward,
	})
	if err != nil {
		e.warn("risk validation failed", err, zap.String("account_id", acc.ID))
		return
	}
	if !res.IsValid {
		if e.Logger != nil {
			e.Logger.Warn("signal rejected by risk",
				zap.String("account_id", acc.ID),
				zap.String("symbol", sig.Symbol),
				zap.String("strategy", string(sig.Strategy)),
				zap.Strings("violations", res.Messages()),
			)
		}
		audit.Emit(e.Events, e.Logger, audit.Event{
			Action:    audit.ActionSignalRejected,
			Level:     audit.LevelWarn,
			UserID:    auth.System.UserID,
			AccountID: acc.ID,
			Details: map[string]any{
				"symbol":     sig.Symbol,
				"strategy":   string(sig.Strategy),
				"action":     string(sig.Action),
				"violations": res.Violations,
			},
			At: e.clock().Now().UTC(),
		})
		return
	}

	conf := sig.Confidence
	trade, err := e.Trades.Create(ctx, auth.System, ledger.CreateTradeInput{
		AccountID:  acc.ID,
		Symbol:     sig.Symbol,
		Side:       sig.Side(),
		EntryPrice: sig.EntryPrice,
		Volume:     volume,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Strategy:   sig.Strategy,
		Confidence: &conf,
	})
	if err != nil {
		e.warn("create trade failed", err, zap.String("account_id", acc.ID), zap.String("symbol", sig.Symbol))
		return
	}

	xctx, cancel := context.WithTimeout(ctx, e.execTimeout())
	fill, err := e.Gateway.Place(xctx, execution.Order{
		TradeID:    trade.ID,
		AccountID:  acc.ID,
		Symbol:     trade.Symbol,
		Side:       trade.Side,
		Volume:     trade.Volume,
		Price:      trade.EntryPrice,
		StopLoss:   trade.StopLoss,
		TakeProfit: trade.TakeProfit,
		Comment:    string(sig.Strategy),
	})
	cancel()
	if err != nil {
		e.warn("order placement failed", err, zap.String("trade_id", trade.ID))
		if _, cerr := e.Trades.Cancel(ctx, auth.System, trade.ID); cerr != nil {
			e.warn("cancel trade failed", cerr, zap.String("trade_id", trade.ID))
		}
		return
	}
	if _, err := e.Trades.Open(ctx, auth.System, trade.ID, fill.Price, fill.Ticket); err != nil {
		e.warn("open trade failed", err, zap.String("trade_id", trade.ID))
		return
	}
	if e.Logger != nil {
		e.Logger.Info("signal executed",
			zap.String("account_id", acc.ID),
			zap.String("trade_id", trade.ID),
			zap.String("symbol", sig.Symbol),
			zap.String("action", string(sig.Action)),
			zap.Float64("confidence", sig.Confidence),
			zap.Float64("volume", volume),
		)
	}
}

func (e *Engine) strategySymbols(s models.Strategy) []string {
	var syms []string
	if len(s.Symbols) > 0 {
		if err := json.Unmarshal(s.Symbols, &syms); err != nil {
			e.warn("decode strategy symbols failed", err, zap.String("strategy_id", s.ID))
			syms = nil
		}
	}
	if len(syms) == 0 {
		syms = e.Symbols
	}
	out := make([]string, 0, len(syms))
	seen := map[string]bool{}
	for _, sym := range syms {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] || !ledger.IsTradingSymbol(sym) {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}

func (e *Engine) warn(msg string, err error, fields ...zap.Field) {
	if e.Logger == nil || errors.Is(err, context.Canceled) {
		return
	}
	e.Logger.Warn(msg, append(fields, zap.Error(err))...)
}

func (e *Engine) clock() clockwork.Clock {
	if e.Clock == nil {
		return clockwork.NewRealClock()
	}
	return e.Clock
}

func (e *Engine) interval() time.Duration {
	if e.Interval <= 0 {
		return 5 * time.Second
	}
	return e.Interval
}

func (e *Engine) feedTimeout() time.Duration {
	if e.FeedTimeout <= 0 {
		return 2 * time.Second
	}
	return e.FeedTimeout
}

func (e *Engine) execTimeout() time.Duration {
	if e.ExecTimeout <= 0 {
		return 5 * time.Second
	}
	return e.ExecTimeout
}

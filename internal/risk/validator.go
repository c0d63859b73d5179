// Package risk checks proposed trades against an account's limits. It never
// writes: every result is derived from the account and its trade history.
package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"propdesk/internal/apperr"
	"propdesk/internal/config"
	"propdesk/internal/models"
	"propdesk/internal/repository"
)

// Rule names.
const (
	RuleDailyLoss           = "daily_loss"
	RuleMaxDrawdown         = "max_drawdown"
	RulePositionSize        = "position_size"
	RuleConcurrentPositions = "concurrent_positions"
	RuleDailyTrades         = "daily_trades"
	RuleRiskReward          = "risk_reward"
)

type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

type Proposal struct {
	Symbol     string           `json:"symbol"`
	Side       models.TradeSide `json:"type"`
	EntryPrice float64          `json:"entryPrice"`
	Volume     float64          `json:"volume"`
	StopLoss   float64          `json:"stopLoss"`
	TakeProfit float64          `json:"takeProfit"`
	// RiskReward is derived from the prices when zero.
	RiskReward float64 `json:"riskReward,omitempty"`
}

type Check struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"status"`
	Value   float64     `json:"value"`
	Limit   float64     `json:"limit"`
	Message string      `json:"message"`
}

type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

type Result struct {
	IsValid    bool        `json:"isValid"`
	Violations []Violation `json:"violations"`
	Checks     []Check     `json:"checks"`
}

// Messages flattens the violations for logging and error payloads.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.Message)
	}
	return out
}

// State is the account view the rules run against.
type State struct {
	Balance    float64
	Equity     float64
	FreeMargin float64
	PeakEquity float64
	// DailyRealized is the summed profit of trades closed today; losses are negative.
	DailyRealized     float64
	TradesToday       int
	OpenPositions     int
	DailyLossLimitPct float64
	MaxDrawdownPct    float64
}

func (s State) DailyLoss() float64 {
	if s.DailyRealized >= 0 {
		return 0
	}
	return -s.DailyRealized
}

func (s State) DrawdownPct() float64 {
	if s.PeakEquity <= 0 {
		return 0
	}
	dd := (s.PeakEquity - s.Equity) / s.PeakEquity * 100
	if dd < 0 || math.IsNaN(dd) {
		return 0
	}
	return dd
}

// Evaluate runs every rule and reports all failures together.
func Evaluate(st State, p Proposal, cfg config.RiskConfig) Result {
	checks := make([]Check, 0, 6)

	lossLimit := st.DailyLossLimitPct / 100 * st.Balance
	loss := st.DailyLoss()
	checks = append(checks, check(RuleDailyLoss, loss > lossLimit, loss, lossLimit,
		fmt.Sprintf("daily loss %.2f exceeds limit %.2f", loss, lossLimit)))

	dd := st.DrawdownPct()
	checks = append(checks, check(RuleMaxDrawdown, dd > st.MaxDrawdownPct, dd, st.MaxDrawdownPct,
		fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", dd, st.MaxDrawdownPct)))

	contract := cfg.ContractSize
	if contract <= 0 {
		contract = 1
	}
	notional := p.Volume * p.EntryPrice * contract
	sizeLimit := cfg.MaxPositionSizePct / 100 * st.Balance
	checks = append(checks, check(RulePositionSize, notional > sizeLimit, notional, sizeLimit,
		fmt.Sprintf("position notional %.2f exceeds limit %.2f", notional, sizeLimit)))

	maxOpen := float64(cfg.MaxConcurrentPositions)
	checks = append(checks, check(RuleConcurrentPositions, st.OpenPositions >= cfg.MaxConcurrentPositions,
		float64(st.OpenPositions), maxOpen,
		fmt.Sprintf("%d open positions, limit %d", st.OpenPositions, cfg.MaxConcurrentPositions)))

	checks = append(checks, check(RuleDailyTrades, st.TradesToday >= cfg.MaxTradesPerDay,
		float64(st.TradesToday), float64(cfg.MaxTradesPerDay),
		fmt.Sprintf("%d trades today, limit %d", st.TradesToday, cfg.MaxTradesPerDay)))

	rr := p.RiskReward
	if rr <= 0 {
		rr = riskReward(p.EntryPrice, p.StopLoss, p.TakeProfit)
	}
	rrCheck := Check{Name: RuleRiskReward, Status: StatusPass, Value: rr, Limit: cfg.RiskRewardRatio}
	if rr < cfg.RiskRewardRatio {
		rrCheck.Status = StatusWarn
		rrCheck.Message = fmt.Sprintf("risk/reward %.2f below %.2f", rr, cfg.RiskRewardRatio)
	}
	checks = append(checks, rrCheck)

	res := Result{Checks: checks, Violations: []Violation{}}
	for _, c := range checks {
		if c.Status == StatusFail {
			res.Violations = append(res.Violations, Violation{Rule: c.Name, Message: c.Message})
		}
	}
	res.IsValid = len(res.Violations) == 0
	return res
}

func check(name string, failed bool, value, limit float64, msg string) Check {
	c := Check{Name: name, Status: StatusPass, Value: value, Limit: limit}
	if failed {
		c.Status = StatusFail
		c.Message = msg
	}
	return c
}

func riskReward(entry, sl, tp float64) float64 {
	den := math.Abs(entry - sl)
	if den == 0 {
		return 0
	}
	return math.Abs(tp-entry) / den
}

// SuggestVolume sizes a position so that hitting the stop risks
// MaxPositionSizePct of the balance.
func SuggestVolume(cfg config.RiskConfig, balance, entry, stopLoss float64) float64 {
	minVol, maxVol := cfg.MinVolume, cfg.MaxVolume
	if minVol <= 0 {
		minVol = 0.01
	}
	if maxVol <= 0 {
		maxVol = 10
	}
	pipSize, pipValue := cfg.PipSize, cfg.PipValue
	if pipSize <= 0 {
		pipSize = 0.0001
	}
	if pipValue <= 0 {
		pipValue = 10
	}
	pips := decimal.NewFromFloat(math.Abs(entry - stopLoss)).Div(decimal.NewFromFloat(pipSize))
	if pips.IsZero() {
		return minVol
	}
	risk := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(cfg.MaxPositionSizePct)).Div(decimal.NewFromInt(100))
	vol := risk.Div(pips.Mul(decimal.NewFromFloat(pipValue))).Round(2)
	out, _ := vol.Float64()
	if out < minVol {
		return minVol
	}
	if out > maxVol {
		return maxVol
	}
	return out
}

type Validator struct {
	Config config.RiskConfig
	Repo   repository.Repository
	Clock  clockwork.Clock
	Logger *zap.Logger
}

// Validate loads the account state and evaluates the proposal against it.
func (v *Validator) Validate(ctx context.Context, accountID string, p Proposal) (Result, error) {
	st, _, err := v.State(ctx, accountID)
	if err != nil {
		return Result{}, err
	}
	res := Evaluate(st, p, v.Config)
	if !res.IsValid && v.Logger != nil {
		v.Logger.Debug("risk rejected proposal",
			zap.String("account_id", accountID),
			zap.String("symbol", p.Symbol),
			zap.Strings("violations", res.Messages()),
		)
	}
	return res, nil
}

func (v *Validator) SuggestVolume(balance, entry, stopLoss float64) float64 {
	return SuggestVolume(v.Config, balance, entry, stopLoss)
}

// Snapshot is the current risk view of an account.
type Snapshot struct {
	AccountID              string    `json:"accountId"`
	DailyTrades            int       `json:"dailyTrades"`
	DailyLoss              float64   `json:"dailyLoss"`
	DailyLossPct           float64   `json:"dailyLossPercent"`
	DrawdownPct            float64   `json:"drawdownPercent"`
	PeakEquity             float64   `json:"peakEquity"`
	OpenPositions          int       `json:"openPositions"`
	FreeMargin             float64   `json:"freeMargin"`
	DailyLossLimitPct      float64   `json:"dailyLossLimit"`
	MaxDrawdownPct         float64   `json:"maxDrawdown"`
	MaxTradesPerDay        int       `json:"maxTradesPerDay"`
	MaxConcurrentPositions int       `json:"maxConcurrentPositions"`
	At                     time.Time `json:"at"`
}

// Breached reports whether the drawdown exceeds the account limit, the same
// comparison the max_drawdown rule uses.
func (s Snapshot) Breached() bool {
	return s.MaxDrawdownPct > 0 && s.DrawdownPct > s.MaxDrawdownPct
}

func (v *Validator) Snapshot(ctx context.Context, accountID string) (Snapshot, error) {
	st, acc, err := v.State(ctx, accountID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		AccountID:              acc.ID,
		DailyTrades:            st.TradesToday,
		DailyLoss:              st.DailyLoss(),
		DrawdownPct:            st.DrawdownPct(),
		PeakEquity:             st.PeakEquity,
		OpenPositions:          st.OpenPositions,
		FreeMargin:             st.FreeMargin,
		DailyLossLimitPct:      st.DailyLossLimitPct,
		MaxDrawdownPct:         st.MaxDrawdownPct,
		MaxTradesPerDay:        v.Config.MaxTradesPerDay,
		MaxConcurrentPositions: v.Config.MaxConcurrentPositions,
		At:                     v.now(),
	}
	if st.Balance > 0 {
		snap.DailyLossPct = snap.DailyLoss / st.Balance * 100
	}
	return snap, nil
}

// State reads the account and the trade counters the rules need.
func (v *Validator) State(ctx context.Context, accountID string) (State, *models.Account, error) {
	acc, err := v.Repo.GetAccount(ctx, accountID)
	if err != nil {
		return State{}, nil, apperr.Internal("get account", err)
	}
	if acc == nil {
		return State{}, nil, apperr.NotFound("ACCOUNT_NOT_FOUND", "account not found")
	}
	now := v.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	closed, err := v.Repo.ListTrades(ctx, repository.ListTradesParams{
		AccountID: acc.ID,
		Statuses:  []models.TradeStatus{models.TradeClosed},
		OrderBy:   repository.OrderByExitTime,
		Asc:       true,
	})
	if err != nil {
		return State{}, nil, apperr.Internal("list closed trades", err)
	}
	today, err := v.Repo.CountTrades(ctx, repository.ListTradesParams{AccountID: acc.ID, CreatedFrom: &dayStart})
	if err != nil {
		return State{}, nil, apperr.Internal("count trades", err)
	}
	open, err := v.Repo.CountTrades(ctx, repository.ListTradesParams{
		AccountID: acc.ID,
		Statuses:  []models.TradeStatus{models.TradeOpen},
	})
	if err != nil {
		return State{}, nil, apperr.Internal("count open trades", err)
	}

	st := State{
		Balance:           acc.Balance,
		Equity:            acc.Equity,
		FreeMargin:        acc.FreeMargin,
		PeakEquity:        acc.Balance,
		TradesToday:       int(today),
		OpenPositions:     int(open),
		DailyLossLimitPct: acc.DailyLossLimitPct,
		MaxDrawdownPct:    acc.MaxDrawdownPct,
	}
	if st.DailyLossLimitPct <= 0 {
		st.DailyLossLimitPct = v.Config.DefaultDailyLossPct
	}
	if st.MaxDrawdownPct <= 0 {
		st.MaxDrawdownPct = v.Config.DefaultMaxDrawdownPct
	}
	running := acc.Balance
	for _, t := range closed {
		running += t.ProfitValue()
		if running > st.PeakEquity {
			st.PeakEquity = running
		}
		if t.ExitTime != nil && !t.ExitTime.Before(dayStart) {
			st.DailyRealized += t.ProfitValue()
		}
	}
	return st, acc, nil
}

func (v *Validator) now() time.Time {
	if v.Clock == nil {
		return time.Now().UTC()
	}
	return v.Clock.Now().UTC()
}

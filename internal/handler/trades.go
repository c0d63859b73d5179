package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"propdesk/internal/apperr"
	"propdesk/internal/auth"
	"propdesk/internal/ledger"
	"propdesk/internal/models"
	"propdesk/internal/risk"
)

const maxTradeListLimit = 500

type TradeHandler struct {
	Trades *ledger.TradeLedger
	Risk   *risk.Validator
}

func (h *TradeHandler) Register(r *gin.Engine) {
	g := r.Group("/api/trades")
	g.POST("", h.create)
	g.GET("", h.list)
	g.POST("/validate", h.validate)
	g.GET("/stats/:accountId", h.stats)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.POST("/:id/open", h.open)
	g.POST("/:id/close", h.close)
	g.POST("/:id/cancel", h.cancel)
}

type openTradeRequest struct {
	Price  float64 `json:"price"`
	Ticket string  `json:"ticket"`
}

type closeTradeRequest struct {
	ExitPrice float64    `json:"exitPrice"`
	ExitTime  *time.Time `json:"exitTime,omitempty"`
}

type updateTradeRequest struct {
	StopLoss   *float64            `json:"stopLoss,omitempty"`
	TakeProfit *float64            `json:"takeProfit,omitempty"`
	Status     *models.TradeStatus `json:"status,omitempty"`
	ExitPrice  *float64            `json:"exitPrice,omitempty"`
	ExitTime   *time.Time          `json:"exitTime,omitempty"`
}

type validateTradeResponse struct {
	risk.Result
	SuggestedVolume float64 `json:"suggestedVolume"`
}

// @Summary Place a manual trade
// @Description The proposal is checked against the account's risk limits before it is recorded.
// @Tags trades
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body ledger.CreateTradeInput true "trade"
// @Success 201 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 422 {object} apiResponse
// @Router /api/trades [post]
func (h *TradeHandler) create(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var in ledger.CreateTradeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	if err := h.checkRisk(c.Request.Context(), id, in); err != nil {
		Fail(c, err)
		return
	}
	trade, err := h.Trades.Create(c.Request.Context(), id, in)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, trade)
}

// checkRisk runs only for complete proposals; incomplete ones are rejected by
// the ledger with field errors.
func (h *TradeHandler) checkRisk(ctx context.Context, id auth.Identity, in ledger.CreateTradeInput) error {
	if h.Risk == nil || strings.TrimSpace(in.AccountID) == "" || !(in.EntryPrice > 0 && in.Volume > 0 && in.StopLoss > 0) {
		return nil
	}
	acc, err := h.Trades.Accounts.Get(ctx, id, strings.TrimSpace(in.AccountID))
	if err != nil {
		return err
	}
	res, err := h.Risk.Validate(ctx, acc.ID, proposalFrom(in))
	if err != nil {
		return err
	}
	if !res.IsValid {
		return apperr.RiskViolation(res.Messages())
	}
	return nil
}

// @Summary Dry-run the risk checks for a trade
// @Tags trades
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body ledger.CreateTradeInput true "proposal"
// @Success 200 {object} apiResponse
// @Router /api/trades/validate [post]
func (h *TradeHandler) validate(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var in ledger.CreateTradeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	if h.Risk == nil {
		Fail(c, apperr.Unavailable("RISK_UNAVAILABLE", nil))
		return
	}
	acc, err := h.Trades.Accounts.Get(c.Request.Context(), id, strings.TrimSpace(in.AccountID))
	if err != nil {
		Fail(c, err)
		return
	}
	res, err := h.Risk.Validate(c.Request.Context(), acc.ID, proposalFrom(in))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, validateTradeResponse{
		Result:          res,
		SuggestedVolume: h.Risk.SuggestVolume(acc.Balance, in.EntryPrice, in.StopLoss),
	}, nil)
}

// @Summary List trades
// @Tags trades
// @Produce json
// @Security BearerAuth
// @Param accountId query string false "account id"
// @Param status query string false "pending, open, closed or cancelled"
// @Param limit query int false "max items"
// @Success 200 {object} apiResponse
// @Router /api/trades [get]
func (h *TradeHandler) list(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 100)
	if limit <= 0 || limit > maxTradeListLimit {
		limit = maxTradeListLimit
	}
	status := models.TradeStatus(strings.ToLower(trimQuery(c, "status")))
	if status != "" && !status.Valid() {
		Fail(c, apperr.Validation("INVALID_STATUS", "unknown trade status", map[string]string{"status": string(status)}))
		return
	}
	items, err := h.Trades.List(c.Request.Context(), id, ledger.TradeFilter{
		AccountID: trimQuery(c, "accountId"),
		Status:    status,
		Limit:     limit,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"total": len(items), "limit": limit})
}

// @Summary Get a trade
// @Tags trades
// @Produce json
// @Security BearerAuth
// @Param id path string true "trade id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/trades/{id} [get]
func (h *TradeHandler) get(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	trade, err := h.Trades.Get(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, trade, nil)
}

// @Summary Update a trade
// @Description Moves stop loss or take profit. Status closed closes the trade at exitPrice; cancelled cancels it.
// @Tags trades
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "trade id"
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/trades/{id} [put]
func (h *TradeHandler) update(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var in updateTradeRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	ctx := c.Request.Context()
	tradeID := c.Param("id")

	var (
		trade *models.Trade
		err   error
	)
	if in.StopLoss != nil || in.TakeProfit != nil {
		trade, err = h.Trades.Update(ctx, id, tradeID, ledger.UpdateTradeInput{StopLoss: in.StopLoss, TakeProfit: in.TakeProfit})
		if err != nil {
			Fail(c, err)
			return
		}
	}
	if in.Status != nil {
		switch models.TradeStatus(strings.ToLower(string(*in.Status))) {
		case models.TradeClosed:
			if in.ExitPrice == nil {
				Fail(c, apperr.Validation("MISSING_FIELDS", "exitPrice is required to close", map[string]string{"exitPrice": "required"}))
				return
			}
			trade, err = h.Trades.Close(ctx, id, tradeID, *in.ExitPrice, in.ExitTime)
		case models.TradeCancelled:
			trade, err = h.Trades.Cancel(ctx, id, tradeID)
		default:
			err = apperr.Validation("INVALID_STATUS", "status can only be closed or cancelled", map[string]string{"status": string(*in.Status)})
		}
		if err != nil {
			Fail(c, err)
			return
		}
	}
	if trade == nil {
		if trade, err = h.Trades.Get(ctx, id, tradeID); err != nil {
			Fail(c, err)
			return
		}
	}
	Ok(c, trade, nil)
}

// @Summary Mark a pending trade as filled
// @Tags trades
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "trade id"
// @Success 200 {object} apiResponse
// @Router /api/trades/{id}/open [post]
func (h *TradeHandler) open(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var in openTradeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, "invalid body")
			return
		}
	}
	trade, err := h.Trades.Open(c.Request.Context(), id, c.Param("id"), in.Price, in.Ticket)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, trade, nil)
}

// @Summary Close an open trade
// @Tags trades
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "trade id"
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/trades/{id}/close [post]
func (h *TradeHandler) close(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var in closeTradeRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	trade, err := h.Trades.Close(c.Request.Context(), id, c.Param("id"), in.ExitPrice, in.ExitTime)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, trade, nil)
}

// @Summary Cancel a pending trade
// @Tags trades
// @Produce json
// @Security BearerAuth
// @Param id path string true "trade id"
// @Success 200 {object} apiResponse
// @Router /api/trades/{id}/cancel [post]
func (h *TradeHandler) cancel(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	trade, err := h.Trades.Cancel(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, trade, nil)
}

// @Summary Closed-trade statistics of an account
// @Tags trades
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "account id"
// @Success 200 {object} apiResponse
// @Router /api/trades/stats/{accountId} [get]
func (h *TradeHandler) stats(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	stats, err := h.Trades.Stats(c.Request.Context(), id, c.Param("accountId"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, stats, nil)
}

func proposalFrom(in ledger.CreateTradeInput) risk.Proposal {
	p := risk.Proposal{
		Symbol:     strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Side:       models.TradeSide(strings.ToUpper(strings.TrimSpace(string(in.Side)))),
		EntryPrice: in.EntryPrice,
		Volume:     in.Volume,
		StopLoss:   in.StopLoss,
		TakeProfit: in.TakeProfit,
	}
	if rr, ok := ledger.RiskReward(in.EntryPrice, in.StopLoss, in.TakeProfit); ok {
		p.RiskReward = rr
	}
	return p
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"propdesk/internal/ledger"
	"propdesk/internal/risk"
)

type AccountHandler struct {
	Accounts *ledger.AccountLedger
	Risk     *risk.Validator
}

func (h *AccountHandler) Register(r *gin.Engine) {
	g := r.Group("/api/accounts")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/verify", h.transition(ledger.EventVerify))
	g.POST("/:id/start-trading", h.transition(ledger.EventStartTrading))
	g.POST("/:id/pause", h.transition(ledger.EventPause))
	g.GET("/:id/risk", h.risk)
}

// @Summary Create a challenge account
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body ledger.CreateAccountInput true "account"
// @Success 201 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/accounts [post]
func (h *AccountHandler) create(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var in ledger.CreateAccountInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	acc, err := h.Accounts.Create(c.Request.Context(), id, in)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, acc)
}

// @Summary List accounts
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} apiResponse
// @Router /api/accounts [get]
func (h *AccountHandler) list(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	items, err := h.Accounts.List(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

// @Summary Get an account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "account id"
// @Success 200 {object} apiResponse
// @Failure 403 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/accounts/{id} [get]
func (h *AccountHandler) get(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	acc, err := h.Accounts.Get(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, acc, nil)
}

// @Summary Rename an account or change its status
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "account id"
// @Param body body ledger.UpdateAccountInput true "changes"
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/accounts/{id} [put]
func (h *AccountHandler) update(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var in ledger.UpdateAccountInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	acc, err := h.Accounts.Update(c.Request.Context(), id, c.Param("id"), in)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, acc, nil)
}

// @Summary Delete an account
// @Tags accounts
// @Security BearerAuth
// @Param id path string true "account id"
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/accounts/{id} [delete]
func (h *AccountHandler) delete(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	if err := h.Accounts.Delete(c.Request.Context(), id, c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"deleted": true}, nil)
}

func (h *AccountHandler) transition(ev ledger.Event) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := actor(c)
		if !ok {
			return
		}
		acc, err := h.Accounts.Transition(c.Request.Context(), id, c.Param("id"), ev)
		if err != nil {
			Fail(c, err)
			return
		}
		Ok(c, acc, nil)
	}
}

// @Summary Risk metrics of an account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "account id"
// @Success 200 {object} apiResponse
// @Router /api/accounts/{id}/risk [get]
func (h *AccountHandler) risk(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	acc, err := h.Accounts.Get(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	if h.Risk == nil {
		Error(c, http.StatusServiceUnavailable, "risk validator unavailable", nil)
		return
	}
	snap, err := h.Risk.Snapshot(c.Request.Context(), acc.ID)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, snap, nil)
}

package handler

import (
	"github.com/gin-gonic/gin"

	"propdesk/internal/service"
)

type StrategyHandler struct {
	Service *service.StrategyService
}

func (h *StrategyHandler) Register(r *gin.Engine) {
	g := r.Group("/api/strategies")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/enable", h.setEnabled(true))
	g.POST("/:id/disable", h.setEnabled(false))
}

// @Summary Attach a strategy to an account
// @Tags strategies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateStrategyInput true "strategy"
// @Success 201 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/strategies [post]
func (h *StrategyHandler) create(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var in service.CreateStrategyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	item, err := h.Service.Create(c.Request.Context(), id, in)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, item)
}

// @Summary List strategies
// @Tags strategies
// @Produce json
// @Security BearerAuth
// @Param accountId query string false "account id"
// @Success 200 {object} apiResponse
// @Router /api/strategies [get]
func (h *StrategyHandler) list(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	items, err := h.Service.List(c.Request.Context(), id, trimQuery(c, "accountId"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

// @Summary Get a strategy
// @Tags strategies
// @Produce json
// @Security BearerAuth
// @Param id path string true "strategy id"
// @Success 200 {object} apiResponse
// @Router /api/strategies/{id} [get]
func (h *StrategyHandler) get(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	item, err := h.Service.Get(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, item, nil)
}

// @Summary Update strategy parameters or symbols
// @Tags strategies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "strategy id"
// @Param body body service.UpdateStrategyInput true "changes"
// @Success 200 {object} apiResponse
// @Router /api/strategies/{id} [put]
func (h *StrategyHandler) update(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	var in service.UpdateStrategyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	item, err := h.Service.Update(c.Request.Context(), id, c.Param("id"), in)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, item, nil)
}

// @Summary Delete a strategy
// @Tags strategies
// @Security BearerAuth
// @Param id path string true "strategy id"
// @Success 200 {object} apiResponse
// @Router /api/strategies/{id} [delete]
func (h *StrategyHandler) delete(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	if err := h.Service.Delete(c.Request.Context(), id, c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"deleted": true}, nil)
}

func (h *StrategyHandler) setEnabled(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := actor(c)
		if !ok {
			return
		}
		item, err := h.Service.SetEnabled(c.Request.Context(), id, c.Param("id"), enabled)
		if err != nil {
			Fail(c, err)
			return
		}
		Ok(c, item, nil)
	}
}

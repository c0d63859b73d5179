package handler

import (
	"github.com/gin-gonic/gin"

	"propdesk/internal/service"
)

type DashboardHandler struct {
	Service *service.DashboardService
}

func (h *DashboardHandler) Register(r *gin.Engine) {
	g := r.Group("/api/dashboard")
	g.GET("/stats/overview", h.overview)
	g.GET("/performance-chart/:accountId", h.chart)
	g.GET("/metrics/:accountId", h.metrics)
	g.GET("/alerts/:accountId", h.alerts)
	g.POST("/alerts/:accountId/:alertId/read", h.markRead)
	g.GET("/:accountId", h.dashboard)
}

// @Summary Account dashboard
// @Tags dashboard
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "account id"
// @Success 200 {object} apiResponse
// @Router /api/dashboard/{accountId} [get]
func (h *DashboardHandler) dashboard(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	out, err := h.Service.Dashboard(c.Request.Context(), id, c.Param("accountId"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, out, nil)
}

// @Summary Portfolio overview across the caller's accounts
// @Tags dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} apiResponse
// @Router /api/dashboard/stats/overview [get]
func (h *DashboardHandler) overview(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	out, err := h.Service.Overview(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, out, nil)
}

// @Summary Equity curve
// @Tags dashboard
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "account id"
// @Success 200 {object} apiResponse
// @Router /api/dashboard/performance-chart/{accountId} [get]
func (h *DashboardHandler) chart(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	points, err := h.Service.PerformanceChart(c.Request.Context(), id, c.Param("accountId"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, points, map[string]any{"total": len(points)})
}

// @Summary Performance metrics
// @Tags dashboard
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "account id"
// @Success 200 {object} apiResponse
// @Router /api/dashboard/metrics/{accountId} [get]
func (h *DashboardHandler) metrics(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	m, err := h.Service.Metrics(c.Request.Context(), id, c.Param("accountId"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, m, nil)
}

// @Summary Active alerts
// @Tags dashboard
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "account id"
// @Param unread query bool false "only unread alerts"
// @Success 200 {object} apiResponse
// @Router /api/dashboard/alerts/{accountId} [get]
func (h *DashboardHandler) alerts(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	items, err := h.Service.Alerts(c.Request.Context(), id, c.Param("accountId"))
	if err != nil {
		Fail(c, err)
		return
	}
	if boolQueryDefault(c, "unread", false) {
		unread := items[:0:0]
		for _, a := range items {
			if !a.Read {
				unread = append(unread, a)
			}
		}
		items = unread
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

// @Summary Mark an alert read
// @Tags dashboard
// @Security BearerAuth
// @Param accountId path string true "account id"
// @Param alertId path string true "alert id"
// @Success 200 {object} apiResponse
// @Router /api/dashboard/alerts/{accountId}/{alertId}/read [post]
func (h *DashboardHandler) markRead(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	if err := h.Service.MarkAlertRead(c.Request.Context(), id, c.Param("accountId"), c.Param("alertId")); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"read": true}, nil)
}

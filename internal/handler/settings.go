package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"propdesk/internal/apperr"
	"propdesk/internal/service"
)

type SettingsHandler struct {
	Service *service.SystemSettingsService
}

func (h *SettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/settings")
	g.GET("", h.list)
	g.PUT("/:key", h.set)
}

type setSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

// @Summary List runtime settings
// @Description Sensitive values are redacted.
// @Tags settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} apiResponse
// @Failure 403 {object} apiResponse
// @Router /api/settings [get]
func (h *SettingsHandler) list(c *gin.Context) {
	if !h.admin(c) {
		return
	}
	items, err := h.Service.List(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

// @Summary Set a runtime setting
// @Tags settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param key path string true "setting key"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 403 {object} apiResponse
// @Router /api/settings/{key} [put]
func (h *SettingsHandler) set(c *gin.Context) {
	if !h.admin(c) {
		return
	}
	var in setSettingRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	item, err := h.Service.Set(c.Request.Context(), c.Param("key"), in.Value)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *SettingsHandler) admin(c *gin.Context) bool {
	id, ok := actor(c)
	if !ok {
		return false
	}
	if !id.IsAdmin() {
		Fail(c, apperr.Forbidden())
		return false
	}
	return true
}

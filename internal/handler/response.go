package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"propdesk/internal/apperr"
	"propdesk/internal/auth"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, apiResponse{
		Code:    0,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail maps err to a status through its kind. Field errors, the current
// state and risk violations go to meta; 5xx text is never exposed.
func Fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		if e, ok := apperr.As(err); ok && e.Kind == apperr.KindExternalUnavailable {
			Error(c, status, "upstream unavailable", map[string]any{"error": e.Code})
			return
		}
		_ = c.Error(err)
		Error(c, status, "internal error", nil)
		return
	}
	e, ok := apperr.As(err)
	if !ok {
		Error(c, status, err.Error(), nil)
		return
	}
	meta := map[string]any{}
	if e.Code != "" {
		meta["error"] = e.Code
	}
	if len(e.Fields) > 0 {
		meta["fields"] = e.Fields
	}
	if e.State != "" {
		meta["state"] = e.State
	}
	if len(e.Violations) > 0 {
		meta["violations"] = e.Violations
	}
	if len(meta) == 0 {
		meta = nil
	}
	Error(c, status, e.Message, meta)
}

func badRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, msg, map[string]any{"error": "INVALID_BODY"})
}

// actor returns the caller identity; the auth middleware guarantees one on
// protected routes.
func actor(c *gin.Context) (auth.Identity, bool) {
	id, ok := auth.FromGin(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "unauthorized", nil)
	}
	return id, ok
}

package handler

import (
	"github.com/gin-gonic/gin"

	"propdesk/internal/auth"
)

type AuthHandler struct {
	Service *auth.Service
}

func (h *AuthHandler) Register(r *gin.Engine) {
	g := r.Group("/api/auth")
	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.GET("/me", h.me)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// @Summary Register a user
// @Tags auth
// @Accept json
// @Produce json
// @Param body body auth.RegisterInput true "registration"
// @Success 201 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	var in auth.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	session, err := h.Service.Register(c.Request.Context(), in)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, session)
}

// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Router /api/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var in loginRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body")
		return
	}
	session, err := h.Service.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, session, nil)
}

// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} apiResponse
// @Router /api/auth/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	user, err := h.Service.Me(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, user, nil)
}

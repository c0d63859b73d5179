package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ginIdentityKey = "auth.identity"

// Middleware requires a valid bearer token on /api routes, except the
// register/login endpoints. Infra endpoints and swagger stay open.
func Middleware(j JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if isOpenPath(p) {
			c.Next()
			return
		}
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" && p == "/api/ws" {
			// Browsers cannot set headers on websocket upgrades.
			tok = strings.TrimSpace(c.Query("token"))
		}
		if tok == "" {
			abort(c, "missing bearer token")
			return
		}
		claims, err := j.Verify(tok)
		if err != nil {
			abort(c, "invalid token")
			return
		}
		id := claims.Identity()
		c.Set(ginIdentityKey, id)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// FromGin returns the identity set by Middleware.
func FromGin(c *gin.Context) (Identity, bool) {
	if c == nil {
		return Identity{}, false
	}
	if v, ok := c.Get(ginIdentityKey); ok {
		if id, ok := v.(Identity); ok {
			return id, true
		}
	}
	if c.Request == nil {
		return Identity{}, false
	}
	return FromContext(c.Request.Context())
}

func isOpenPath(p string) bool {
	switch p {
	case "/healthz", "/readyz", "/api/auth/register", "/api/auth/login":
		return true
	}
	if strings.HasPrefix(p, "/swagger") {
		return true
	}
	return !strings.HasPrefix(p, "/api/")
}

func abort(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": msg})
}

func bearerToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# Propdesk

Prop-firm challenge desk: accounts, trades, strategies, risk limits and alerts.

## Auth

POST /api/auth/register and POST /api/auth/login return a bearer token.
Every other /api/* route requires "Authorization: Bearer <token>".
The websocket at /api/ws also accepts ?token=.

## Routes

- GET /healthz, GET /readyz
- GET /swagger/index.html
- /api/accounts (CRUD, /verify, /start-trading, /pause, /risk)
- /api/trades (CRUD, /open, /close, /cancel, /stats/:accountId, /validate)
- /api/strategies (CRUD, /enable, /disable)
- /api/dashboard/:accountId, /api/dashboard/stats/overview
- /api/dashboard/performance-chart/:accountId, /api/dashboard/alerts/:accountId
- /api/settings (admin)
- /api/ws (event stream)
`)
	})
}

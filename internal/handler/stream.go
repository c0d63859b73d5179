package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"propdesk/internal/audit"
	"propdesk/internal/auth"
	"propdesk/internal/ledger"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 30 * time.Second
)

// StreamHandler pushes business events to websocket clients. Admins receive
// everything; other users receive events they caused or that touch their
// accounts.
type StreamHandler struct {
	Hub            *audit.Hub
	Accounts       *ledger.AccountLedger
	OriginPatterns []string
	Logger         *zap.Logger
}

func (h *StreamHandler) Register(r *gin.Engine) {
	r.GET("/api/ws", h.stream)
}

// @Summary Live event stream
// @Description Upgrades to a websocket. Browsers pass the token as ?token=.
// @Tags stream
// @Security BearerAuth
// @Router /api/ws [get]
func (h *StreamHandler) stream(c *gin.Context) {
	id, ok := actor(c)
	if !ok {
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		h.logger().Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	sub := h.Hub.Subscribe(streamBuffer, nil)
	defer h.Hub.Unsubscribe(sub)

	// The client never sends data; CloseRead handles control frames and
	// cancels ctx when the peer goes away.
	ctx := conn.CloseRead(c.Request.Context())
	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	visible := h.visibility(id)
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case ev, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutdown")
				return
			}
			if !visible(ctx, ev) {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				h.logger().Debug("websocket write failed", zap.String("user_id", id.UserID), zap.Error(err))
				return
			}
		}
	}
}

// visibility decides per event whether id may see it. Account ownership is
// resolved once per account and remembered for the connection.
func (h *StreamHandler) visibility(id auth.Identity) func(context.Context, audit.Event) bool {
	if id.IsAdmin() {
		return func(context.Context, audit.Event) bool { return true }
	}
	owned := map[string]bool{}
	return func(ctx context.Context, ev audit.Event) bool {
		if ev.UserID == id.UserID {
			return true
		}
		if ev.AccountID == "" || h.Accounts == nil {
			return false
		}
		if v, ok := owned[ev.AccountID]; ok {
			return v
		}
		_, err := h.Accounts.Get(ctx, id, ev.AccountID)
		owned[ev.AccountID] = err == nil
		return err == nil
	}
}

func (h *StreamHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

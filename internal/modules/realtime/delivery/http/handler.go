package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	rtDto "anoa.com/friendline/internal/modules/realtime/dto"
	realtime "anoa.com/friendline/internal/modules/realtime/service"
	"anoa.com/friendline/pkg/metrics"
	"anoa.com/friendline/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

type RealtimeHandler struct {
	deps     realtime.Deps
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewRealtimeHandler accepts upgrades from any origin in allowed, or from
// anywhere when allowed is empty.
func NewRealtimeHandler(deps realtime.Deps, allowed []string, log *zap.Logger) *RealtimeHandler {
	if log == nil {
		log = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[o] = struct{}{}
	}

	return &RealtimeHandler{
		deps: deps,
		log:  log.Named("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}

func (h *RealtimeHandler) HandleWebSocket(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.RealtimeSessions.Inc()
	defer metrics.RealtimeSessions.Dec()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	session := realtime.NewSession(h.deps, userID)

	written := make(chan struct{})
	go func() {
		defer close(written)
		h.writePump(conn, session.Frames())
		cancel()
		drain(session.Frames())
	}()

	go func() {
		defer cancel()
		h.readPump(conn, session)
	}()

	if err := session.Run(ctx); err != nil {
		h.log.Warn("realtime session ended", zap.String("user_id", userID.String()), zap.Error(err))
	}
	<-written
}

// readPump decodes client actions until the connection drops.
func (h *RealtimeHandler) readPump(conn *websocket.Conn, session *realtime.Session) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var action rtDto.Action
		if err := json.Unmarshal(raw, &action); err != nil {
			action = rtDto.Action{Type: "malformed"}
		}
		session.Handle(action)
	}
}

// writePump forwards frames until the session closes its outbox or a write
// fails, pinging in between so idle connections stay open through proxies.
func (h *RealtimeHandler) writePump(conn *websocket.Conn, frames <-chan rtDto.Frame) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				h.log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain discards frames so the session never blocks on a dead connection.
func drain(frames <-chan rtDto.Frame) {
	for range frames {
	}
}

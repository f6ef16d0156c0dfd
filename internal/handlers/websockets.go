package handlers

import (
	"context"
	"net/http"
	"time"

	"oven_controller/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB

	wsTypeState = "state"
	wsTypeError = "error"
	errNoState  = "oven state not available yet"
)

type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Any origin is accepted, as for CORS.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// @Summary      Oven state stream
// @Description  WebSocket. Sends the current state on connect, then every state the control loop commits.
// @Tags         oven
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	var updates <-chan models.OvenState
	if feed := h.services.StateFeed; feed != nil {
		ch, unsubscribe := feed.Subscribe()
		defer unsubscribe()
		updates = ch
	}

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	closed := make(chan struct{})
	go h.readUntilClosed(conn, closed)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := h.writeEnvelope(conn, h.initialState(c.Request.Context())); err != nil {
		h.logWS("ws_write_failed_initial", err)
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logWS("ws_ping_failed", err)
				return
			}
		case st := <-updates:
			if err := h.writeEnvelope(conn, wsEnvelope{Type: wsTypeState, Data: st}); err != nil {
				h.logWS("ws_write_failed", err)
				return
			}
		}
	}
}

// initialState prefers the state the control loop last committed. Before the
// first tick it falls back to a status read; if that fails too the client
// gets an error frame and waits for the loop.
func (h *Handler) initialState(ctx context.Context) wsEnvelope {
	if feed := h.services.StateFeed; feed != nil {
		if st, ok := feed.Last(); ok {
			return wsEnvelope{Type: wsTypeState, Data: st}
		}
	}
	if h.services.Oven != nil {
		st, err := h.services.Oven.Status(ctx)
		if err == nil {
			return wsEnvelope{Type: wsTypeState, Data: st}
		}
		if h.log != nil {
			h.log.Warnw("ws_initial_status_failed", "err", err)
		}
	}
	return wsEnvelope{Type: wsTypeError, Error: errNoState}
}

func (h *Handler) writeEnvelope(conn *websocket.Conn, env wsEnvelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}

// readUntilClosed consumes control frames and reports when the peer goes away.
func (h *Handler) readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.logWS("ws_read_closed", err)
			return
		}
	}
}

func (h *Handler) logWS(key string, err error) {
	if h.log != nil {
		h.log.Infow(key, "err", err)
	}
}

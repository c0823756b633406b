package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/yardline/internal/realtime"
)

const writeDeadline = 5 * time.Second

// WSHandler upgrades authenticated requests to WebSocket connections
// and registers them with the live delivery registry. The registry owns
// the connection from then on; this handler's read loop exists only to
// observe the disconnect.
type WSHandler struct {
	registry *realtime.Registry
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(registry *realtime.Registry) *WSHandler {
	return &WSHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin policy is enforced by the CORS middleware
			// in front of the upgrade.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Attach handles GET /api/v1/ws.
func (h *WSHandler) Attach(c echo.Context) error {
	userID := UserID(c)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "WebSocket upgrade failed")
	}

	channel := newWSChannel(conn)
	connectionID := h.registry.Register(userID, channel)
	if connectionID == "" {
		// Registry is draining; the channel was already closed.
		return nil
	}

	// Block until the client goes away. Inbound frames carry no
	// protocol meaning; events only flow server to client.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	if h.registry.UnregisterConn(userID, connectionID) {
		log.Debug().Str("user_id", userID).Msg("websocket read loop ended")
	}

	return nil
}

// wsChannel adapts a gorilla WebSocket connection to the registry's
// Channel interface. Writes are serialized: the registry's Send and
// Broadcast may race from different workers.
type wsChannel struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{conn: conn}
}

func (ch *wsChannel) Send(ctx context.Context, data []byte) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	deadline := time.Now().Add(writeDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := ch.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return ch.conn.WriteMessage(websocket.TextMessage, data)
}

func (ch *wsChannel) Close() error {
	return ch.conn.Close()
}

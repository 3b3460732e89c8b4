package realtime

import (
	"net/http"
	"time"

	authDelivery "crmboard/internal/auth/delivery"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

// Handler serves GET /api/realtime?table=...&filter=... as a websocket stream of change events
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler creates the websocket handler. allowedOrigin "*" accepts any origin.
func NewHandler(hub *Hub, allowedOrigin string, log zerolog.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
		log: log.With().Str("component", "realtime_ws").Logger(),
	}
}

func (h *Handler) Serve(c *gin.Context) {
	table := c.Query("table")
	if !ValidTable(table) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown table"})
		return
	}
	filter, err := ParseFilter(c.Query("filter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if filter.TenantID != c.GetString(authDelivery.ContextTenantID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "tenant mismatch"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	sub := h.hub.Subscribe(table, filter)
	h.log.Debug().Str("table", table).Str("filter", filter.String()).Str("user_id", c.GetString(authDelivery.ContextUserID)).Msg("subscribed")

	go h.readLoop(conn, sub)
	h.writeLoop(conn, sub)
}

// readLoop discards client frames and closes the subscription once the peer goes away
func (h *Handler) readLoop(conn *websocket.Conn, sub *Subscription) {
	defer sub.Close()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// dropped or peer gone: tell the client so it resubscribes and reloads
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscription closed"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
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

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/fetch-install-go/internal/app"
)

const (
	eventBuffer  = 64
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool, any origin
	},
}

// EventWebSocketHandler streams transfer events to WebSocket clients
type EventWebSocketHandler struct {
	service *app.TransferService
	logger  *zap.Logger
}

// NewEventWebSocketHandler creates a new WebSocket handler
func NewEventWebSocketHandler(service *app.TransferService, log *zap.Logger) *EventWebSocketHandler {
	return &EventWebSocketHandler{
		service: service,
		logger:  log,
	}
}

// HandleWebSocket handles GET /api/v1/events. The optional target query
// restricts the stream to one download target. The current snapshots are
// sent first.
func (h *EventWebSocketHandler) HandleWebSocket(c *gin.Context) {
	filter := c.Query("target")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.service.Events().Subscribe(eventBuffer)
	defer unsubscribe()

	h.logger.Info("WebSocket client connected",
		zap.String("target", filter),
		zap.String("remote_addr", c.Request.RemoteAddr))

	for _, snapshot := range h.service.List() {
		if filter != "" && snapshot.Target != filter {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(gin.H{"type": "snapshot", "snapshot": snapshot}); err != nil {
			h.logger.Debug("Failed to send snapshot", zap.Error(err))
			return
		}
	}

	// Reads only detect the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if filter != "" && event.Target != filter {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("Failed to send event", zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			h.logger.Info("WebSocket client disconnected", zap.String("remote_addr", c.Request.RemoteAddr))
			return
		}
	}
}

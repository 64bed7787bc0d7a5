package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/draftbench/livebuild/internal/domain/event"
	"github.com/draftbench/livebuild/internal/infrastructure/logging"
	"github.com/draftbench/livebuild/internal/infrastructure/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

const writeWait = 10 * time.Second

// Handler streams build-lifecycle events to UI clients over WebSocket.
type Handler struct {
	notifier *event.Notifier
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler
func NewHandler(notifier *event.Notifier, log *logging.Logger) *Handler {
	return &Handler{
		notifier: notifier,
		log:      log,
	}
}

// WithMetrics enables connection metrics.
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// HandleConnection upgrades the request and forwards lifecycle events until
// the client disconnects. An optional ?session= query parameter narrows the
// stream to one session.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	sessionFilter := c.Query("session")
	events, unsubscribe := h.notifier.Subscribe(64)
	defer unsubscribe()

	h.send(conn, map[string]interface{}{
		"type":      "connected",
		"timestamp": time.Now().Unix(),
	})

	// Reader drains control frames and detects disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if sessionFilter != "" && evt.SessionID != sessionFilter {
				continue
			}
			if err := h.send(conn, evt); err != nil {
				h.log.Debug("WebSocket write failed, dropping client", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}

// send marshals with sonic; rebuild-completed payloads carry full per-target
// results and are the hottest path on this connection.
func (h *Handler) send(conn *websocket.Conn, payload interface{}) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

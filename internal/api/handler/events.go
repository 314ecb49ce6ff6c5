package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marinewatch/marine/internal/domain"
	"github.com/marinewatch/marine/internal/logger"
	"github.com/marinewatch/marine/internal/notify"
)

// EventsHandler relays analysis events to browsers over Server-Sent Events.
type EventsHandler struct {
	hub       *notify.Hub
	keepalive time.Duration
}

// NewEventsHandler creates a new events handler.
// Parameters:
//   - hub: notification hub to subscribe against.
//   - keepalive: interval between SSE comment heartbeats.
// Returns:
//   - *EventsHandler: handler instance.
func NewEventsHandler(hub *notify.Hub, keepalive time.Duration) *EventsHandler {
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}
	return &EventsHandler{hub: hub, keepalive: keepalive}
}

// Subscribe opens an SSE stream for the user_key query parameter. Events
// flow until the client disconnects; heartbeat comments keep intermediate
// proxies from timing the connection out.
func (h *EventsHandler) Subscribe(c *gin.Context) {
	userKey := c.Query("user_key")
	if userKey == "" {
		respondError(c, domain.NewValidationError("user_key query parameter is required"))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	sub := h.hub.Subscribe(userKey)
	defer h.hub.Unsubscribe(sub)

	ctx := logger.WithField(c.Request.Context(), logger.FieldUserKey, userKey)
	logger.CtxInfo(ctx, "SSE subscriber connected")
	defer logger.CtxInfo(ctx, "SSE subscriber disconnected")

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	// Flush the headers right away so clients see the stream open before
	// the first event or heartbeat.
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(event.Type, event)
			// Real traffic restarts the heartbeat clock: a keepalive is
			// only due after a full quiet interval.
			ticker.Reset(h.keepalive)
			return true
		case <-ticker.C:
			// Comment-only frame, ignored by EventSource clients.
			_, err := io.WriteString(w, ": keepalive\n\n")
			return err == nil
		case <-c.Request.Context().Done():
			return false
		}
	})
}

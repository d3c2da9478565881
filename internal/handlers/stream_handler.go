package handlers

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kmoreland/leasepulse/internal/broadcast"
	"github.com/kmoreland/leasepulse/internal/middleware"
)

// StreamHandler attaches observers to the broadcast hub over Server-Sent
// Events. Every mutation committed while the client is connected is
// delivered as a JSON event; nothing is replayed for late joiners.
type StreamHandler struct {
	hub        *broadcast.Hub
	bufferSize int
}

// NewStreamHandler creates a new StreamHandler instance.
func NewStreamHandler(hub *broadcast.Hub, bufferSize int) *StreamHandler {
	return &StreamHandler{
		hub:        hub,
		bufferSize: bufferSize,
	}
}

// Stream handles GET /api/v1/units/stream.
// It registers the connection with the hub and forwards events until the
// client disconnects. A client that stops reading falls behind its buffer
// and is evicted by the hub on the next delivery timeout.
func (h *StreamHandler) Stream(c *gin.Context) {
	transport := broadcast.NewChannelTransport(h.bufferSize)
	observerID := uuid.NewString()

	h.hub.Register(observerID, transport)
	defer func() {
		transport.Close()
		h.hub.Deregister(observerID)
	}()

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Observer stream opened", map[string]interface{}{
			"observer_id": observerID,
		})
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-transport.Events():
			if !ok {
				return false
			}
			c.SSEvent("message", event)
			return true
		case <-clientGone:
			return false
		}
	})
}

package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bitfantasy/invoiceflow/internal/sse"
	"github.com/gin-gonic/gin"
)

// EventsHandler SSE事件流处理器
type EventsHandler struct {
	hub *sse.Hub
}

// NewEventsHandler 创建事件流处理器
func NewEventsHandler(hub *sse.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// Stream 发票变更事件流。客户端断开时注销订阅。
// GET /api/v1/events?token=
func (h *EventsHandler) Stream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		InternalError(c, "streaming unsupported")
		return
	}

	sub := h.hub.Subscribe(GetOrgID(c), GetUserID(c))
	defer sub.Close()

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"subscription_id\":%q}\n\n", sub.ID)
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.EventType, ev.Data)
			flusher.Flush()
		}
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ruleta-labs/spintrack/internal/roulette"
	"go.uber.org/zap"
)

const (
	StreamEventSnapshot  = "snapshot"
	StreamEventStatus    = "status"
	streamEventHeartbeat = "heartbeat"

	streamBufferSize      = 16
	streamHeartbeatPeriod = 25 * time.Second
)

type streamEvent struct {
	name string
	data interface{}
}

type statusEventPayload struct {
	State   roulette.ConnectionState `json:"state"`
	Message string                   `json:"message,omitempty"`
}

// handleStream serves the live view over server-sent events. Each connection
// owns a scope controller: a single-date scope streams a fresh snapshot after
// every change, a range scope delivers one snapshot and then only heartbeats.
func (h *httpHandler) handleStream(c *gin.Context) {
	scope, ok := h.parseScope(c)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming_unsupported"})
		return
	}

	events := make(chan streamEvent, streamBufferSize)
	push := func(event streamEvent) {
		// A stalled consumer drops intermediate events; every snapshot is a
		// full view, so the next delivery catches the client up.
		select {
		case events <- event:
		default:
		}
	}

	controller, err := roulette.NewController(roulette.ControllerConfig{
		Store: h.store,
		OnSnapshot: func(snapshot roulette.Snapshot) {
			push(streamEvent{name: StreamEventSnapshot, data: snapshot})
		},
		OnState: func(state roulette.ConnectionState, message string) {
			push(streamEvent{name: StreamEventStatus, data: statusEventPayload{State: state, Message: message}})
		},
		Logger: h.logger,
	})
	if err != nil {
		h.logger.Error("stream controller construction failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stream_failed"})
		return
	}
	defer controller.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	if err := controller.SetScope(c.Request.Context(), scope); err != nil {
		// The error event is already queued by the controller; keep the
		// stream open so the client sees the status and can retry.
		h.logger.Warn("stream scope entry failed", zap.Error(err))
	}

	heartbeat := time.NewTicker(streamHeartbeatPeriod)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if !writeStreamEvent(c, event) {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if !writeStreamEvent(c, streamEvent{name: streamEventHeartbeat, data: gin.H{"ts": h.clock().UTC().Unix()}}) {
				return
			}
			flusher.Flush()
		}
	}
}

func writeStreamEvent(c *gin.Context, event streamEvent) bool {
	payload, err := json.Marshal(event.data)
	if err != nil {
		return false
	}
	if _, err := c.Writer.WriteString("event: " + event.name + "\n"); err != nil {
		return false
	}
	if _, err := c.Writer.WriteString("data: " + string(payload) + "\n\n"); err != nil {
		return false
	}
	return true
}

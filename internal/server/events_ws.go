package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/stavrou/budgetd/internal/events"
)

const (
	// wsWriteWait bounds a single frame write.
	wsWriteWait = 5 * time.Second
	// wsHeartbeatInterval keeps idle connections alive through proxies.
	wsHeartbeatInterval = 30 * time.Second
)

// EventsWSHandler streams bus events to websocket clients. Alert, ingest
// and snapshot notifications arrive as JSON frames; the stream is read-only
// and client frames are discarded.
type EventsWSHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsWSHandler creates a new events stream handler.
func NewEventsWSHandler(bus *events.Bus, log zerolog.Logger) *EventsWSHandler {
	return &EventsWSHandler{
		bus: bus,
		log: log.With().Str("component", "events_ws").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws. An optional ?types= parameter
// narrows the stream to a comma-separated set of event types.
func (h *EventsWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	typesFilter := r.URL.Query().Get("types")

	var allowedTypes map[events.EventType]bool
	if typesFilter != "" {
		allowedTypes = make(map[events.EventType]bool)
		for _, t := range strings.Split(typesFilter, ",") {
			allowedTypes[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	// The HTTP layer already allows any origin, so the handshake does too.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket handshake failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	h.log.Info().Str("types_filter", typesFilter).Msg("Client connected to event stream")

	// Buffer to prevent blocking the bus; slow clients lose events rather
	// than stalling publishers.
	eventChan := make(chan *events.Event, 100)

	unsubscribe := h.bus.SubscribeAll(func(event *events.Event) {
		if allowedTypes != nil && !allowedTypes[event.Type] {
			return
		}
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	})
	defer unsubscribe()

	// The connection is hijacked, so the router's per-request deadline no
	// longer applies; disconnects surface through the read pump instead.
	ctx := conn.CloseRead(context.Background())

	if err := h.writeFrame(ctx, conn, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(wsHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from event stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event := <-eventChan:
			h.log.Debug().
				Str("event_type", string(event.Type)).
				Msg("Sending event to client")

			err := h.writeFrame(ctx, conn, map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			})
			if err != nil {
				h.log.Debug().Err(err).Msg("Event write failed, closing stream")
				return
			}

		case <-heartbeat.C:
			err := h.writeFrame(ctx, conn, map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			})
			if err != nil {
				h.log.Debug().Err(err).Msg("Heartbeat write failed, closing stream")
				return
			}
		}
	}
}

// writeFrame marshals payload and writes it as a single text frame.
func (h *EventsWSHandler) writeFrame(ctx context.Context, conn *websocket.Conn, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		data = []byte(`{"error":"failed to encode event"}`)
	}

	writeCtx, cancel := context.WithTimeout(ctx, wsWriteWait)
	defer cancel()

	return conn.Write(writeCtx, websocket.MessageText, data)
}

// Package events provides event management functionality.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	IngestStarted     EventType = "INGEST_STARTED"
	IngestCompleted   EventType = "INGEST_COMPLETED"
	CategoriesSynced  EventType = "CATEGORIES_SYNCED"
	SnapshotCreated   EventType = "SNAPSHOT_CREATED"
	AlertRaised       EventType = "ALERT_RAISED"
	AlertResolved     EventType = "ALERT_RESOLVED"
	AnchorUpdated     EventType = "ANCHOR_UPDATED"
	CommitmentChanged EventType = "COMMITMENT_CHANGED"
	InflowChanged     EventType = "INFLOW_CHANGED"
	KeyEventChanged   EventType = "KEY_EVENT_CHANGED"
	ExportCreated     EventType = "EXPORT_CREATED"
	BackupCompleted   EventType = "BACKUP_COMPLETED"

	SystemStatusChanged EventType = "SYSTEM_STATUS_CHANGED"
	ErrorOccurred       EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Handler receives published events.
type Handler func(event *Event)

// Bus is an in-process publish/subscribe hub. Handlers are invoked
// synchronously in subscription order; a handler that must not block
// the publisher should hand off to its own channel.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	wildcard map[int]Handler
	nextID   int
	log      zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		wildcard: make(map[int]Handler),
		log:      log.With().Str("service", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler invoked for every event type. The
// returned function removes the subscription; per-connection consumers
// (the websocket stream) call it on disconnect so handlers do not
// accumulate.
func (b *Bus) SubscribeAll(handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.wildcard[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.wildcard, id)
	}
}

// Emit publishes an event to all handlers subscribed to its type.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Module:    module,
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[eventType])+len(b.wildcard))
	handlers = append(handlers, b.handlers[eventType]...)
	for _, handler := range b.wildcard {
		handlers = append(handlers, handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// SubscriberCount returns the number of handlers for an event type.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

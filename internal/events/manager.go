package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// EventData is the interface that all typed event payloads implement.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// IngestCompletedData contains data for IngestCompleted events
type IngestCompletedData struct {
	RunID        string `json:"run_id"`
	Source       string `json:"source"`
	Mode         string `json:"mode"`
	RowsUpserted int    `json:"rows_upserted"`
	Status       string `json:"status"`
}

// EventType returns the event type for IngestCompletedData
func (d *IngestCompletedData) EventType() EventType { return IngestCompleted }

// SnapshotCreatedData contains data for SnapshotCreated events
type SnapshotCreatedData struct {
	SnapshotID      int64  `json:"snapshot_id"`
	HorizonStart    string `json:"horizon_start"`
	HorizonEnd      string `json:"horizon_end"`
	MinBalanceCents int64  `json:"min_balance_cents"`
	MinBalanceDate  string `json:"min_balance_date"`
}

// EventType returns the event type for SnapshotCreatedData
func (d *SnapshotCreatedData) EventType() EventType { return SnapshotCreated }

// AlertRaisedData contains data for AlertRaised events
type AlertRaisedData struct {
	AlertType string `json:"alert_type"`
	Severity  string `json:"severity"`
	Title     string `json:"title"`
	DedupeKey string `json:"dedupe_key"`
}

// EventType returns the event type for AlertRaisedData
func (d *AlertRaisedData) EventType() EventType { return AlertRaised }

// ExportCreatedData contains data for ExportCreated events
type ExportCreatedData struct {
	Pack     string `json:"pack"`
	Format   string `json:"format"`
	Filename string `json:"filename"`
	Hash     string `json:"hash"`
}

// EventType returns the event type for ExportCreatedData
func (d *ExportCreatedData) EventType() EventType { return ExportCreated }

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	Duration  string `json:"duration"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType { return BackupCompleted }

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType { return ErrorOccurred }

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Emit emits an event to the bus and logs it
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Module:    module,
	}

	m.bus.Emit(eventType, module, data)

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")
}

// EmitTyped emits an event with typed data to the bus and logs it
func (m *Manager) EmitTyped(module string, data EventData) {
	m.Emit(data.EventType(), module, convertEventDataToMap(data))
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	data := &ErrorEventData{
		Error:   err.Error(),
		Context: context,
	}
	m.EmitTyped(module, data)
}

// convertEventDataToMap converts typed EventData to map[string]interface{}
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}

	return result
}

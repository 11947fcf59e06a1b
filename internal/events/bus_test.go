package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received []*Event
	bus.Subscribe(SnapshotCreated, func(e *Event) {
		received = append(received, e)
	})

	bus.Emit(SnapshotCreated, "forecast", map[string]interface{}{"snapshot_id": int64(7)})

	require.Len(t, received, 1)
	assert.Equal(t, SnapshotCreated, received[0].Type)
	assert.Equal(t, "forecast", received[0].Module)
	assert.Equal(t, int64(7), received[0].Data["snapshot_id"])
}

func TestBusIgnoresOtherTypes(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	bus.Subscribe(AlertRaised, func(e *Event) { calls++ })

	bus.Emit(IngestCompleted, "ingest", nil)
	assert.Equal(t, 0, calls)

	bus.Emit(AlertRaised, "alerts", nil)
	assert.Equal(t, 1, calls)
}

func TestManagerEmitTyped(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	mgr := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(AlertRaised, func(e *Event) { got = e })

	mgr.EmitTyped("alerts", &AlertRaisedData{
		AlertType: "threshold_breach",
		Severity:  "warning",
		Title:     "Buffer floor breached",
		DedupeKey: "100:2026-09-01:-500",
	})

	require.NotNil(t, got)
	assert.Equal(t, "threshold_breach", got.Data["alert_type"])
	assert.Equal(t, "warning", got.Data["severity"])
}

func TestManagerEmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	mgr := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(ErrorOccurred, func(e *Event) { got = e })

	mgr.EmitError("ingest", assert.AnError, map[string]interface{}{"mode": "delta"})

	require.NotNil(t, got)
	assert.Equal(t, assert.AnError.Error(), got.Data["error"])
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var types []EventType
	unsubscribe := bus.SubscribeAll(func(e *Event) {
		types = append(types, e.Type)
	})

	bus.Emit(IngestCompleted, "ingest", nil)
	bus.Emit(AlertRaised, "alerts", nil)
	assert.Equal(t, []EventType{IngestCompleted, AlertRaised}, types)

	unsubscribe()
	bus.Emit(SnapshotCreated, "forecast", nil)
	assert.Len(t, types, 2)

	// Unsubscribing twice is harmless.
	unsubscribe()
}

package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewSetsGlobalLevel(t *testing.T) {
	testCases := []struct {
		name          string
		level         string
		expectedLevel zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"info", "info", zerolog.InfoLevel},
		{"warn", "warn", zerolog.WarnLevel},
		{"error", "error", zerolog.ErrorLevel},
		{"empty defaults to info", "", zerolog.InfoLevel},
		{"unknown defaults to info", "loud", zerolog.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			New(Config{Level: tc.level})
			assert.Equal(t, tc.expectedLevel, zerolog.GlobalLevel())
		})
	}
}

func TestNewWritesStructuredJSON(t *testing.T) {
	log := New(Config{Level: "info"})

	var buf bytes.Buffer
	log = log.Output(&buf)
	log.Info().Str("store", "budget.db").Msg("store opened")

	output := buf.String()
	assert.Contains(t, output, `"message":"store opened"`)
	assert.Contains(t, output, `"store":"budget.db"`)
}

func TestNewCLIQuietByDefault(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	log := NewCLI("").Output(&buf)

	log.Info().Msg("routine chatter")
	assert.Empty(t, buf.String())

	log.Warn().Msg("anchor drift detected")
	assert.Contains(t, buf.String(), "anchor drift detected")
}

func TestNewCLIHonorsLevel(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	log := NewCLI("debug").Output(&buf)

	log.Debug().Msg("cursor advanced")
	assert.Contains(t, buf.String(), "cursor advanced")
}

func TestNewCLILeavesGlobalLevelAlone(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	NewCLI("error")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

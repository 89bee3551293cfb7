package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kenneth/chunkvault/internal/config"
)

// discardSink keeps tests quiet.
type discardSink struct{}

func (discardSink) WriteEvent(*Event) error { return nil }

func TestLogger_BuffersEvents(t *testing.T) {
	logger := NewLogger(10, discardSink{})

	logger.LogCreate("abcd", 1024, false, true, nil, time.Millisecond)
	logger.LogGet("abcd", 1024, false, false, errors.New("chunk not found"), time.Millisecond)

	events := logger.Events()
	require.Len(t, events, 2)
	require.Equal(t, EventTypeCreate, events[0].EventType)
	require.True(t, events[0].Success)
	require.Equal(t, EventTypeGet, events[1].EventType)
	require.False(t, events[1].Success)
	require.Equal(t, "chunk not found", events[1].Error)
}

func TestLogger_MaxEvents(t *testing.T) {
	logger := NewLogger(3, discardSink{})

	for i := 0; i < 5; i++ {
		logger.LogCreate("addr", int64(i), false, true, nil, 0)
	}

	events := logger.Events()
	require.Len(t, events, 3)
	require.Equal(t, int64(2), events[0].Size)
	require.Equal(t, int64(4), events[2].Size)
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink := NewFileSink(path)

	logger := NewLogger(10, sink)
	logger.LogCreate("abcd", 2048, true, true, nil, time.Millisecond)
	logger.LogGet("abcd", 2048, true, true, nil, time.Millisecond)
	require.NoError(t, logger.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		require.Equal(t, "abcd", event.Address)
		require.True(t, event.Encrypted)
		lines++
	}
	require.Equal(t, 2, lines)
}

func TestNewLoggerFromConfig(t *testing.T) {
	logger, err := NewLoggerFromConfig(config.AuditConfig{Sink: "stdout", MaxEvents: 5})
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = NewLoggerFromConfig(config.AuditConfig{Sink: "syslog"})
	require.Error(t, err)
}

package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/kenneth/chunkvault/internal/config"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeCreate represents a create operation (payload → root).
	EventTypeCreate EventType = "create"
	// EventTypeGet represents a get operation (root address → payload).
	EventTypeGet EventType = "get"
)

// Event is a single audit log entry for one immutable-data operation.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	EventType EventType     `json:"event_type"`
	Address   string        `json:"address,omitempty"`
	Size      int64         `json:"size,omitempty"`
	Encrypted bool          `json:"encrypted"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  int64         `json:"duration_ms"`
}

// Logger is the interface for the operation audit log.
type Logger interface {
	// Log records an audit event.
	Log(event *Event) error

	// LogCreate records a create operation.
	LogCreate(address string, size int64, encrypted, success bool, err error, duration time.Duration)

	// LogGet records a get operation.
	LogGet(address string, size int64, encrypted, success bool, err error, duration time.Duration)

	// Events returns the buffered audit events.
	Events() []*Event

	// Close closes the logger and its underlying writer.
	Close() error
}

// EventWriter is an interface for writing audit events to a sink.
type EventWriter interface {
	WriteEvent(event *Event) error
}

type auditLogger struct {
	mu        sync.Mutex
	events    []*Event
	maxEvents int
	writer    EventWriter
}

// NewLogger creates a new audit logger with an in-memory buffer of at most
// maxEvents entries and the given sink. A nil writer falls back to stdout.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	if writer == nil {
		writer = &StdoutSink{}
	}
	if maxEvents <= 0 {
		maxEvents = 1000
	}
	return &auditLogger{
		events:    make([]*Event, 0, maxEvents),
		maxEvents: maxEvents,
		writer:    writer,
	}
}

// NewLoggerFromConfig creates an audit logger from configuration.
func NewLoggerFromConfig(cfg config.AuditConfig) (Logger, error) {
	var writer EventWriter
	switch cfg.Sink {
	case "stdout", "":
		writer = &StdoutSink{}
	case "file":
		writer = NewFileSink(cfg.FilePath)
	default:
		return nil, fmt.Errorf("unknown audit sink: %s", cfg.Sink)
	}
	return NewLogger(cfg.MaxEvents, writer), nil
}

// Log records an audit event.
func (l *auditLogger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.WriteEvent(event); err != nil {
		// The audit trail must never fail the operation it describes; the
		// in-memory buffer still records the event.
		_ = err
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
	return nil
}

// LogCreate records a create operation.
func (l *auditLogger) LogCreate(address string, size int64, encrypted, success bool, err error, duration time.Duration) {
	l.logOp(EventTypeCreate, address, size, encrypted, success, err, duration)
}

// LogGet records a get operation.
func (l *auditLogger) LogGet(address string, size int64, encrypted, success bool, err error, duration time.Duration) {
	l.logOp(EventTypeGet, address, size, encrypted, success, err, duration)
}

func (l *auditLogger) logOp(t EventType, address string, size int64, encrypted, success bool, err error, duration time.Duration) {
	event := &Event{
		Timestamp: time.Now(),
		EventType: t,
		Address:   address,
		Size:      size,
		Encrypted: encrypted,
		Success:   success,
		Duration:  duration.Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// Events returns a copy of the buffered audit events.
func (l *auditLogger) Events() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*Event, len(l.events))
	copy(events, l.events)
	return events
}

// Close closes the logger and its underlying writer.
func (l *auditLogger) Close() error {
	if closer, ok := l.writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

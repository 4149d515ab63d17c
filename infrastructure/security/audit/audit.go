// Package audit records who asked which database what, one event per tool
// call.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/middleware"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/domain/tool"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/logging"
)

// Event is one audited tool call.
type Event struct {
	Timestamp  time.Time  `json:"timestamp"`
	EventType  EventType  `json:"event_type"`
	RequestID  string     `json:"request_id,omitempty"`
	ToolName   string     `json:"tool_name"`
	Database   string     `json:"db,omitempty"`
	Success    bool       `json:"success"`
	Code       query.Code `json:"code,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	Cached     bool       `json:"cached,omitempty"`
	// InputHash fingerprints the input without storing it.
	InputHash string `json:"input_hash,omitempty"`
}

// EventType categorizes audit events.
type EventType string

const (
	EventToolCall     EventType = "tool_call"
	EventAccessDenied EventType = "access_denied"
	EventRateLimited  EventType = "rate_limited"
)

// Logger stores audit events.
type Logger interface {
	Log(ctx context.Context, event Event) error
	Query(ctx context.Context, filter Filter) ([]Event, error)
	Close() error
}

// ErrQueryUnsupported is returned by loggers that only write.
var ErrQueryUnsupported = errors.New("audit: logger does not support queries")

// Filter specifies criteria for querying events.
type Filter struct {
	StartTime  time.Time
	EndTime    time.Time
	EventTypes []EventType
	ToolName   string
	Database   string
	Success    *bool
	Limit      int
}

// MemoryLogger keeps the most recent events in memory.
type MemoryLogger struct {
	mu     sync.RWMutex
	events []Event
	maxLen int
}

// MemoryLoggerOption configures the memory logger.
type MemoryLoggerOption func(*MemoryLogger)

// WithMaxEvents sets the maximum number of events to retain.
func WithMaxEvents(max int) MemoryLoggerOption {
	return func(l *MemoryLogger) {
		l.maxLen = max
	}
}

// NewMemoryLogger creates a new in-memory audit logger.
func NewMemoryLogger(opts ...MemoryLoggerOption) *MemoryLogger {
	l := &MemoryLogger{
		events: make([]Event, 0),
		maxLen: 10000,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log records an event, evicting the oldest past the retention limit.
func (l *MemoryLogger) Log(_ context.Context, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	l.events = append(l.events, event)
	if l.maxLen > 0 && len(l.events) > l.maxLen {
		l.events = l.events[len(l.events)-l.maxLen:]
	}
	return nil
}

// Query returns events matching filter, oldest first.
func (l *MemoryLogger) Query(_ context.Context, filter Filter) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []Event
	for _, event := range l.events {
		if !filter.matches(event) {
			continue
		}
		result = append(result, event)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// Close releases resources.
func (l *MemoryLogger) Close() error {
	return nil
}

// Events returns a copy of every retained event.
func (l *MemoryLogger) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]Event, len(l.events))
	copy(result, l.events)
	return result
}

func (f Filter) matches(event Event) bool {
	if !f.StartTime.IsZero() && event.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && event.Timestamp.After(f.EndTime) {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if event.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ToolName != "" && event.ToolName != f.ToolName {
		return false
	}
	if f.Database != "" && event.Database != f.Database {
		return false
	}
	if f.Success != nil && event.Success != *f.Success {
		return false
	}
	return true
}

// JSONLogger writes one JSON document per event.
type JSONLogger struct {
	mu      sync.Mutex
	writer  io.Writer
	encoder *json.Encoder
}

// NewJSONLogger creates a new JSON audit logger.
func NewJSONLogger(writer io.Writer) *JSONLogger {
	return &JSONLogger{
		writer:  writer,
		encoder: json.NewEncoder(writer),
	}
}

// Log writes event as one line of JSON.
func (l *JSONLogger) Log(_ context.Context, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return l.encoder.Encode(event)
}

// Query is not supported by JSONLogger.
func (l *JSONLogger) Query(context.Context, Filter) ([]Event, error) {
	return nil, ErrQueryUnsupported
}

// Close closes the writer when it is a Closer.
func (l *JSONLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Middleware records one event per tool call. Place it after RequestID so
// events carry the request ID. A failing logger never fails the call.
func Middleware(logger Logger) middleware.Middleware {
	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, call *middleware.Call) (tool.Result, error) {
			start := time.Now()
			result, err := next(ctx, call)

			event := Event{
				Timestamp:  start.UTC(),
				EventType:  EventToolCall,
				RequestID:  call.RequestID,
				ToolName:   call.Tool.Name(),
				Database:   databaseOf(call.Input),
				Success:    err == nil,
				DurationMs: time.Since(start).Milliseconds(),
				Cached:     result.Cached,
				InputHash:  hashInput(call.Input),
			}
			if err != nil {
				event.Code = query.CodeOf(err)
				event.Error = err.Error()
				switch event.Code {
				case query.CodeDatabaseNotAllowed:
					event.EventType = EventAccessDenied
				case query.CodeRateLimited:
					event.EventType = EventRateLimited
				}
			}

			if logErr := logger.Log(ctx, event); logErr != nil {
				logging.Warn().
					Add(logging.Component("audit")).
					Add(logging.ToolName(event.ToolName)).
					Add(logging.ErrorField(logErr)).
					Msg("failed to record audit event")
			}
			return result, err
		}
	}
}

// databaseOf reads the target database from a tool input, including the
// nested source of features.extract.
func databaseOf(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var in struct {
		DB     string `json:"db"`
		Source *struct {
			DB string `json:"db"`
		} `json:"source"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return ""
	}
	if in.DB == "" && in.Source != nil {
		return in.Source.DB
	}
	return in.DB
}

func hashInput(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:8])
}

package logging

import (
	"errors"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Operation adds an operation field.
func Operation(op string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", op)
	}
}

// ToolName adds a tool name field.
func ToolName(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("tool", name)
	}
}

// RequestID adds a request ID field.
func RequestID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		if id == "" {
			return e
		}
		return e.Str("request_id", id)
	}
}

// Database adds a database field.
func Database(db string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("db", db)
	}
}

// Measurement adds a measurement field.
func Measurement(m string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("measurement", m)
	}
}

// Strategy adds the planner strategy.
func Strategy(s query.Strategy) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("strategy", string(s))
	}
}

// Points adds an estimated or scanned point count.
func Points(key string, n int64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64(key, n)
	}
}

// Query adds rendered query text.
func Query(text string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("query", text)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// Cached adds a cached field.
func Cached(cached bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool("cached", cached)
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// ErrorCode adds the code of a pipeline error, if err carries one.
func ErrorCode(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		var qe *query.Error
		if !errors.As(err, &qe) {
			return e
		}
		return e.Str("error_code", string(qe.Code))
	}
}

// Reason adds a reason field.
func Reason(reason string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reason", reason)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}

// Int adds an int field with custom key.
func Int(key string, value int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, value)
	}
}

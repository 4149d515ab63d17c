// Package middleware provides composable middleware for tool calls.
package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/tool"
)

// Call describes one tool invocation as it travels through the chain.
type Call struct {
	// RequestID correlates log lines, spans and errors of one call.
	RequestID string
	// Tool is the tool being executed.
	Tool tool.Tool
	// Input is the JSON input for the tool.
	Input json.RawMessage
	// Started is when the call entered the chain.
	Started time.Time
}

// Handler executes a tool call and returns its result.
type Handler func(ctx context.Context, call *Call) (tool.Result, error)

// Middleware wraps a Handler with additional behavior.
// Middleware can:
// - Execute code before the next handler
// - Execute code after the next handler
// - Short-circuit by not calling next
// - Transform results or errors
type Middleware func(next Handler) Handler

// Chain composes multiple middleware into a single middleware.
// Chain(A, B, C) produces: A -> B -> C -> handler
func Chain(middlewares ...Middleware) Middleware {
	return func(final Handler) Handler {
		handler := final
		for i := len(middlewares) - 1; i >= 0; i-- {
			handler = middlewares[i](handler)
		}
		return handler
	}
}

// Noop returns a middleware that does nothing, just passes through.
func Noop() Middleware {
	return func(next Handler) Handler {
		return next
	}
}

// Execute is the terminal handler: it runs the call's tool.
func Execute(ctx context.Context, call *Call) (tool.Result, error) {
	return call.Tool.Execute(ctx, call.Input)
}

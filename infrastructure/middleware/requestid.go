// Package middleware provides the tool-call middleware the MCP server runs
// every call through: request IDs, panic recovery, logging, tracing,
// metrics and per-tool rate limiting.
package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/influx-mcp/domain/middleware"
	"github.com/felixgeelhaar/influx-mcp/domain/tool"
)

type requestIDKey struct{}

// RequestID assigns a UUID to calls that arrive without one and stores it in
// the context.
func RequestID() middleware.Middleware {
	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, call *middleware.Call) (tool.Result, error) {
			if call.RequestID == "" {
				call.RequestID = uuid.NewString()
			}
			if call.Started.IsZero() {
				call.Started = time.Now()
			}
			return next(context.WithValue(ctx, requestIDKey{}, call.RequestID), call)
		}
	}
}

// RequestIDFrom returns the request ID stored by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

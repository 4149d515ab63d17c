package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/influx-mcp/domain/middleware"
	"github.com/felixgeelhaar/influx-mcp/domain/tool"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/observability"
)

// TracingConfig configures the tracing middleware.
type TracingConfig struct {
	// RecordInput determines if tool input should be recorded as a span attribute.
	RecordInput bool

	// MaxAttributeSize limits the size of recorded attributes.
	MaxAttributeSize int

	// SpanNamePrefix is prepended to span names.
	SpanNamePrefix string
}

// DefaultTracingConfig returns the configuration used by the server.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		RecordInput:      true,
		MaxAttributeSize: 1024,
		SpanNamePrefix:   "tool.",
	}
}

// Tracing returns middleware that opens one span per tool call. Spans are
// no-ops until a tracer provider is installed by observability.New.
func Tracing(cfg TracingConfig) middleware.Middleware {
	maxSize := cfg.MaxAttributeSize
	if maxSize <= 0 {
		maxSize = 1024
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, call *middleware.Call) (tool.Result, error) {
			attrs := []attribute.KeyValue{
				attribute.String("tool.name", call.Tool.Name()),
				attribute.String("request.id", call.RequestID),
			}
			if a := call.Tool.Annotations(); len(a.Tags) > 0 {
				attrs = append(attrs,
					attribute.StringSlice("tool.tags", a.Tags),
					attribute.Bool("tool.cacheable", a.CanCache()),
				)
			}
			if cfg.RecordInput && len(call.Input) > 0 {
				attrs = append(attrs, attribute.String("tool.input", truncate(string(call.Input), maxSize)))
			}

			ctx, span := observability.StartSpan(ctx, cfg.SpanNamePrefix+call.Tool.Name(), attrs...)
			result, err := next(ctx, call)
			if err == nil {
				span.SetAttributes(
					attribute.Int64("tool.duration_ms", result.Duration.Milliseconds()),
					attribute.Bool("tool.cached", result.Cached),
				)
			}
			observability.EndSpan(span, err)
			return result, err
		}
	}
}

package middleware

import (
	"context"

	"github.com/felixgeelhaar/influx-mcp/domain/middleware"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/domain/tool"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/telemetry"
)

// MetricsConfig configures the metrics middleware.
type MetricsConfig struct {
	// Provider is the metrics provider to use.
	Provider telemetry.Metrics
}

// Metrics creates a middleware that records per-call metrics:
// - in-flight calls
// - errors by tool and code
// - rate limit rejections
//
// Query counts and durations carry the plan strategy and are recorded by the
// query service.
func Metrics(config MetricsConfig) middleware.Middleware {
	if config.Provider == nil {
		config.Provider = &telemetry.NoopMetricsProvider{}
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, call *middleware.Call) (tool.Result, error) {
			config.Provider.IncrementInFlight(ctx)
			defer config.Provider.DecrementInFlight(ctx)

			result, err := next(ctx, call)
			if err != nil {
				code := query.CodeOf(err)
				if code == "" {
					code = query.CodeExecution
				}
				config.Provider.RecordError(ctx, call.Tool.Name(), string(code))
				if code == query.CodeRateLimited {
					config.Provider.RecordRateLimitRejection(ctx, call.Tool.Name())
				}
			}
			return result, err
		}
	}
}

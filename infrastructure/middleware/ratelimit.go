package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/influx-mcp/domain/middleware"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/domain/tool"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/logging"
)

// RateLimitConfig configures per-tool request shaping at the MCP boundary.
// It sits in front of the query limiter and keeps one chatty tool, such as
// a polling meta.list_measurements, from draining the shared token bucket.
type RateLimitConfig struct {
	// Limiter is the rate limiter to use. If nil, one is created from Rate
	// and Burst.
	Limiter ratelimit.RateLimiter

	// Rate is the number of calls per second allowed per tool.
	Rate int

	// Burst is the bucket capacity per tool. Defaults to Rate.
	Burst int

	// OnLimitExceeded is called when a call is rejected.
	OnLimitExceeded func(ctx context.Context, call *middleware.Call)
}

// RateLimit returns middleware that rejects calls above the per-tool rate
// with RATE_LIMIT_ERROR. A zero Rate without a Limiter disables it.
func RateLimit(cfg RateLimitConfig) middleware.Middleware {
	limiter := cfg.Limiter
	if limiter == nil {
		if cfg.Rate <= 0 {
			return middleware.Noop()
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.Rate
		}
		limiter = ratelimit.New(&ratelimit.Config{
			Rate:  cfg.Rate,
			Burst: burst,
		})
	}

	retryAfter := time.Second
	if cfg.Rate > 0 {
		retryAfter = time.Second / time.Duration(cfg.Rate)
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, call *middleware.Call) (tool.Result, error) {
			name := call.Tool.Name()
			if !limiter.Allow(ctx, name) {
				logging.Warn().
					Add(logging.RequestID(call.RequestID)).
					Add(logging.ToolName(name)).
					Msg("per-tool rate limit exceeded")

				if cfg.OnLimitExceeded != nil {
					cfg.OnLimitExceeded(ctx, call)
				}
				return tool.Result{}, query.NewRateLimitError(retryAfter)
			}
			return next(ctx, call)
		}
	}
}

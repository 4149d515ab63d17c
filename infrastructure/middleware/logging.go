package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/middleware"
	"github.com/felixgeelhaar/influx-mcp/domain/tool"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/logging"
)

// LoggingConfig configures the logging middleware.
type LoggingConfig struct {
	// LogInput logs the tool input. Inputs carry no credentials, but may be large.
	LogInput bool
	// MaxInputLength truncates logged input. Zero means 500 bytes.
	MaxInputLength int
}

// Logging returns middleware that logs tool execution.
func Logging(cfg LoggingConfig) middleware.Middleware {
	limit := cfg.MaxInputLength
	if limit <= 0 {
		limit = 500
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, call *middleware.Call) (tool.Result, error) {
			start := time.Now()

			entry := logging.Debug().
				Add(logging.RequestID(call.RequestID)).
				Add(logging.ToolName(call.Tool.Name()))
			if cfg.LogInput && len(call.Input) > 0 {
				entry = entry.Add(logging.Str("input", truncate(string(call.Input), limit)))
			}
			entry.Msg("executing tool")

			result, err := next(ctx, call)
			duration := time.Since(start)

			if err != nil {
				logging.Warn().
					Add(logging.RequestID(call.RequestID)).
					Add(logging.ToolName(call.Tool.Name())).
					Add(logging.ErrorCode(err)).
					Add(logging.ErrorField(err)).
					Add(logging.Duration(duration)).
					Msg("tool execution failed")
				return result, err
			}

			logging.Info().
				Add(logging.RequestID(call.RequestID)).
				Add(logging.ToolName(call.Tool.Name())).
				Add(logging.Duration(duration)).
				Add(logging.Cached(result.Cached)).
				Msg("tool executed")
			return result, nil
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

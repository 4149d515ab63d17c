package middleware

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/influx-mcp/domain/middleware"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/domain/tool"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/logging"
)

// Recover turns a panicking tool into a QUERY_EXECUTION_ERROR.
func Recover() middleware.Middleware {
	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, call *middleware.Call) (res tool.Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					logging.Error().
						Add(logging.RequestID(call.RequestID)).
						Add(logging.ToolName(call.Tool.Name())).
						Add(logging.Str("panic", fmt.Sprint(r))).
						Msg("tool panicked")
					res = tool.Result{}
					err = query.NewExecutionError(fmt.Sprintf("internal error in %s", call.Tool.Name()))
				}
			}()
			return next(ctx, call)
		}
	}
}

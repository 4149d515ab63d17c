package application

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/cache"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/logging"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/ratelimit"
)

// checkDatabase enforces the allow-list.
func checkDatabase(cfg Config, db string) error {
	if !cfg.Limits.DatabaseAllowed(db) {
		return query.NewDatabaseNotAllowedError(db)
	}
	return nil
}

// execute runs text through the limiter and the executor.
func execute(ctx context.Context, cfg Config, text, db string, opts query.ExecOptions) ([]query.Series, error) {
	return ratelimit.Execute(ctx, cfg.Limiter, func(ctx context.Context) ([]query.Series, error) {
		return cfg.Executor.Execute(ctx, text, db, opts)
	})
}

// decode unmarshals a cached payload keeping numbers exact.
func decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// cacheGet reads key into v. Backend failures are logged and reported as a
// miss so a broken cache never fails a request.
func cacheGet(ctx context.Context, c cache.Cache, key string, v any) bool {
	raw, ok, err := c.Get(ctx, key)
	if err != nil {
		logging.Warn().
			Add(logging.Component("cache")).
			Add(logging.Str("key", key)).
			Add(logging.ErrorField(err)).
			Msg("cache read failed")
		return false
	}
	if !ok {
		return false
	}
	if err := decode(raw, v); err != nil {
		logging.Warn().
			Add(logging.Component("cache")).
			Add(logging.Str("key", key)).
			Add(logging.ErrorField(err)).
			Msg("discarding undecodable cache entry")
		return false
	}
	return true
}

// cacheSet stores v under key. Failures are logged only.
func cacheSet(ctx context.Context, c cache.Cache, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err == nil {
		err = c.Set(ctx, key, raw, cache.SetOptions{TTL: ttl})
	}
	if err != nil {
		logging.Warn().
			Add(logging.Component("cache")).
			Add(logging.Str("key", key)).
			Add(logging.ErrorField(err)).
			Msg("cache write failed")
	}
}

// cached returns the value under key, or computes, stores and returns it.
// Failed computations are never stored.
func cached[T any](ctx context.Context, cfg Config, toolName, key string, fn func(context.Context) (T, error)) (T, error) {
	var v T
	if cacheGet(ctx, cfg.Cache, key, &v) {
		cfg.Metrics.RecordCacheHit(ctx, toolName)
		return v, nil
	}
	cfg.Metrics.RecordCacheMiss(ctx, toolName)

	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	cacheSet(ctx, cfg.Cache, key, v, cfg.CacheTTL)
	return v, nil
}

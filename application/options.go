// Package application wires the query pipeline into the services behind the
// MCP tools: time-series queries, metadata lookups, feature extraction and
// health reporting.
package application

import (
	"errors"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/cache"
	"github.com/felixgeelhaar/influx-mcp/domain/config"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/planner"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/ratelimit"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/storage/memory"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/telemetry"
)

// ErrNoExecutor is returned by New when no database executor is configured.
var ErrNoExecutor = errors.New("application: executor is required")

// Config holds the collaborators shared by every service. One cache and one
// limiter serve the whole process.
type Config struct {
	Executor query.Executor
	Cache    cache.Cache
	Limiter  *ratelimit.Limiter
	Planner  *planner.Planner
	Limits   config.LimitsConfig
	CacheTTL time.Duration
	Metrics  telemetry.Metrics
	Now      func() time.Time

	// Version is reported by health.ping.
	Version string
	// MaxDescribeConcurrency bounds concurrent metadata calls of meta.describe.
	MaxDescribeConcurrency int
}

// Option configures the services.
type Option func(*Config)

// WithExecutor sets the database executor.
func WithExecutor(e query.Executor) Option {
	return func(c *Config) {
		c.Executor = e
	}
}

// WithCache sets the result cache.
func WithCache(cc cache.Cache) Option {
	return func(c *Config) {
		c.Cache = cc
	}
}

// WithLimiter sets the query admission limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Config) {
		c.Limiter = l
	}
}

// WithPlanner sets the query planner.
func WithPlanner(p *planner.Planner) Option {
	return func(c *Config) {
		c.Planner = p
	}
}

// WithLimits sets the request limits and allow-list.
func WithLimits(l config.LimitsConfig) Option {
	return func(c *Config) {
		c.Limits = l
	}
}

// WithCacheTTL sets the lifetime of cached entries.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.CacheTTL = ttl
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}

// WithVersion sets the reported server version.
func WithVersion(v string) Option {
	return func(c *Config) {
		c.Version = v
	}
}

func newConfig(opts []Option) (Config, error) {
	defaults := config.Default()
	cfg := Config{
		Limits:                 defaults.Limits,
		CacheTTL:               defaults.Cache.TTL(),
		MaxDescribeConcurrency: 4,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Executor == nil {
		return Config{}, ErrNoExecutor
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Cache == nil {
		cfg.Cache = memory.NewCache(memory.WithMaxSize(defaults.Cache.MaxSize), memory.WithTTL(cfg.CacheTTL))
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(int(defaults.RateLimit.QPS), defaults.RateLimit.MaxConcurrent)
	}
	if cfg.Planner == nil {
		cfg.Planner = planner.New(cfg.Limits.MaxPoints, cfg.Limits.MaxLimit, planner.WithClock(cfg.Now))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &telemetry.NoopMetricsProvider{}
	}
	if cfg.Limits.DefaultPageSize <= 0 {
		cfg.Limits.DefaultPageSize = defaults.Limits.DefaultPageSize
	}
	if cfg.MaxDescribeConcurrency <= 0 {
		cfg.MaxDescribeConcurrency = 1
	}
	return cfg, nil
}

// Services groups the application services built from one Config.
type Services struct {
	Query    *QueryService
	Metadata *MetadataService
	Features *FeatureService
	Health   *HealthService
}

// New builds every service around the same executor, cache and limiter.
func New(opts ...Option) (*Services, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	q := &QueryService{cfg: cfg}
	return &Services{
		Query:    q,
		Metadata: newMetadataService(cfg),
		Features: &FeatureService{cfg: cfg, query: q},
		Health:   &HealthService{cfg: cfg},
	}, nil
}

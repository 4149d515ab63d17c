package cli

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/felixgeelhaar/influx-mcp/application"
	domaincache "github.com/felixgeelhaar/influx-mcp/domain/cache"
	domainconfig "github.com/felixgeelhaar/influx-mcp/domain/config"
	domainmw "github.com/felixgeelhaar/influx-mcp/domain/middleware"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/influx"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/logging"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/mcp"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/middleware"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/observability"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/planner"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/ratelimit"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/security/audit"
	badgercache "github.com/felixgeelhaar/influx-mcp/infrastructure/storage/badger"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/storage/memory"
	rediscache "github.com/felixgeelhaar/influx-mcp/infrastructure/storage/redis"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/telemetry"
	"github.com/felixgeelhaar/influx-mcp/interfaces/admin"
)

const instructions = `All tools are read-only. Start with meta.list_databases and meta.describe
to learn the schema, then use timeseries.query. Large time ranges are
downsampled to fit the point budget; the plan in each result says so.
Follow next_cursor to read further pages.`

// runtime is a fully wired server: services, MCP transport and admin
// endpoints, plus everything that has to be closed on the way out.
type runtime struct {
	cfg      *domainconfig.Config
	services *application.Services
	server   *mcp.Server
	admin    *admin.Server
	obs      *observability.Provider
	closers  []func() error
}

func newRuntime(cfg *domainconfig.Config) (rt *runtime, err error) {
	rt = &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	rt.obs, err = observability.New(observabilityOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	rt.closers = append(rt.closers, func() error { return rt.obs.Shutdown(context.Background()) })

	var metrics telemetry.Metrics = &telemetry.NoopMetricsProvider{}
	if cfg.Telemetry.Enabled {
		mp := telemetry.NewMetricsProvider(telemetry.MetricsConfig{
			MeterVersion:  cfg.Server.Version,
			MeterProvider: rt.obs.MeterProvider(),
		})
		if err := mp.Error(); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		metrics = mp
	}

	store, closeCache, err := openCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if closeCache != nil {
		rt.closers = append(rt.closers, closeCache)
	}

	client, err := influx.New(influxConfig(cfg.Influx))
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, client.Close)

	qps := int(math.Ceil(cfg.RateLimit.QPS))
	rt.services, err = application.New(
		application.WithExecutor(client),
		application.WithCache(store),
		application.WithLimiter(ratelimit.New(qps, cfg.RateLimit.MaxConcurrent)),
		application.WithPlanner(planner.New(cfg.Limits.MaxPoints, cfg.Limits.MaxLimit)),
		application.WithLimits(cfg.Limits),
		application.WithCacheTTL(cfg.Cache.TTL()),
		application.WithMetrics(metrics),
		application.WithVersion(cfg.Server.Version),
	)
	if err != nil {
		return nil, err
	}

	registry := memory.NewToolRegistry()
	if err := rt.services.Register(registry); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	chain := domainmw.NewRegistry().Use(middleware.RequestID())
	if cfg.Server.AuditLog != "" {
		auditLog, err := openAuditLog(cfg.Server.AuditLog)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, auditLog.Close)
		chain.Use(audit.Middleware(auditLog))
	}
	chain.Use(
		middleware.Recover(),
		middleware.Logging(middleware.LoggingConfig{LogInput: cfg.Logging.Level == "debug"}),
		middleware.Tracing(middleware.DefaultTracingConfig()),
		middleware.Metrics(middleware.MetricsConfig{Provider: metrics}),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rate:  cfg.RateLimit.ToolRate,
			Burst: cfg.RateLimit.ToolBurst,
		}),
	)

	rt.server = mcp.NewServer(mcp.Config{
		Name:         cfg.Server.Name,
		Version:      cfg.Server.Version,
		Description:  "Read-only InfluxDB query tools",
		Instructions: instructions,
		Registry:     registry,
		Middleware:   chain,
	})

	var collector admin.Collector
	if cfg.Telemetry.Enabled {
		collector = rt.obs
	}
	rt.admin = admin.New(rt.services.Health, collector)

	logging.Info().
		Add(logging.Component("cli")).
		Add(logging.Str("cache", cfg.Cache.Backend)).
		Add(logging.Str("influx", influxConfig(cfg.Influx).Addr())).
		Add(logging.Int("tools", registry.Count())).
		Msg("server wired")
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close(context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func observabilityOptions(cfg *domainconfig.Config) []observability.Option {
	opts := []observability.Option{
		observability.WithServiceName(cfg.Telemetry.ServiceName),
		observability.WithServiceVersion(cfg.Server.Version),
		observability.WithSampleRate(cfg.Telemetry.SampleRate),
	}
	switch cfg.Telemetry.TraceExporter {
	case domainconfig.TraceExporterStdout:
		opts = append(opts, observability.WithStdoutTracing(nil))
	case domainconfig.TraceExporterOTLP:
		opts = append(opts, observability.WithTracing(observability.ExporterOTLP, cfg.Telemetry.OTLPEndpoint))
		if cfg.Telemetry.OTLPInsecure {
			opts = append(opts, observability.WithTracingInsecure())
		}
	}
	if cfg.Telemetry.Enabled {
		opts = append(opts, observability.WithMetrics())
	}
	return opts
}

func influxConfig(c domainconfig.InfluxConfig) influx.Config {
	out := influx.DefaultConfig()
	out.Protocol = c.Protocol
	out.Host = c.Host
	out.Port = c.Port
	out.Username = c.Username
	out.Password = c.Password
	if c.TimeoutMS > 0 {
		out.Timeout = c.Timeout()
	}
	out.RetryMax = c.RetryMax
	if c.RetryDelayMS > 0 {
		out.RetryDelay = c.RetryDelay()
	}
	out.UserAgent = "influx-mcp/" + Version
	return out
}

// openAuditLog writes audit events as JSON lines to stderr or appends them
// to a file.
func openAuditLog(target string) (audit.Logger, error) {
	if target == "stderr" {
		return audit.NewJSONLogger(nopCloser{os.Stderr}), nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	return audit.NewJSONLogger(f), nil
}

// nopCloser keeps the audit logger from closing stderr.
type nopCloser struct{ *os.File }

func (nopCloser) Close() error { return nil }

// openCache builds the configured backend. The returned closer is nil for
// the in-process cache.
func openCache(c domainconfig.CacheConfig) (domaincache.Cache, func() error, error) {
	switch c.Backend {
	case domainconfig.CacheRedis:
		opts := []rediscache.ConfigOption{
			rediscache.WithAddress(c.Redis.Addr),
			rediscache.WithPassword(c.Redis.Password),
			rediscache.WithDB(c.Redis.DB),
			rediscache.WithDefaultTTL(c.TTL()),
		}
		if c.Redis.KeyPrefix != "" {
			opts = append(opts, rediscache.WithKeyPrefix(c.Redis.KeyPrefix))
		}
		store, err := rediscache.NewCache(rediscache.DefaultConfig(), opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		return store, store.Close, nil

	case domainconfig.CacheBadger:
		opts := []badgercache.Option{badgercache.WithDefaultTTL(c.TTL())}
		if c.Badger.GCIntervalS > 0 {
			opts = append(opts, badgercache.WithGCInterval(time.Duration(c.Badger.GCIntervalS)*time.Second))
		}
		if c.Badger.InMemory {
			opts = append(opts, badgercache.WithInMemory())
		} else {
			opts = append(opts, badgercache.WithDir(c.Badger.Dir))
		}
		store, err := badgercache.NewCache(badgercache.DefaultConfig(), opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("badger cache: %w", err)
		}
		return store, store.Close, nil

	case domainconfig.CacheMemory, "":
		return memory.NewCache(memory.WithMaxSize(c.MaxSize), memory.WithTTL(c.TTL())), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", c.Backend)
	}
}

// splitHostPort reads an http(s) URL into the influx connection fields.
func splitHostPort(raw string) (protocol, host string, port int, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", 0, err
	}
	port, err = strconv.Atoi(u.Port())
	if err != nil {
		return "", "", 0, fmt.Errorf("url %q has no port", raw)
	}
	return u.Scheme, u.Hostname(), port, nil
}

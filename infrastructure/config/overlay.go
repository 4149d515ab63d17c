package config

import (
	"fmt"
	"strconv"
	"strings"

	domainconfig "github.com/felixgeelhaar/influx-mcp/domain/config"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

type envBinding struct {
	key   string
	apply func(cfg *domainconfig.Config, value string) error
}

func envString(dst func(*domainconfig.Config) *string) func(*domainconfig.Config, string) error {
	return func(cfg *domainconfig.Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

func envInt(dst func(*domainconfig.Config) *int) func(*domainconfig.Config, string) error {
	return func(cfg *domainconfig.Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

var envBindings = []envBinding{
	{"INFLUX_PROTOCOL", envString(func(c *domainconfig.Config) *string { return &c.Influx.Protocol })},
	{"INFLUX_HOST", envString(func(c *domainconfig.Config) *string { return &c.Influx.Host })},
	{"INFLUX_PORT", envInt(func(c *domainconfig.Config) *int { return &c.Influx.Port })},
	{"INFLUX_USERNAME", envString(func(c *domainconfig.Config) *string { return &c.Influx.Username })},
	{"INFLUX_PASSWORD", envString(func(c *domainconfig.Config) *string { return &c.Influx.Password })},
	{"INFLUX_DATABASE", envString(func(c *domainconfig.Config) *string { return &c.Influx.Database })},
	{"INFLUX_TIMEOUT_MS", envInt(func(c *domainconfig.Config) *int { return &c.Influx.TimeoutMS })},
	{"INFLUX_MAX_CONNS", envInt(func(c *domainconfig.Config) *int { return &c.Influx.MaxConns })},
	{"INFLUX_RETRY_MAX", envInt(func(c *domainconfig.Config) *int { return &c.Influx.RetryMax })},
	{"INFLUX_RETRY_DELAY_MS", envInt(func(c *domainconfig.Config) *int { return &c.Influx.RetryDelayMS })},
	{"ALLOWED_DATABASES", func(c *domainconfig.Config, v string) error {
		c.Limits.AllowedDatabases = domainconfig.ParseDatabaseList(v)
		return nil
	}},
	{"MAX_POINTS", func(c *domainconfig.Config, v string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return err
		}
		c.Limits.MaxPoints = n
		return nil
	}},
	{"MAX_RANGE_DAYS", envInt(func(c *domainconfig.Config) *int { return &c.Limits.MaxRangeDays })},
	{"MAX_LIMIT", envInt(func(c *domainconfig.Config) *int { return &c.Limits.MaxLimit })},
	{"MAX_CHUNK_SIZE", envInt(func(c *domainconfig.Config) *int { return &c.Limits.MaxChunkSize })},
	{"DEFAULT_TZ", envString(func(c *domainconfig.Config) *string { return &c.Limits.DefaultTZ })},
	{"DEFAULT_PAGE_SIZE", envInt(func(c *domainconfig.Config) *int { return &c.Limits.DefaultPageSize })},
	{"CACHE_BACKEND", envString(func(c *domainconfig.Config) *string { return &c.Cache.Backend })},
	{"CACHE_TTL_S", envInt(func(c *domainconfig.Config) *int { return &c.Cache.TTLSeconds })},
	{"CACHE_MAX_SIZE", envInt(func(c *domainconfig.Config) *int { return &c.Cache.MaxSize })},
	{"REDIS_ADDR", envString(func(c *domainconfig.Config) *string { return &c.Cache.Redis.Addr })},
	{"REDIS_PASSWORD", envString(func(c *domainconfig.Config) *string { return &c.Cache.Redis.Password })},
	{"BADGER_DIR", envString(func(c *domainconfig.Config) *string { return &c.Cache.Badger.Dir })},
	{"RATE_LIMIT_QPS", func(c *domainconfig.Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		c.RateLimit.QPS = f
		return nil
	}},
	{"RATE_LIMIT_CONCURRENT", envInt(func(c *domainconfig.Config) *int { return &c.RateLimit.MaxConcurrent })},
	{"LOG_LEVEL", envString(func(c *domainconfig.Config) *string { return &c.Logging.Level })},
	{"LOG_FORMAT", envString(func(c *domainconfig.Config) *string { return &c.Logging.Format })},
	{"MCP_SERVER_NAME", envString(func(c *domainconfig.Config) *string { return &c.Server.Name })},
	{"MCP_SERVER_VERSION", envString(func(c *domainconfig.Config) *string { return &c.Server.Version })},
	{"MCP_TRANSPORT", envString(func(c *domainconfig.Config) *string { return &c.Server.Transport })},
	{"MCP_HTTP_ADDR", envString(func(c *domainconfig.Config) *string { return &c.Server.Addr })},
	{"MCP_ADMIN_ADDR", envString(func(c *domainconfig.Config) *string { return &c.Server.AdminAddr })},
	{"MCP_AUDIT_LOG", envString(func(c *domainconfig.Config) *string { return &c.Server.AuditLog })},
	{"OTEL_TRACES_EXPORTER", envString(func(c *domainconfig.Config) *string { return &c.Telemetry.TraceExporter })},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", envString(func(c *domainconfig.Config) *string { return &c.Telemetry.OTLPEndpoint })},
	{"TELEMETRY_ENABLED", func(c *domainconfig.Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		c.Telemetry.Enabled = b
		return nil
	}},
}

// EnvKeys lists the environment variables the overlay reads.
func EnvKeys() []string {
	keys := make([]string, len(envBindings))
	for i, b := range envBindings {
		keys[i] = b.key
	}
	return keys
}

// ApplyEnv overlays set, non-empty environment variables onto cfg.
// "pretty" is accepted for LOG_FORMAT and maps to the console format.
func ApplyEnv(cfg *domainconfig.Config, lookup LookupFunc) error {
	for _, b := range envBindings {
		v, ok := lookup(b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("%w: %s=%q: %v", domainconfig.ErrInvalidEnvVar, b.key, v, err)
		}
	}
	if cfg.Logging.Format == "pretty" {
		cfg.Logging.Format = "console"
	}
	return nil
}

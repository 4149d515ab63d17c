// Package config provides the domain model for server configuration.
package config

import (
	"slices"
	"strings"
	"time"
)

// AllDatabases in the allow-list permits every database.
const AllDatabases = "*"

// Config is the complete server configuration.
type Config struct {
	// Influx holds connection settings for the database.
	Influx InfluxConfig `json:"influx" yaml:"influx"`
	// Limits bounds what a single request may ask for.
	Limits LimitsConfig `json:"limits" yaml:"limits"`
	// Cache configures the result cache.
	Cache CacheConfig `json:"cache" yaml:"cache"`
	// RateLimit configures admission control.
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	// Server configures the MCP server and the admin endpoints.
	Server ServerConfig `json:"server" yaml:"server"`
	// Logging configures structured logs.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	// Telemetry configures metrics.
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// InfluxConfig holds connection settings.
type InfluxConfig struct {
	Protocol     string `json:"protocol" yaml:"protocol"`
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	Username     string `json:"username" yaml:"username"`
	Password     string `json:"password" yaml:"password"`
	Database     string `json:"database,omitempty" yaml:"database,omitempty"`
	TimeoutMS    int    `json:"timeout_ms" yaml:"timeout_ms"`
	MaxConns     int    `json:"max_conns" yaml:"max_conns"`
	RetryMax     int    `json:"retry_max" yaml:"retry_max"`
	RetryDelayMS int    `json:"retry_delay_ms" yaml:"retry_delay_ms"`
}

// Timeout returns the per-request timeout.
func (c InfluxConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// RetryDelay returns the initial retry delay.
func (c InfluxConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// LimitsConfig bounds requests.
type LimitsConfig struct {
	// AllowedDatabases lists permitted databases; "*" permits all.
	AllowedDatabases []string `json:"allowed_databases" yaml:"allowed_databases"`
	MaxPoints        int64    `json:"max_points" yaml:"max_points"`
	MaxRangeDays     int      `json:"max_range_days" yaml:"max_range_days"`
	MaxLimit         int      `json:"max_limit" yaml:"max_limit"`
	MaxChunkSize     int      `json:"max_chunk_size" yaml:"max_chunk_size"`
	DefaultPageSize  int      `json:"default_page_size" yaml:"default_page_size"`
	DefaultTZ        string   `json:"default_tz" yaml:"default_tz"`
}

// DatabaseAllowed reports whether db passes the allow-list.
func (c LimitsConfig) DatabaseAllowed(db string) bool {
	if len(c.AllowedDatabases) == 0 {
		return true
	}
	return slices.Contains(c.AllowedDatabases, AllDatabases) || slices.Contains(c.AllowedDatabases, db)
}

// AllowsAll reports whether the allow-list is the wildcard.
func (c LimitsConfig) AllowsAll() bool {
	return len(c.AllowedDatabases) == 0 || slices.Contains(c.AllowedDatabases, AllDatabases)
}

// ParseDatabaseList splits a comma separated allow-list, trimming blanks.
func ParseDatabaseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheBadger = "badger"
)

// CacheConfig configures the result cache.
type CacheConfig struct {
	// Backend is one of memory, redis or badger.
	Backend    string       `json:"backend" yaml:"backend"`
	TTLSeconds int          `json:"ttl_s" yaml:"ttl_s"`
	MaxSize    int          `json:"max_size" yaml:"max_size"`
	Redis      RedisConfig  `json:"redis,omitempty" yaml:"redis,omitempty"`
	Badger     BadgerConfig `json:"badger,omitempty" yaml:"badger,omitempty"`
}

// TTL returns the entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// BadgerConfig configures the badger backend.
type BadgerConfig struct {
	Dir      string `json:"dir" yaml:"dir"`
	InMemory bool   `json:"in_memory" yaml:"in_memory"`
	// GCIntervalS is the value-log GC period; 0 keeps the default.
	GCIntervalS int `json:"gc_interval_s,omitempty" yaml:"gc_interval_s,omitempty"`
}

// RateLimitConfig configures admission control.
type RateLimitConfig struct {
	// QPS is the token refill rate of the query limiter.
	QPS float64 `json:"qps" yaml:"qps"`
	// MaxConcurrent bounds in-flight database calls.
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`
	// ToolRate caps calls per tool per second at the MCP boundary. Zero disables it.
	ToolRate int `json:"tool_rate" yaml:"tool_rate"`
	// ToolBurst is the burst allowed per tool.
	ToolBurst int `json:"tool_burst" yaml:"tool_burst"`
}

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	Transport string `json:"transport" yaml:"transport"`
	// Addr is the listen address for the HTTP transport.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
	// AdminAddr serves /healthz and /stats when set.
	AdminAddr string `json:"admin_addr,omitempty" yaml:"admin_addr,omitempty"`
	// AuditLog is "stderr" or a file path; empty disables auditing.
	AuditLog string `json:"audit_log,omitempty" yaml:"audit_log,omitempty"`
}

// LoggingConfig configures logs.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Trace exporters.
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
	TraceExporterOTLP   = "otlp"
)

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	// Enabled turns on metric collection, served by the admin endpoint.
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	// TraceExporter is one of none, stdout or otlp.
	TraceExporter string  `json:"trace_exporter,omitempty" yaml:"trace_exporter,omitempty"`
	OTLPEndpoint  string  `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty"`
	OTLPInsecure  bool    `json:"otlp_insecure,omitempty" yaml:"otlp_insecure,omitempty"`
	SampleRate    float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Influx: InfluxConfig{
			Protocol:     "http",
			Host:         "localhost",
			Port:         8086,
			TimeoutMS:    15000,
			MaxConns:     10,
			RetryMax:     3,
			RetryDelayMS: 500,
		},
		Limits: LimitsConfig{
			AllowedDatabases: []string{AllDatabases},
			MaxPoints:        1_000_000,
			MaxRangeDays:     365,
			MaxLimit:         10_000,
			MaxChunkSize:     10_000,
			DefaultPageSize:  1000,
			DefaultTZ:        "UTC",
		},
		Cache: CacheConfig{
			Backend:    CacheMemory,
			TTLSeconds: 30,
			MaxSize:    100,
		},
		RateLimit: RateLimitConfig{
			QPS:           20,
			MaxConcurrent: 5,
		},
		Server: ServerConfig{
			Name:      "influxdb-mcp",
			Version:   "1.0.0",
			Transport: TransportStdio,
			Addr:      ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName:   "influx-mcp",
			TraceExporter: TraceExporterNone,
			SampleRate:    1.0,
		},
	}
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	out := c
	out.Limits.AllowedDatabases = slices.Clone(c.Limits.AllowedDatabases)
	if out.Influx.Password != "" {
		out.Influx.Password = "********"
	}
	if out.Cache.Redis.Password != "" {
		out.Cache.Redis.Password = "********"
	}
	return out
}

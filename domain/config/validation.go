package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the dotted path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates server configuration.
type Validator struct {
	errors ValidationErrors
	// RequireCredentials makes influx.username and influx.password mandatory.
	RequireCredentials bool
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{RequireCredentials: true}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) ValidationErrors {
	v.errors = nil

	v.validateInflux(config)
	v.validateLimits(config)
	v.validateCache(config)
	v.validateRateLimit(config)
	v.validateServer(config)
	v.validateLogging(config)
	v.validateTelemetry(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) positive(path string, n int) {
	if n <= 0 {
		v.addError(path, fmt.Sprintf("must be positive, got %d", n))
	}
}

func (v *Validator) validateInflux(config *Config) {
	c := config.Influx
	if c.Protocol != "http" && c.Protocol != "https" {
		v.addError("influx.protocol", fmt.Sprintf("must be http or https, got %q", c.Protocol))
	}
	if c.Host == "" {
		v.addError("influx.host", "host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		v.addError("influx.port", fmt.Sprintf("invalid port: %d", c.Port))
	}
	if v.RequireCredentials {
		if c.Username == "" {
			v.addError("influx.username", "username is required")
		}
		if c.Password == "" {
			v.addError("influx.password", "password is required")
		}
	}
	v.positive("influx.timeout_ms", c.TimeoutMS)
	v.positive("influx.max_conns", c.MaxConns)
	if c.RetryMax < 0 {
		v.addError("influx.retry_max", "must be non-negative")
	}
	v.positive("influx.retry_delay_ms", c.RetryDelayMS)
}

func (v *Validator) validateLimits(config *Config) {
	c := config.Limits
	if len(c.AllowedDatabases) == 0 {
		v.addError("limits.allowed_databases", `must list at least one database or "*"`)
	}
	if c.MaxPoints <= 0 {
		v.addError("limits.max_points", fmt.Sprintf("must be positive, got %d", c.MaxPoints))
	}
	v.positive("limits.max_range_days", c.MaxRangeDays)
	v.positive("limits.max_limit", c.MaxLimit)
	v.positive("limits.max_chunk_size", c.MaxChunkSize)
	v.positive("limits.default_page_size", c.DefaultPageSize)
	if c.DefaultTZ != "" {
		if _, err := time.LoadLocation(c.DefaultTZ); err != nil {
			v.addError("limits.default_tz", fmt.Sprintf("unknown time zone: %s", c.DefaultTZ))
		}
	}
}

func (v *Validator) validateCache(config *Config) {
	c := config.Cache
	switch c.Backend {
	case CacheMemory, "":
	case CacheRedis:
		if c.Redis.Addr == "" {
			v.addError("cache.redis.addr", "addr is required for the redis backend")
		}
	case CacheBadger:
		if c.Badger.Dir == "" && !c.Badger.InMemory {
			v.addError("cache.badger.dir", "dir is required unless in_memory is set")
		}
	default:
		v.addError("cache.backend", fmt.Sprintf("unknown backend: %s", c.Backend))
	}
	v.positive("cache.ttl_s", c.TTLSeconds)
	v.positive("cache.max_size", c.MaxSize)
}

func (v *Validator) validateRateLimit(config *Config) {
	c := config.RateLimit
	if c.QPS <= 0 {
		v.addError("rate_limit.qps", fmt.Sprintf("must be positive, got %v", c.QPS))
	}
	v.positive("rate_limit.max_concurrent", c.MaxConcurrent)
	if c.ToolRate < 0 {
		v.addError("rate_limit.tool_rate", "must be non-negative")
	}
	if c.ToolBurst < 0 {
		v.addError("rate_limit.tool_burst", "must be non-negative")
	}
}

func (v *Validator) validateServer(config *Config) {
	c := config.Server
	if c.Name == "" {
		v.addError("server.name", "name is required")
	}
	switch c.Transport {
	case TransportStdio:
	case TransportHTTP:
		if c.Addr == "" {
			v.addError("server.addr", "addr is required for the http transport")
		}
	default:
		v.addError("server.transport", fmt.Sprintf("must be stdio or http, got %q", c.Transport))
	}
}

func (v *Validator) validateLogging(config *Config) {
	switch strings.ToLower(config.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("invalid level: %s", config.Logging.Level))
	}
	switch config.Logging.Format {
	case "", "json", "console", "pretty":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", config.Logging.Format))
	}
}

func (v *Validator) validateTelemetry(config *Config) {
	c := config.Telemetry
	switch c.TraceExporter {
	case "", TraceExporterNone, TraceExporterStdout:
	case TraceExporterOTLP:
		if c.OTLPEndpoint == "" {
			v.addError("telemetry.otlp_endpoint", "endpoint is required for the otlp exporter")
		}
	default:
		v.addError("telemetry.trace_exporter", fmt.Sprintf("unknown exporter: %s", c.TraceExporter))
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		v.addError("telemetry.sample_rate", fmt.Sprintf("must be within [0, 1], got %v", c.SampleRate))
	}
}

// Validate checks config with credentials required.
func (c *Config) Validate() error {
	if errs := NewValidator().Validate(c); errs.HasErrors() {
		return errs
	}
	return nil
}

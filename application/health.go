package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/cache"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/influxql"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/ratelimit"
)

// InfluxStatus is the outcome of a database ping.
type InfluxStatus struct {
	OK      bool   `json:"ok"`
	Version string `json:"version,omitempty"`
	RTTMs   int64  `json:"rtt_ms"`
	Error   string `json:"error,omitempty"`
}

// PingResult is the health.ping payload.
type PingResult struct {
	OK         bool         `json:"ok"`
	Influx     InfluxStatus `json:"influx"`
	ServerTime string       `json:"server_time"`
	Version    string       `json:"version"`
}

// CacheStats adds the hit rate to the cache counters.
type CacheStats struct {
	cache.Stats
	HitRate float64 `json:"hit_rate"`
}

// StatsResult is the server.stats payload.
type StatsResult struct {
	Cache        *CacheStats     `json:"cache,omitempty"`
	Limiter      ratelimit.Stats `json:"limiter"`
	CircuitState string          `json:"circuit_state,omitempty"`
}

// ValidateResult is the query.validate payload.
type ValidateResult struct {
	Valid      bool                 `json:"valid"`
	Statements []influxql.Statement `json:"statements"`
}

// HealthService reports liveness and statistics.
type HealthService struct {
	cfg Config
}

// breakerReporter is implemented by executors guarded by a circuit breaker.
type breakerReporter interface {
	BreakerState() string
}

// Ping probes the database. A failed probe is reported in the payload, not
// as an error, so callers always get the server's view.
func (s *HealthService) Ping(ctx context.Context) PingResult {
	out := PingResult{
		ServerTime: s.cfg.Now().UTC().Format(time.RFC3339),
		Version:    s.cfg.Version,
	}
	res, err := s.cfg.Executor.Ping(ctx)
	if err != nil {
		out.Influx = InfluxStatus{OK: false, Error: err.Error()}
		return out
	}
	out.Influx = InfluxStatus{OK: res.OK, Version: res.Version, RTTMs: res.RTT.Milliseconds()}
	out.OK = res.OK
	return out
}

// Stats snapshots cache and limiter counters.
func (s *HealthService) Stats() StatsResult {
	out := StatsResult{Limiter: s.cfg.Limiter.Stats()}
	if sp, ok := s.cfg.Cache.(cache.StatsProvider); ok {
		st := sp.Stats()
		out.Cache = &CacheStats{Stats: st, HitRate: st.HitRate()}
	}
	if br, ok := s.cfg.Executor.(breakerReporter); ok {
		out.CircuitState = br.BreakerState()
	}
	return out
}

// Validate parses text offline and reports the statements it contains.
func (s *HealthService) Validate(text string) (ValidateResult, error) {
	if text == "" {
		return ValidateResult{}, query.NewValidationError("query is required", nil)
	}
	stmts, err := influxql.ParseReadOnly(text)
	if err != nil {
		return ValidateResult{}, err
	}
	return ValidateResult{Valid: true, Statements: stmts}, nil
}

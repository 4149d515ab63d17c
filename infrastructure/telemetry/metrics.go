// Package telemetry provides OpenTelemetry metric instruments for the
// query pipeline.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsProvider provides access to metrics instruments.
type MetricsProvider struct {
	meter metric.Meter

	// Counters
	queries             metric.Int64Counter
	cacheHits           metric.Int64Counter
	cacheMisses         metric.Int64Counter
	rateLimitRejections metric.Int64Counter
	errors              metric.Int64Counter
	downsampled         metric.Int64Counter

	// Histograms
	queryDuration metric.Float64Histogram
	queryPoints   metric.Float64Histogram

	// Gauges (using UpDownCounter for OpenTelemetry)
	inFlight metric.Int64UpDownCounter

	initOnce sync.Once
	initErr  error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter.
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
	// MeterProvider overrides the global provider when set.
	MeterProvider metric.MeterProvider
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/felixgeelhaar/influx-mcp",
		MeterVersion: "1.0.0",
	}
}

// NewMetricsProvider creates a new metrics provider.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config.MeterName = DefaultMetricsConfig().MeterName
	}

	provider := config.MeterProvider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(
		config.MeterName,
		metric.WithInstrumentationVersion(config.MeterVersion),
	)

	mp := &MetricsProvider{
		meter: meter,
	}

	mp.initOnce.Do(func() {
		mp.initErr = mp.initInstruments()
	})

	return mp
}

func (mp *MetricsProvider) counter(dst *metric.Int64Counter, name, desc, unit string) error {
	c, err := mp.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		return err
	}
	*dst = c
	return nil
}

func (mp *MetricsProvider) histogram(dst *metric.Float64Histogram, name, desc, unit string) error {
	h, err := mp.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		return err
	}
	*dst = h
	return nil
}

// initInstruments initializes all metric instruments.
func (mp *MetricsProvider) initInstruments() error {
	counters := []struct {
		dst              *metric.Int64Counter
		name, desc, unit string
	}{
		{&mp.queries, "influxmcp.queries", "Number of executed queries", "{query}"},
		{&mp.cacheHits, "influxmcp.cache.hits", "Number of cache hits", "{hit}"},
		{&mp.cacheMisses, "influxmcp.cache.misses", "Number of cache misses", "{miss}"},
		{&mp.rateLimitRejections, "influxmcp.ratelimit.rejections", "Number of requests rejected by the rate limiter", "{request}"},
		{&mp.errors, "influxmcp.errors", "Number of errors by code", "{error}"},
		{&mp.downsampled, "influxmcp.downsampled", "Number of plans that were downsampled or widened", "{plan}"},
	}
	for _, c := range counters {
		if err := mp.counter(c.dst, c.name, c.desc, c.unit); err != nil {
			return err
		}
	}

	if err := mp.histogram(&mp.queryDuration, "influxmcp.query.duration", "Duration of database queries", "ms"); err != nil {
		return err
	}
	if err := mp.histogram(&mp.queryPoints, "influxmcp.query.points", "Rows returned per query", "{point}"); err != nil {
		return err
	}

	var err error
	mp.inFlight, err = mp.meter.Int64UpDownCounter(
		"influxmcp.queries.in_flight",
		metric.WithDescription("Number of queries currently executing"),
		metric.WithUnit("{query}"),
	)
	return err
}

// Error returns any initialization error.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

// RecordQuery records one executed query.
func (mp *MetricsProvider) RecordQuery(ctx context.Context, tool, strategy string, success bool, duration time.Duration, points int) {
	if mp.initErr != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("query.strategy", strategy),
		attribute.Bool("success", success),
	)
	mp.queries.Add(ctx, 1, attrs)
	mp.queryDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if success {
		mp.queryPoints.Record(ctx, float64(points), attrs)
	}
}

// RecordCacheHit records a cache hit.
func (mp *MetricsProvider) RecordCacheHit(ctx context.Context, tool string) {
	if mp.initErr != nil {
		return
	}
	mp.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("tool.name", tool)))
}

// RecordCacheMiss records a cache miss.
func (mp *MetricsProvider) RecordCacheMiss(ctx context.Context, tool string) {
	if mp.initErr != nil {
		return
	}
	mp.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("tool.name", tool)))
}

// RecordRateLimitRejection records a request refused for lack of tokens.
func (mp *MetricsProvider) RecordRateLimitRejection(ctx context.Context, tool string) {
	if mp.initErr != nil {
		return
	}
	mp.rateLimitRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("tool.name", tool)))
}

// RecordError records an error by its code.
func (mp *MetricsProvider) RecordError(ctx context.Context, tool, code string) {
	if mp.initErr != nil {
		return
	}
	mp.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("error.code", code),
	))
}

// RecordDownsampled records a plan adjusted to fit the point budget.
func (mp *MetricsProvider) RecordDownsampled(ctx context.Context, strategy string) {
	if mp.initErr != nil {
		return
	}
	mp.downsampled.Add(ctx, 1, metric.WithAttributes(attribute.String("query.strategy", strategy)))
}

// IncrementInFlight increments the in-flight gauge.
func (mp *MetricsProvider) IncrementInFlight(ctx context.Context) {
	if mp.initErr != nil {
		return
	}
	mp.inFlight.Add(ctx, 1)
}

// DecrementInFlight decrements the in-flight gauge.
func (mp *MetricsProvider) DecrementInFlight(ctx context.Context) {
	if mp.initErr != nil {
		return
	}
	mp.inFlight.Add(ctx, -1)
}

// NoopMetricsProvider is a no-op metrics provider for testing or when metrics are disabled.
type NoopMetricsProvider struct{}

// RecordQuery is a no-op.
func (n *NoopMetricsProvider) RecordQuery(context.Context, string, string, bool, time.Duration, int) {
}

// RecordCacheHit is a no-op.
func (n *NoopMetricsProvider) RecordCacheHit(context.Context, string) {}

// RecordCacheMiss is a no-op.
func (n *NoopMetricsProvider) RecordCacheMiss(context.Context, string) {}

// RecordRateLimitRejection is a no-op.
func (n *NoopMetricsProvider) RecordRateLimitRejection(context.Context, string) {}

// RecordError is a no-op.
func (n *NoopMetricsProvider) RecordError(context.Context, string, string) {}

// RecordDownsampled is a no-op.
func (n *NoopMetricsProvider) RecordDownsampled(context.Context, string) {}

// IncrementInFlight is a no-op.
func (n *NoopMetricsProvider) IncrementInFlight(context.Context) {}

// DecrementInFlight is a no-op.
func (n *NoopMetricsProvider) DecrementInFlight(context.Context) {}

// Metrics defines the interface for metrics recording.
type Metrics interface {
	RecordQuery(ctx context.Context, tool, strategy string, success bool, duration time.Duration, points int)
	RecordCacheHit(ctx context.Context, tool string)
	RecordCacheMiss(ctx context.Context, tool string)
	RecordRateLimitRejection(ctx context.Context, tool string)
	RecordError(ctx context.Context, tool, code string)
	RecordDownsampled(ctx context.Context, strategy string)
	IncrementInFlight(ctx context.Context)
	DecrementInFlight(ctx context.Context)
}

// Ensure implementations satisfy the interface.
var (
	_ Metrics = (*MetricsProvider)(nil)
	_ Metrics = (*NoopMetricsProvider)(nil)
)

package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.ServiceName != "influx-mcp" {
		t.Errorf("ServiceName = %q, want influx-mcp", cfg.ServiceName)
	}
	if cfg.Tracing.Enabled || cfg.Metrics.Enabled {
		t.Error("tracing and metrics should be off by default")
	}
	if cfg.Tracing.Writer == nil {
		t.Error("Tracing.Writer = nil, want stderr")
	}
}

func TestNew_Noop(t *testing.T) {
	t.Parallel()

	p, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.TracingEnabled() {
		t.Error("TracingEnabled() = true, want false")
	}
	if _, err := p.Collect(context.Background()); !errors.Is(err, ErrMetricsDisabled) {
		t.Errorf("Collect() error = %v, want %v", err, ErrMetricsDisabled)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if NewNoopProvider().MeterProvider() == nil {
		t.Error("MeterProvider() = nil")
	}
}

func TestNew_UnknownExporter(t *testing.T) {
	t.Parallel()

	_, err := New(WithTracing("zipkin", ""))
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("New() error = %v, want %v", err, ErrUnknownExporter)
	}
}

func TestNew_StdoutTracing(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(WithStdoutTracing(&buf), WithServiceName("influx-mcp-test"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !p.TracingEnabled() {
		t.Fatal("TracingEnabled() = false, want true")
	}

	_, span := StartSpan(context.Background(), "query.execute", attribute.String("db", "metrics"))
	EndSpan(span, nil)

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), "query.execute") {
		t.Errorf("exporter output missing span name: %s", buf.String())
	}
}

func TestProvider_Collect(t *testing.T) {
	t.Parallel()

	p, err := New(WithMetrics())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Shutdown(context.Background())

	meter := p.MeterProvider().Meter("test")
	counter, err := meter.Int64Counter("influxmcp.queries")
	if err != nil {
		t.Fatalf("Int64Counter() error = %v", err)
	}
	counter.Add(context.Background(), 3, metric.WithAttributes(attribute.String("tool.name", "timeseries.query")))

	points, err := p.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("len(points) = %d, want 1", len(points))
	}
	if points[0].Value != 3 || points[0].Attributes["tool.name"] != "timeseries.query" {
		t.Errorf("point = %+v, want value 3 for timeseries.query", points[0])
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "plan")
	EndSpan(span, query.NewMaxPointsExceededError(10, 5))

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("len(ended) = %d, want 1", len(ended))
	}
	if ended[0].Status().Description == "" {
		t.Error("status description is empty, want the error message")
	}
	found := false
	for _, kv := range ended[0].Attributes() {
		if kv.Key == "error.code" && kv.Value.AsString() == string(query.CodeMaxPointsExceeded) {
			found = true
		}
	}
	if !found {
		t.Errorf("attributes = %v, want error.code", ended[0].Attributes())
	}
}

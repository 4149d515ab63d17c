package logging

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

// testLogger creates a logger that writes to a buffer for testing
func testLogger() (*bolt.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := bolt.New(bolt.NewJSONHandler(buf)).SetLevel(bolt.TRACE)
	return logger, buf
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	if config.Level != "info" {
		t.Errorf("Level = %s, want info", config.Level)
	}
	if config.Format != "json" {
		t.Errorf("Format = %s, want json", config.Format)
	}
	if config.Output != os.Stderr {
		t.Errorf("Output = %v, want os.Stderr", config.Output)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bolt.Level
	}{
		{"trace", bolt.TRACE},
		{"debug", bolt.DEBUG},
		{"INFO", bolt.INFO},
		{"warn", bolt.WARN},
		{"warning", bolt.WARN},
		{"error", bolt.ERROR},
		{"unknown", bolt.INFO},
		{"", bolt.INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%s) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field Field
		want  string
	}{
		{"component", Component("planner"), `"component":"planner"`},
		{"operation", Operation("plan"), `"operation":"plan"`},
		{"tool", ToolName("timeseries.query"), `"tool":"timeseries.query"`},
		{"request id", RequestID("req-1"), `"request_id":"req-1"`},
		{"database", Database("metrics"), `"db":"metrics"`},
		{"measurement", Measurement("cpu"), `"measurement":"cpu"`},
		{"strategy", Strategy(query.StrategyDownsampled), `"strategy":"DOWNSAMPLED"`},
		{"points", Points("estimated_points", 720), `"estimated_points":720`},
		{"query", Query("SELECT 1"), `"query":"SELECT 1"`},
		{"duration", Duration(1500 * time.Millisecond), `"duration_ms":1500`},
		{"cached", Cached(true), `"cached":true`},
		{"reason", Reason("over budget"), `"reason":"over budget"`},
		{"str", Str("k", "v"), `"k":"v"`},
		{"int", Int("n", 3), `"n":3`},
		{"error code", ErrorCode(query.NewRateLimitError(time.Second)), `"error_code":"RATE_LIMIT_ERROR"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, buf := testLogger()
			tt.field(logger.Info()).Msg("test")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %s, want it to contain %s", buf.String(), tt.want)
			}
		})
	}
}

func TestErrorField(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	ErrorField(errors.New("boom"))(logger.Error()).Msg("failed")
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("output = %s, want error text", buf.String())
	}

	logger, buf = testLogger()
	ErrorField(nil)(logger.Info()).Msg("ok")
	if strings.Contains(buf.String(), `"error"`) {
		t.Errorf("nil error should add no field: %s", buf.String())
	}
}

func TestSkippedFields(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	ev := NewEvent(logger.Info())
	ev.Add(RequestID("")).Add(ErrorCode(errors.New("plain"))).Msg("skip")
	if strings.Contains(buf.String(), "request_id") || strings.Contains(buf.String(), "error_code") {
		t.Errorf("output = %s, want no request_id or error_code", buf.String())
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := New(Config{Level: "warn", Format: "json", Output: buf})
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("info message logged at warn level: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn message missing: %s", buf.String())
	}
}

func TestLogEventChaining(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	NewEvent(logger.Info()).
		Add(Component("cache")).
		Add(Cached(false)).
		Msg("lookup")

	out := buf.String()
	for _, want := range []string{`"component":"cache"`, `"cached":false`, "lookup"} {
		if !strings.Contains(out, want) {
			t.Errorf("output = %s, want %s", out, want)
		}
	}
}

func TestGetAndInit(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Config{Level: "debug", Output: buf})
	t.Cleanup(func() { Init(Config{Level: "error", Output: &bytes.Buffer{}}) })

	Debug().Add(Component("test")).Msg("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Errorf("default logger output = %s", buf.String())
	}
	if Get() == nil {
		t.Error("Get() returned nil")
	}
}

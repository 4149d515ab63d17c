package query_test

import (
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestParseTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-01-01T00:00:00Z", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-01-01T02:00:00+02:00", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"now()", fixedNow},
		{"now() - 1h", fixedNow.Add(-time.Hour)},
		{"NOW()+2d", fixedNow.Add(48 * time.Hour)},
		{"now() - 30s", fixedNow.Add(-30 * time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := query.ParseTime(tt.input, fixedNow)
			if err != nil {
				t.Fatalf("ParseTime(%q) error = %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	for _, bad := range []string{"yesterday", "now() - 1w", "now() - h"} {
		if _, err := query.ParseTime(bad, fixedNow); !errors.Is(err, query.ErrInvalidTimeRange) {
			t.Errorf("ParseTime(%q) error = %v, want ErrInvalidTimeRange", bad, err)
		}
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  time.Duration
	}{
		{"30s", 30 * time.Second},
		{"5m", 5 * time.Minute},
		{"2H", 2 * time.Hour},
		{"1d", 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := query.ParseDuration(tt.input)
		if err != nil {
			t.Fatalf("ParseDuration(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := query.ParseDuration("1w"); err == nil {
		t.Error("ParseDuration(1w) should fail")
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{90 * time.Second, "1m"},
		{3 * time.Hour, "3h"},
		{49 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		if got := query.FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestResolveTimeRange(t *testing.T) {
	t.Parallel()

	t.Run("valid range", func(t *testing.T) {
		t.Parallel()
		r, err := query.ResolveTimeRange(query.TimeRange{From: "2024-01-01T00:00:00Z", To: "2024-01-02T00:00:00Z"}, 365, fixedNow)
		if err != nil {
			t.Fatalf("ResolveTimeRange() error = %v", err)
		}
		if r.Span() != 24*time.Hour {
			t.Errorf("Span() = %v, want 24h", r.Span())
		}
	})

	t.Run("inverted range", func(t *testing.T) {
		t.Parallel()
		_, err := query.ResolveTimeRange(query.TimeRange{From: "now()", To: "now() - 1h"}, 365, fixedNow)
		if !errors.Is(err, query.ErrInvalidTimeRange) {
			t.Errorf("error = %v, want ErrInvalidTimeRange", err)
		}
	})

	t.Run("range too wide", func(t *testing.T) {
		t.Parallel()
		_, err := query.ResolveTimeRange(query.TimeRange{From: "now() - 10d", To: "now()"}, 7, fixedNow)
		if !errors.Is(err, query.ErrInvalidTimeRange) {
			t.Errorf("error = %v, want ErrInvalidTimeRange", err)
		}
	})
}

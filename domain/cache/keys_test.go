package cache

import (
	"strings"
	"testing"
)

func TestMetadataKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind  string
		parts []string
		want  string
	}{
		{"databases", nil, "meta:databases"},
		{"measurements", []string{"metrics"}, "meta:measurements:metrics"},
		{"fields", []string{"metrics", "cpu"}, "meta:fields:metrics:cpu"},
		{"measurements", []string{"metrics", ""}, "meta:measurements:metrics"},
	}

	for _, tt := range tests {
		if got := MetadataKey(tt.kind, tt.parts...); got != tt.want {
			t.Errorf("MetadataKey(%s, %v) = %s, want %s", tt.kind, tt.parts, got, tt.want)
		}
	}
}

func TestQueryKey(t *testing.T) {
	t.Parallel()

	key := QueryKey("metrics", []byte(`{"db":"metrics","measurement":"cpu","fields":["usage"]}`))
	if !strings.HasPrefix(key, "query:metrics:") {
		t.Errorf("QueryKey() = %s, want query:metrics: prefix", key)
	}
	if enc := strings.TrimPrefix(key, "query:metrics:"); len(enc) != queryKeyLength {
		t.Errorf("encoded part length = %d, want %d", len(enc), queryKeyLength)
	}

	short := QueryKey("d", []byte("x"))
	if short != "query:d:eA==" {
		t.Errorf("QueryKey(short) = %s, want query:d:eA==", short)
	}
}

func TestStats_HitRate(t *testing.T) {
	t.Parallel()

	if got := (Stats{}).HitRate(); got != 0 {
		t.Errorf("HitRate() = %v, want 0", got)
	}
	if got := (Stats{Hits: 2, Misses: 1}).HitRate(); got != 0.67 {
		t.Errorf("HitRate() = %v, want 0.67", got)
	}
}

package features

import (
	"errors"
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func seriesOf(values ...float64) []Point {
	out := make([]Point, len(values))
	for i, v := range values {
		out[i] = Point{T: t0.Add(time.Duration(i) * time.Second), V: v}
	}
	return out
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCompute(t *testing.T) {
	t.Parallel()

	series := seriesOf(2, 4, 4, 4, 5, 5, 7, 9)
	got := Compute(series, All)

	want := map[string]float64{
		"mean":  5,
		"std":   2,
		"var":   4,
		"rms":   math.Sqrt(29),
		"p2p":   7,
		"zcr":   0,
		"trend": 272.0 / 336.0,
		"auc":   34.5,
	}
	for k, w := range want {
		if !approx(got[k], w) {
			t.Errorf("%s = %v, want %v", k, got[k], w)
		}
	}
	if got["skew"] <= 0 {
		t.Errorf("skew = %v, want positive for a right-tailed series", got["skew"])
	}
	if len(got) != len(All) {
		t.Errorf("len(Compute()) = %d, want %d", len(got), len(All))
	}
}

func TestCompute_EdgeCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		series []Point
		want   map[string]float64
	}{
		{
			name:   "empty",
			series: nil,
			want:   map[string]float64{"mean": 0, "std": 0, "p2p": 0, "trend": 0, "auc": 0, "skew": 0},
		},
		{
			name:   "constant has zero shape moments",
			series: seriesOf(3, 3, 3),
			want:   map[string]float64{"skew": 0, "kurtosis": 0, "std": 0, "trend": 0},
		},
		{
			name:   "zero crossings",
			series: seriesOf(1, -1, 0, -2, 3),
			want:   map[string]float64{"zcr": 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Compute(tt.series, All)
			for k, w := range tt.want {
				if !approx(got[k], w) {
					t.Errorf("%s = %v, want %v", k, got[k], w)
				}
			}
		})
	}
}

func TestCompute_Kurtosis(t *testing.T) {
	t.Parallel()

	// Two-point symmetric distribution: kurtosis is exactly 1.
	got := Compute(seriesOf(-1, 1, -1, 1), []Name{Kurtosis, Skew})
	if !approx(got["kurtosis"], 1) {
		t.Errorf("kurtosis = %v, want 1", got["kurtosis"])
	}
	if !approx(got["skew"], 0) {
		t.Errorf("skew = %v, want 0", got["skew"])
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	got, err := Parse([]string{"mean", "auc"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(got) != 2 || got[1] != AUC {
		t.Errorf("Parse() = %v, want [mean auc]", got)
	}

	if _, err := Parse([]string{"median"}); !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("Parse(median) error = %v, want %v", err, ErrUnknownFeature)
	}
}

func TestRolling(t *testing.T) {
	t.Parallel()

	// Ten points, one per second, values 0..9.
	series := seriesOf(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)

	windows, err := Rolling(series, 4*time.Second, 0, []Name{Mean})
	if err != nil {
		t.Fatalf("Rolling() error = %v", err)
	}
	// Windows start at 0s and 4s; one starting at 8s would pass the last point.
	if len(windows) != 2 {
		t.Fatalf("len(windows) = %d, want 2", len(windows))
	}
	if !approx(windows[0].Values["mean"], 1.5) {
		t.Errorf("window[0].mean = %v, want 1.5", windows[0].Values["mean"])
	}
	if !approx(windows[1].Values["mean"], 5.5) {
		t.Errorf("window[1].mean = %v, want 5.5", windows[1].Values["mean"])
	}
	if !windows[1].Start.Equal(t0.Add(4*time.Second)) || !windows[1].End.Equal(t0.Add(8*time.Second)) {
		t.Errorf("window[1] = [%v, %v), want [4s, 8s)", windows[1].Start, windows[1].End)
	}

	stepped, err := Rolling(series, 4*time.Second, 2*time.Second, []Name{Mean})
	if err != nil {
		t.Fatalf("Rolling() error = %v", err)
	}
	if len(stepped) != 3 {
		t.Errorf("len(stepped) = %d, want 3", len(stepped))
	}
}

func TestRolling_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Rolling(seriesOf(1, 2), 0, 0, All); err == nil {
		t.Error("Rolling(width 0) error = nil, want error")
	}
	got, err := Rolling(nil, time.Second, 0, All)
	if err != nil || len(got) != 0 {
		t.Errorf("Rolling(nil) = %v, %v, want empty", got, err)
	}
}

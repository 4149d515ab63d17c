// Package features computes summary features over numeric time series.
package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Name identifies a feature.
type Name string

// Supported features.
const (
	Mean     Name = "mean"
	Std      Name = "std"
	Var      Name = "var"
	RMS      Name = "rms"
	P2P      Name = "p2p"
	Skew     Name = "skew"
	Kurtosis Name = "kurtosis"
	ZCR      Name = "zcr"
	Trend    Name = "trend"
	AUC      Name = "auc"
)

// All lists every supported feature in a stable order.
var All = []Name{Mean, Std, Var, RMS, P2P, Skew, Kurtosis, ZCR, Trend, AUC}

// ErrUnknownFeature is returned for a feature name outside All.
var ErrUnknownFeature = errors.New("unknown feature")

// Point is one sample.
type Point struct {
	T time.Time `json:"t"`
	V float64   `json:"v"`
}

// Parse validates names and returns them as features.
func Parse(names []string) ([]Name, error) {
	out := make([]Name, 0, len(names))
	for _, n := range names {
		f := Name(n)
		if !f.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, n)
		}
		out = append(out, f)
	}
	return out, nil
}

// Valid reports whether n is a supported feature.
func (n Name) Valid() bool {
	for _, f := range All {
		if f == n {
			return true
		}
	}
	return false
}

// Compute evaluates each requested feature over series. Points are expected
// in time order.
func Compute(series []Point, names []Name) map[string]float64 {
	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.V
	}
	out := make(map[string]float64, len(names))
	for _, n := range names {
		switch n {
		case Mean:
			out[string(n)] = mean(values)
		case Std:
			out[string(n)] = math.Sqrt(variance(values))
		case Var:
			out[string(n)] = variance(values)
		case RMS:
			out[string(n)] = rms(values)
		case P2P:
			out[string(n)] = peakToPeak(values)
		case Skew:
			out[string(n)] = standardMoment(values, 3)
		case Kurtosis:
			out[string(n)] = standardMoment(values, 4)
		case ZCR:
			out[string(n)] = zeroCrossings(values)
		case Trend:
			out[string(n)] = slope(values)
		case AUC:
			out[string(n)] = areaUnderCurve(series)
		}
	}
	return out
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// variance is the population variance.
func variance(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := mean(v)
	var sum float64
	for _, x := range v {
		sum += (x - m) * (x - m)
	}
	return sum / float64(len(v))
}

func rms(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(v)))
}

func peakToPeak(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return hi - lo
}

// standardMoment returns the k-th central moment divided by std^k, or 0 for
// a constant series.
func standardMoment(v []float64, k float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sd := math.Sqrt(variance(v))
	if sd == 0 {
		return 0
	}
	m := mean(v)
	var sum float64
	for _, x := range v {
		sum += math.Pow(x-m, k)
	}
	return sum / float64(len(v)) / math.Pow(sd, k)
}

// zeroCrossings counts sign changes, treating zero as positive.
func zeroCrossings(v []float64) float64 {
	n := 0
	for i := 1; i < len(v); i++ {
		if (v[i] >= 0) != (v[i-1] >= 0) {
			n++
		}
	}
	return float64(n)
}

// slope is the least-squares slope of value against sample index.
func slope(v []float64) float64 {
	n := float64(len(v))
	if len(v) < 2 {
		return 0
	}
	var sx, sy, sxy, sxx float64
	for i, y := range v {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	return (n*sxy - sx*sy) / (n*sxx - sx*sx)
}

// areaUnderCurve integrates with the trapezoidal rule over seconds.
func areaUnderCurve(series []Point) float64 {
	var area float64
	for i := 1; i < len(series); i++ {
		dt := series[i].T.Sub(series[i-1].T).Seconds()
		area += (series[i-1].V + series[i].V) * dt / 2
	}
	return area
}

// Window is the feature set of one rolling window.
type Window struct {
	Start  time.Time          `json:"window_start"`
	End    time.Time          `json:"window_end"`
	Values map[string]float64 `json:"values"`
}

// Rolling slides a window of width over series in steps of step and
// computes the features of each non-empty window. Windows cover
// [start, start+width) and stop once a window would pass the last point.
func Rolling(series []Point, width, step time.Duration, names []Name) ([]Window, error) {
	if width <= 0 {
		return nil, fmt.Errorf("rolling window must be positive, got %s", width)
	}
	if step <= 0 {
		step = width
	}
	if len(series) == 0 {
		return []Window{}, nil
	}

	sorted := append([]Point(nil), series...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].T.Before(sorted[j].T) })

	first, last := sorted[0].T, sorted[len(sorted)-1].T
	out := []Window{}
	lo := 0
	for start := first; !start.Add(width).After(last); start = start.Add(step) {
		end := start.Add(width)
		for lo < len(sorted) && sorted[lo].T.Before(start) {
			lo++
		}
		hi := lo
		for hi < len(sorted) && sorted[hi].T.Before(end) {
			hi++
		}
		if hi == lo {
			continue
		}
		out = append(out, Window{Start: start, End: end, Values: Compute(sorted[lo:hi], names)})
	}
	return out, nil
}

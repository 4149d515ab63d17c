package application

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/config"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeExecutor answers by the first matching prefix of the query text.
type fakeExecutor struct {
	mu        sync.Mutex
	calls     []string
	responses map[string][]query.Series
	errs      []error
	ping      query.PingResult
	pingErr   error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{responses: map[string][]query.Series{}}
}

func (f *fakeExecutor) on(prefix string, series ...query.Series) *fakeExecutor {
	f.responses[prefix] = series
	return f
}

// failNext makes the next len(errs) executions fail in order.
func (f *fakeExecutor) failNext(errs ...error) *fakeExecutor {
	f.errs = append(f.errs, errs...)
	return f
}

func (f *fakeExecutor) Execute(_ context.Context, text, _ string, _ query.ExecOptions) ([]query.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, text)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	for prefix, series := range f.responses {
		if strings.HasPrefix(text, prefix) {
			return series, nil
		}
	}
	return nil, nil
}

func (f *fakeExecutor) Ping(context.Context) (query.PingResult, error) {
	return f.ping, f.pingErr
}

func (f *fakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		AllowedDatabases: []string{"metrics"},
		MaxPoints:        1000,
		MaxRangeDays:     30,
		MaxLimit:         10000,
		MaxChunkSize:     100,
		DefaultPageSize:  100,
		DefaultTZ:        "UTC",
	}
}

func newTestServices(t *testing.T, exec *fakeExecutor, opts ...Option) *Services {
	t.Helper()

	base := []Option{
		WithExecutor(exec),
		WithLimits(testLimits()),
		WithClock(func() time.Time { return fixedNow }),
		WithVersion("test"),
	}
	svc, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func cpuSeries(n int) query.Series {
	s := query.Series{Name: "cpu", Columns: []string{"time", "usage"}}
	for i := 0; i < n; i++ {
		ts := time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC).Format(time.RFC3339)
		s.Values = append(s.Values, []any{ts, float64(i + 1)})
	}
	return s
}

func minuteRequest() query.Request {
	return query.Request{
		Database:    "metrics",
		Measurement: "cpu",
		Fields:      query.Fields{"usage"},
		Where: &query.Where{Time: &query.TimeRange{
			From: "2024-01-01T00:00:00Z",
			To:   "2024-01-01T00:01:00Z",
		}},
	}
}

func assertCode(t *testing.T, err error, want query.Code) {
	t.Helper()
	if got := query.CodeOf(err); got != want {
		t.Errorf("error code = %q (%v), want %q", got, err, want)
	}
}

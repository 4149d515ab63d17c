package planner

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPlanner(maxPoints int64) *Planner {
	return New(maxPoints, 10000, WithClock(func() time.Time { return fixedNow }))
}

func dayRequest() query.Request {
	return query.Request{
		Database:    "metrics",
		Measurement: "cpu",
		Fields:      query.Fields{"usage"},
		Where: &query.Where{Time: &query.TimeRange{
			From: "2024-01-01T00:00:00Z",
			To:   "2024-01-02T00:00:00Z",
		}},
	}
}

func TestPlan_DownsamplesLargeRawRequest(t *testing.T) {
	t.Parallel()

	req := dayRequest()
	plan, err := newTestPlanner(1000).Plan(req, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if plan.Strategy != query.StrategyDownsampled {
		t.Errorf("Strategy = %s, want DOWNSAMPLED", plan.Strategy)
	}
	if plan.Window != "2m" {
		t.Errorf("Window = %s, want 2m", plan.Window)
	}
	if plan.Request.Agg != query.AggMean {
		t.Errorf("Agg = %s, want mean", plan.Request.Agg)
	}
	if !plan.NeedsDownsampling || !plan.Adjusted() {
		t.Error("plan should be marked as adjusted")
	}
	if plan.EstimatedPoints != 720 {
		t.Errorf("EstimatedPoints = %d, want 720", plan.EstimatedPoints)
	}
	if !strings.Contains(plan.Query, "MEAN(usage)") || !strings.Contains(plan.Query, "GROUP BY time(2m)") {
		t.Errorf("Query = %s", plan.Query)
	}
	if req.Agg != "" || req.GroupByTime != "" {
		t.Error("caller's request was modified")
	}
}

func TestPlan_Raw(t *testing.T) {
	t.Parallel()

	req := dayRequest()
	plan, err := newTestPlanner(100000).Plan(req, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.Strategy != query.StrategyRaw {
		t.Errorf("Strategy = %s, want RAW", plan.Strategy)
	}
	if plan.EstimatedPoints != 86400 {
		t.Errorf("EstimatedPoints = %d, want 86400", plan.EstimatedPoints)
	}
	if plan.NeedsDownsampling {
		t.Error("raw plan should not be adjusted")
	}
}

func TestPlan_RawWithoutRange(t *testing.T) {
	t.Parallel()

	req := query.Request{Database: "d", Measurement: "m", Fields: query.AllFields()}
	plan, err := newTestPlanner(5000).Plan(req, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.Strategy != query.StrategyRaw || plan.EstimatedPoints != rawBaselinePoints {
		t.Errorf("plan = %s/%d, want RAW/%d", plan.Strategy, plan.EstimatedPoints, rawBaselinePoints)
	}
	if plan.Query != "SELECT * FROM m" {
		t.Errorf("Query = %s", plan.Query)
	}
}

func TestPlan_AggregatedDoublesWindow(t *testing.T) {
	t.Parallel()

	req := dayRequest().WithAgg(query.AggMax).WithGroupByTime("1m")
	plan, err := newTestPlanner(1000).Plan(req, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if plan.Strategy != query.StrategyAggregated {
		t.Errorf("Strategy = %s, want AGGREGATED", plan.Strategy)
	}
	if plan.Window != "2m" {
		t.Errorf("Window = %s, want 2m", plan.Window)
	}
	if !plan.NeedsDownsampling {
		t.Error("widened plan should be marked as adjusted")
	}
	if plan.EstimatedPoints != 720 {
		t.Errorf("EstimatedPoints = %d, want 720", plan.EstimatedPoints)
	}
	if req.GroupByTime != "1m" {
		t.Errorf("caller's GroupByTime = %s, want 1m", req.GroupByTime)
	}
}

func TestPlan_AggregatedWithinBudget(t *testing.T) {
	t.Parallel()

	req := dayRequest().WithAgg(query.AggMean).WithGroupByTime("1h")
	plan, err := newTestPlanner(1000).Plan(req, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.Window != "1h" || plan.NeedsDownsampling {
		t.Errorf("plan = %s/%v, want 1h unadjusted", plan.Window, plan.NeedsDownsampling)
	}
	if plan.EstimatedPoints != 24 {
		t.Errorf("EstimatedPoints = %d, want 24", plan.EstimatedPoints)
	}
}

func TestPlan_AggregatedTagMultiplier(t *testing.T) {
	t.Parallel()

	req := dayRequest().WithAgg(query.AggMean).WithGroupByTime("1h")
	req.GroupByTags = []string{"host", "region"}
	plan, err := newTestPlanner(100000).Plan(req, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.EstimatedPoints != 2400 {
		t.Errorf("EstimatedPoints = %d, want 2400", plan.EstimatedPoints)
	}
}

func TestPlan_GuardRejectsOvershoot(t *testing.T) {
	t.Parallel()

	req := dayRequest().WithAgg(query.AggMean).WithGroupByTime("1s")
	_, err := newTestPlanner(1000).Plan(req, false)
	if !errors.Is(err, query.ErrMaxPointsExceeded) {
		t.Fatalf("Plan() error = %v, want MAX_POINTS_EXCEEDED", err)
	}

	var qe *query.Error
	if !errors.As(err, &qe) || qe.Details["max_allowed"] != int64(1000) {
		t.Errorf("details = %v", qe.Details)
	}
}

func TestPlan_Last(t *testing.T) {
	t.Parallel()

	req := query.Request{
		Database:    "d",
		Measurement: "cpu",
		Fields:      query.Fields{"usage", "idle"},
		GroupByTags: []string{"host"},
	}
	plan, err := newTestPlanner(10).Plan(req, true)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.Strategy != query.StrategyLast || plan.EstimatedPoints != 1 {
		t.Errorf("plan = %s/%d, want LAST/1", plan.Strategy, plan.EstimatedPoints)
	}
	if plan.Query != "SELECT LAST(usage) FROM cpu GROUP BY host" {
		t.Errorf("Query = %s", plan.Query)
	}
}

func TestPlan_EstimateNeverExceedsMargin(t *testing.T) {
	t.Parallel()

	spans := []string{"now() - 1h", "now() - 6h", "now() - 1d", "now() - 30d", "now() - 365d"}
	budgets := []int64{10, 100, 1000, 50000}

	for _, from := range spans {
		for _, maxPoints := range budgets {
			req := query.Request{
				Database:    "d",
				Measurement: "m",
				Fields:      query.AllFields(),
				Where:       &query.Where{Time: &query.TimeRange{From: from, To: "now()"}},
			}
			plan, err := newTestPlanner(maxPoints).Plan(req, false)
			if err != nil {
				if !errors.Is(err, query.ErrMaxPointsExceeded) {
					t.Errorf("Plan(%s, %d) error = %v", from, maxPoints, err)
				}
				continue
			}
			if float64(plan.EstimatedPoints) > float64(maxPoints)*1.5 {
				t.Errorf("Plan(%s, %d) estimate %d exceeds margin", from, maxPoints, plan.EstimatedPoints)
			}
		}
	}
}

func TestPlan_InvalidTime(t *testing.T) {
	t.Parallel()

	req := dayRequest()
	req.Where.Time.From = "last tuesday"
	if _, err := newTestPlanner(1000).Plan(req, false); !errors.Is(err, query.ErrInvalidTimeRange) {
		t.Errorf("Plan() error = %v, want INVALID_TIME_RANGE", err)
	}
}

func TestOptimalWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		span      time.Duration
		maxPoints int64
		want      string
	}{
		{time.Minute, 1000, "1s"},
		{time.Hour, 100, "36s"},
		{24 * time.Hour, 1000, "2m"},
		{30 * 24 * time.Hour, 1000, "44m"},
		{365 * 24 * time.Hour, 100, "4d"},
		{time.Hour, 0, "1m"},
	}
	for _, tt := range tests {
		if got := OptimalWindow(tt.span, tt.maxPoints); got != tt.want {
			t.Errorf("OptimalWindow(%v, %d) = %s, want %s", tt.span, tt.maxPoints, got, tt.want)
		}
	}
}

func TestWidenWindow(t *testing.T) {
	t.Parallel()

	req := dayRequest().WithGroupByTime("15m")
	if got := widenWindow(req); got != "30m" {
		t.Errorf("widenWindow(15m) = %s, want 30m", got)
	}
	noRange := query.Request{GroupByTime: "1h"}
	if got := widenWindow(noRange); got != "5m" {
		t.Errorf("widenWindow(no range) = %s, want 5m", got)
	}
}

func TestPlanAt_ResolvesRelativeTimesAgainstAnchor(t *testing.T) {
	t.Parallel()

	req := query.Request{
		Database:    "metrics",
		Measurement: "cpu",
		Fields:      query.Fields{"usage"},
		Where:       &query.Where{Time: &query.TimeRange{From: "now() - 1h", To: "now()"}},
	}
	anchor := fixedNow.Add(-24 * time.Hour)

	p := newTestPlanner(1_000_000)
	atAnchor, err := p.PlanAt(req, false, anchor)
	if err != nil {
		t.Fatalf("PlanAt() error = %v", err)
	}
	atNow, err := p.Plan(req, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !strings.Contains(atAnchor.Query, "2024-05-31T12:00:00.000Z") {
		t.Errorf("Query = %s, want upper bound at the anchor", atAnchor.Query)
	}
	if atAnchor.Query == atNow.Query {
		t.Error("PlanAt() rendered the same text as Plan()")
	}
}

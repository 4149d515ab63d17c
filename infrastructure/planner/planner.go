// Package planner chooses how a structured request is executed so that no
// single query pulls more than a configured number of points.
package planner

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/influxql"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/logging"
)

const (
	// rawBaselinePoints is the raw estimate when no time range is given:
	// one hour at one point per second.
	rawBaselinePoints = 3600

	// aggregatedDefaultPoints is the aggregated estimate when range or
	// window is unknown.
	aggregatedDefaultPoints = 1000

	// safetyMargin scales maxPoints for the final guard.
	safetyMargin = 1.5

	defaultWidenedWindow      = "5m"
	defaultDownsamplingWindow = "1m"
)

var windowParts = regexp.MustCompile(`^(\d+)([smhd])$`)

// Planner picks one of the LAST, AGGREGATED, RAW and DOWNSAMPLED strategies.
type Planner struct {
	maxPoints int64
	maxLimit  int
	now       func() time.Time
}

// Option configures a Planner.
type Option func(*Planner)

// WithClock sets the clock used to resolve now()-relative times.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		p.now = now
	}
}

// New creates a planner bounded by maxPoints and maxLimit.
func New(maxPoints int64, maxLimit int, opts ...Option) *Planner {
	p := &Planner{
		maxPoints: maxPoints,
		maxLimit:  maxLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxPoints returns the nominal point budget.
func (p *Planner) MaxPoints() int64 {
	return p.maxPoints
}

// Plan renders req under the first strategy that fits and runs the final
// point guard on the result. The caller's request is never modified; plans
// that rewrite parameters carry the rewritten copy in Plan.Request.
func (p *Planner) Plan(req query.Request, isLast bool) (query.Plan, error) {
	return p.PlanAt(req, isLast, p.now())
}

// PlanAt is Plan with now()-relative times resolved against now. Paginated
// requests use it to keep later pages on the first page's time anchor.
func (p *Planner) PlanAt(req query.Request, isLast bool, now time.Time) (query.Plan, error) {
	plan, err := p.choose(req, isLast, now)
	if err != nil {
		return query.Plan{}, err
	}
	if err := p.ValidatePlan(plan); err != nil {
		return query.Plan{}, err
	}
	return plan, nil
}

func (p *Planner) choose(req query.Request, isLast bool, now time.Time) (query.Plan, error) {
	if isLast {
		field := query.Wildcard
		if !req.Fields.IsWildcard() {
			field = req.Fields[0]
		}
		text, err := influxql.LastQuery(req.Measurement, field, req.Tags(), req.GroupByTags)
		if err != nil {
			return query.Plan{}, err
		}
		return query.Plan{
			Strategy:        query.StrategyLast,
			EstimatedPoints: 1,
			Query:           text,
			Request:         req,
		}, nil
	}

	if req.Agg != "" && req.GroupByTime != "" {
		return p.planAggregated(req, now)
	}

	raw, err := p.estimateRaw(req, now)
	if err != nil {
		return query.Plan{}, err
	}
	if raw <= p.maxPoints {
		text, err := influxql.FromRequest(req, p.maxLimit, now).Render()
		if err != nil {
			return query.Plan{}, err
		}
		return query.Plan{
			Strategy:        query.StrategyRaw,
			EstimatedPoints: raw,
			Query:           text,
			Request:         req,
		}, nil
	}

	return p.planDownsampled(req, raw, now)
}

func (p *Planner) planAggregated(req query.Request, now time.Time) (query.Plan, error) {
	estimated, err := p.estimateAggregated(req, now)
	if err != nil {
		return query.Plan{}, err
	}

	plan := query.Plan{
		Strategy:        query.StrategyAggregated,
		EstimatedPoints: estimated,
		Window:          req.GroupByTime,
		Request:         req,
	}

	if estimated > p.maxPoints {
		widened := widenWindow(req)
		adjusted := req.WithGroupByTime(widened)
		if plan.EstimatedPoints, err = p.estimateAggregated(adjusted, now); err != nil {
			return query.Plan{}, err
		}
		plan.NeedsDownsampling = true
		plan.Window = widened
		plan.Request = adjusted

		logging.Warn().
			Add(logging.Component("planner")).
			Add(logging.Reason("aggregated_exceeds_max")).
			Add(logging.Str("original_window", req.GroupByTime)).
			Add(logging.Str("window", widened)).
			Add(logging.Points("estimated_points", estimated)).
			Msg("widened aggregation window")
	}

	text, err := influxql.FromRequest(plan.Request, p.maxLimit, now).Render()
	if err != nil {
		return query.Plan{}, err
	}
	plan.Query = text
	return plan, nil
}

func (p *Planner) planDownsampled(req query.Request, raw int64, now time.Time) (query.Plan, error) {
	window := defaultDownsamplingWindow
	if rng, ok, err := resolveRange(req, now); err != nil {
		return query.Plan{}, err
	} else if ok {
		window = OptimalWindow(rng.Span(), p.maxPoints)
	}

	agg := req.Agg
	if agg == "" {
		agg = query.AggMean
	}
	adjusted := req.WithAgg(agg).WithGroupByTime(window)

	estimated, err := p.estimateAggregated(adjusted, now)
	if err != nil {
		return query.Plan{}, err
	}
	text, err := influxql.FromRequest(adjusted, p.maxLimit, now).Render()
	if err != nil {
		return query.Plan{}, err
	}

	logging.Warn().
		Add(logging.Component("planner")).
		Add(logging.Points("estimated_raw_points", raw)).
		Add(logging.Points("max_points", p.maxPoints)).
		Add(logging.Str("window", window)).
		Add(logging.Points("estimated_points", estimated)).
		Msg("downsampling query")

	return query.Plan{
		Strategy:          query.StrategyDownsampled,
		EstimatedPoints:   estimated,
		NeedsDownsampling: true,
		Window:            window,
		Query:             text,
		Request:           adjusted,
	}, nil
}

// ValidatePlan fails with MAX_POINTS_EXCEEDED when the estimate overshoots
// maxPoints by more than the safety margin.
func (p *Planner) ValidatePlan(plan query.Plan) error {
	if float64(plan.EstimatedPoints) > float64(p.maxPoints)*safetyMargin {
		return query.NewMaxPointsExceededError(plan.EstimatedPoints, p.maxPoints)
	}
	return nil
}

// estimateRaw assumes one point per second per field.
func (p *Planner) estimateRaw(req query.Request, now time.Time) (int64, error) {
	rng, ok, err := resolveRange(req, now)
	if err != nil {
		return 0, err
	}
	if !ok {
		return rawBaselinePoints, nil
	}
	seconds := rng.Span().Milliseconds() / 1000
	return seconds * int64(req.Fields.Count()), nil
}

// estimateAggregated is buckets x fields x 10^(grouping tags).
func (p *Planner) estimateAggregated(req query.Request, now time.Time) (int64, error) {
	rng, ok, err := resolveRange(req, now)
	if err != nil {
		return 0, err
	}
	if !ok || req.GroupByTime == "" {
		return aggregatedDefaultPoints, nil
	}
	window, err := influxql.WindowDuration(req.GroupByTime)
	if err != nil || window <= 0 {
		return aggregatedDefaultPoints, nil
	}

	buckets := ceilDiv(rng.Span().Milliseconds(), window.Milliseconds())
	groups := int64(math.Pow10(len(req.GroupByTags)))
	return buckets * int64(req.Fields.Count()) * groups, nil
}

// widenWindow doubles the window in its own unit.
func widenWindow(req query.Request) string {
	if req.TimeRange() == nil {
		return defaultWidenedWindow
	}
	m := windowParts.FindStringSubmatch(req.GroupByTime)
	if m == nil {
		return defaultWidenedWindow
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return defaultWidenedWindow
	}
	return fmt.Sprintf("%d%s", n*2, m[2])
}

// OptimalWindow returns the smallest nice window that keeps span within
// maxPoints buckets: ceil(span/maxPoints) rounded up to whole seconds,
// minutes, hours or days.
func OptimalWindow(span time.Duration, maxPoints int64) string {
	if maxPoints <= 0 {
		return defaultDownsamplingWindow
	}
	ms := ceilDiv(span.Milliseconds(), maxPoints)

	const (
		second = int64(time.Second / time.Millisecond)
		minute = 60 * second
		hour   = 60 * minute
		day    = 24 * hour
	)
	switch {
	case ms < second:
		return "1s"
	case ms < minute:
		return fmt.Sprintf("%ds", ceilDiv(ms, second))
	case ms < hour:
		return fmt.Sprintf("%dm", ceilDiv(ms, minute))
	case ms < day:
		return fmt.Sprintf("%dh", ceilDiv(ms, hour))
	default:
		return fmt.Sprintf("%dd", ceilDiv(ms, day))
	}
}

func resolveRange(req query.Request, now time.Time) (query.ResolvedRange, bool, error) {
	tr := req.TimeRange()
	if tr == nil {
		return query.ResolvedRange{}, false, nil
	}
	from, err := query.ParseTime(tr.From, now)
	if err != nil {
		return query.ResolvedRange{}, false, err
	}
	to, err := query.ParseTime(tr.To, now)
	if err != nil {
		return query.ResolvedRange{}, false, err
	}
	return query.ResolvedRange{From: from, To: to}, true, nil
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	q := a / b
	if a%b != 0 && a > 0 {
		q++
	}
	return q
}

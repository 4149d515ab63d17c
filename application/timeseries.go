package application

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/cache"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/influx"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/influxql"
)

// LastInput selects the most recent value of one field.
type LastInput struct {
	Database    string       `json:"db"`
	Measurement string       `json:"measurement"`
	Field       string       `json:"field"`
	Where       *query.Where `json:"where,omitempty"`
	GroupByTags []string     `json:"group_by_tags,omitempty"`
}

// LastResult holds one row per group.
type LastResult struct {
	Rows []query.LastValue `json:"rows"`
}

// Last returns the latest value of a field, per tag group when grouped.
// Time bounds in Where are ignored; LAST scans the whole series. Results
// are cached like query pages.
func (s *QueryService) Last(ctx context.Context, in LastInput) (LastResult, error) {
	if strings.TrimSpace(in.Field) == "" {
		return LastResult{}, query.NewValidationError("field is required", nil)
	}
	req := query.Request{
		Database:    in.Database,
		Measurement: in.Measurement,
		Fields:      query.Fields{in.Field},
		GroupByTags: in.GroupByTags,
	}
	if in.Where != nil && len(in.Where.Tags) > 0 {
		req.Where = &query.Where{Tags: in.Where.Tags}
	}
	req = req.Clone()
	if err := req.Validate(); err != nil {
		return LastResult{}, err
	}
	if err := checkDatabase(s.cfg, req.Database); err != nil {
		return LastResult{}, err
	}

	serialized, err := json.Marshal(struct {
		query.Request
		Last bool `json:"last"`
	}{req, true})
	if err != nil {
		return LastResult{}, err
	}
	return cached(ctx, s.cfg, "timeseries.last", cache.QueryKey(req.Database, serialized), func(ctx context.Context) (LastResult, error) {
		return s.last(ctx, req)
	})
}

func (s *QueryService) last(ctx context.Context, req query.Request) (LastResult, error) {
	plan, err := s.cfg.Planner.Plan(req, true)
	if err != nil {
		return LastResult{}, err
	}
	if err := influxql.ValidateRenderedFrom(plan.Query, req.Measurement); err != nil {
		return LastResult{}, err
	}

	start := time.Now()
	series, err := execute(ctx, s.cfg, plan.Query, req.Database, query.ExecOptions{})
	s.cfg.Metrics.RecordQuery(ctx, "timeseries.last", string(plan.Strategy), err == nil, time.Since(start), influx.CountPoints(series))
	if err != nil {
		return LastResult{}, err
	}

	out := LastResult{Rows: []query.LastValue{}}
	for _, ser := range series {
		ti := influx.Column(ser.Columns, "time")
		vi := valueColumn(ser.Columns, "last")
		for _, row := range ser.Values {
			lv := query.LastValue{Group: ser.Tags}
			if ti >= 0 && ti < len(row) {
				lv.Time = row[ti]
			}
			if vi >= 0 && vi < len(row) {
				lv.Value = row[vi]
			}
			out.Rows = append(out.Rows, lv)
		}
	}
	return out, nil
}

// valueColumn returns the index of preferred, or of the first non-time
// column.
func valueColumn(columns []string, preferred string) int {
	if i := influx.Column(columns, preferred); i >= 0 {
		return i
	}
	for i, c := range columns {
		if c != "time" {
			return i
		}
	}
	return -1
}

// WindowAggInput asks for several aggregations of one field over fixed
// windows.
type WindowAggInput struct {
	Database    string                        `json:"db"`
	Measurement string                        `json:"measurement"`
	Field       string                        `json:"field"`
	From        string                        `json:"from"`
	To          string                        `json:"to"`
	Window      string                        `json:"window"`
	Aggs        []query.Aggregation           `json:"aggs"`
	Percentile  *float64                      `json:"percentile,omitempty"`
	Tags        map[string]query.TagCondition `json:"tags,omitempty"`
	GroupByTags []string                      `json:"group_by_tags,omitempty"`
	Fill        query.Fill                    `json:"fill,omitempty"`
	TZ          string                        `json:"tz,omitempty"`
	PageSize    int                           `json:"page_size,omitempty"`
}

// WindowAggResult maps each aggregation to its first page.
type WindowAggResult struct {
	Window  string                      `json:"window"`
	Results map[string]query.ResultPage `json:"results"`
}

// WindowAgg runs one planned query per aggregation. Each goes through the
// full pipeline, so each may be widened independently by the planner.
func (s *QueryService) WindowAgg(ctx context.Context, in WindowAggInput) (WindowAggResult, error) {
	switch {
	case strings.TrimSpace(in.Field) == "":
		return WindowAggResult{}, query.NewValidationError("field is required", nil)
	case len(in.Aggs) == 0:
		return WindowAggResult{}, query.NewValidationError("at least one aggregation is required", nil)
	case in.From == "" || in.To == "":
		return WindowAggResult{}, query.NewInvalidTimeRangeError("from and to are required", nil)
	}
	if err := influxql.ValidateWindow(in.Window); err != nil {
		return WindowAggResult{}, err
	}
	if err := checkDatabase(s.cfg, in.Database); err != nil {
		return WindowAggResult{}, err
	}

	base := query.Request{
		Database:    in.Database,
		Measurement: in.Measurement,
		Fields:      query.Fields{in.Field},
		Where: &query.Where{
			Time: &query.TimeRange{From: in.From, To: in.To},
			Tags: in.Tags,
		},
		Percentile:  in.Percentile,
		GroupByTime: in.Window,
		GroupByTags: in.GroupByTags,
		Fill:        in.Fill,
		TZ:          in.TZ,
	}

	out := WindowAggResult{Window: in.Window, Results: make(map[string]query.ResultPage, len(in.Aggs))}
	for _, agg := range in.Aggs {
		page, err := s.Query(ctx, QueryInput{Request: base.WithAgg(agg), PageSize: in.PageSize})
		if err != nil {
			return WindowAggResult{}, err
		}
		out.Results[string(agg)] = page
	}
	return out, nil
}

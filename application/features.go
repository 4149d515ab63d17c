package application

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/features"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/influx"
)

// FeatureSource names a stored series to extract features from.
type FeatureSource struct {
	Database    string                        `json:"db"`
	Measurement string                        `json:"measurement"`
	Field       string                        `json:"field"`
	From        string                        `json:"from"`
	To          string                        `json:"to"`
	Tags        map[string]query.TagCondition `json:"tags,omitempty"`
}

// RollingSpec configures windowed extraction.
type RollingSpec struct {
	Window string `json:"window"`
	Step   string `json:"step,omitempty"`
}

// FeaturesInput carries either an inline series or a source.
type FeaturesInput struct {
	Series   []features.Point `json:"series,omitempty"`
	Source   *FeatureSource   `json:"source,omitempty"`
	Features []string         `json:"features"`
	Rolling  *RollingSpec     `json:"rolling,omitempty"`
}

// FeaturesResult holds global features, or one entry per rolling window.
type FeaturesResult struct {
	Points  int                `json:"points"`
	Global  map[string]float64 `json:"global,omitempty"`
	Rolling []features.Window  `json:"rolling,omitempty"`
	Partial bool               `json:"partial,omitempty"`
}

// FeatureService computes summary features of numeric series.
type FeatureService struct {
	cfg   Config
	query *QueryService
}

// Extract computes the requested features. An empty feature list selects
// all of them.
func (s *FeatureService) Extract(ctx context.Context, in FeaturesInput) (FeaturesResult, error) {
	if (len(in.Series) == 0) == (in.Source == nil) {
		return FeaturesResult{}, query.NewValidationError("exactly one of series or source is required", nil)
	}

	names := features.All
	if len(in.Features) > 0 {
		parsed, err := features.Parse(in.Features)
		if err != nil {
			if errors.Is(err, features.ErrUnknownFeature) {
				return FeaturesResult{}, query.NewValidationError(err.Error(),
					map[string]any{"supported": features.All})
			}
			return FeaturesResult{}, err
		}
		names = parsed
	}

	series := in.Series
	partial := false
	if in.Source != nil {
		var err error
		series, partial, err = s.fetch(ctx, *in.Source)
		if err != nil {
			return FeaturesResult{}, err
		}
	}

	out := FeaturesResult{Points: len(series), Partial: partial}
	if in.Rolling == nil {
		out.Global = features.Compute(series, names)
		return out, nil
	}

	width, err := query.ParseDuration(in.Rolling.Window)
	if err != nil {
		return FeaturesResult{}, err
	}
	var step time.Duration
	if in.Rolling.Step != "" {
		if step, err = query.ParseDuration(in.Rolling.Step); err != nil {
			return FeaturesResult{}, err
		}
	}
	windows, err := features.Rolling(series, width, step, names)
	if err != nil {
		return FeaturesResult{}, query.NewValidationError(err.Error(), nil)
	}
	out.Rolling = windows
	return out, nil
}

// fetch loads a source through the query pipeline in a single page.
func (s *FeatureService) fetch(ctx context.Context, src FeatureSource) ([]features.Point, bool, error) {
	if src.Field == "" {
		return nil, false, query.NewValidationError("source.field is required", nil)
	}
	if src.From == "" || src.To == "" {
		return nil, false, query.NewInvalidTimeRangeError("source.from and source.to are required", nil)
	}

	req := query.Request{
		Database:    src.Database,
		Measurement: src.Measurement,
		Fields:      query.Fields{src.Field},
		Where:       &query.Where{Tags: src.Tags},
		Order:       query.OrderAsc,
	}.WithTimeRange(src.From, src.To)
	page, err := s.query.Query(ctx, QueryInput{Request: req, PageSize: int(s.cfg.Limits.MaxPoints)})
	if err != nil {
		return nil, false, err
	}
	points := rowsToPoints(page.Columns, page.Rows, src.Field)
	return points, page.Stats.Partial, nil
}

// rowsToPoints reads the time column and the field column, which is named
// after the aggregate when the planner downsampled. Rows with a null or
// non-numeric value are skipped.
func rowsToPoints(columns []string, rows [][]any, field string) []features.Point {
	ti := influx.Column(columns, "time")
	vi := influx.Column(columns, field)
	if vi < 0 {
		vi = len(columns) - 1
	}
	if ti < 0 || vi < 0 || vi == ti {
		return []features.Point{}
	}

	out := make([]features.Point, 0, len(rows))
	for _, row := range rows {
		if ti >= len(row) || vi >= len(row) {
			continue
		}
		t, ok := toTime(row[ti])
		if !ok {
			continue
		}
		v, ok := toFloat(row[vi])
		if !ok {
			continue
		}
		out = append(out, features.Point{T: t, V: v})
	}
	return out
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	case int64:
		return time.Unix(0, t).UTC(), true
	case json.Number:
		n, err := t.Int64()
		return time.Unix(0, n).UTC(), err == nil
	}
	return time.Time{}, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

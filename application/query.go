package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/influx-mcp/domain/cache"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/influx"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/influxql"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/logging"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/observability"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/pagination"
)

// QueryInput is a structured request plus paging controls.
type QueryInput struct {
	query.Request
	PageSize int    `json:"page_size,omitempty"`
	Cursor   string `json:"cursor,omitempty"`
	NoCache  bool   `json:"no_cache,omitempty"`
}

// QueryService runs the read-only query pipeline.
type QueryService struct {
	cfg Config
}

// cachedPage is the cache payload of a first page.
type cachedPage struct {
	// Hash identifies the request and page size exactly. Keys are
	// fingerprints only.
	Hash string           `json:"hash"`
	Page query.ResultPage `json:"page"`
}

// shapedResult is one executed request flattened into rows.
type shapedResult struct {
	Anchor    string
	Columns   []string
	Rows      [][]any
	Truncated bool
	Stats     query.Stats
	Plan      query.PlanSummary
}

// Query validates, plans, executes, shapes and paginates in.
//
// Checks run in order: allow-list, time range, cursor. First pages are
// served from the cache when present and stored after a successful
// execution. Stats.Partial is set while more pages remain or when the row
// set was cut at the point limit.
func (s *QueryService) Query(ctx context.Context, in QueryInput) (page query.ResultPage, err error) {
	ctx, span := observability.StartSpan(ctx, "query.pipeline",
		attribute.String("db.name", in.Database),
		attribute.String("db.measurement", in.Measurement),
	)
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	req := s.normalize(in.Request)
	if err := req.Validate(); err != nil {
		return query.ResultPage{}, err
	}
	if err := checkDatabase(s.cfg, req.Database); err != nil {
		return query.ResultPage{}, err
	}
	if max := s.cfg.Limits.MaxChunkSize; max > 0 && req.ChunkSize > max {
		return query.ResultPage{}, query.NewValidationError("chunk_size exceeds maximum",
			map[string]any{"chunk_size": req.ChunkSize, "max_chunk_size": max})
	}

	now := s.cfg.Now()
	if tr := req.TimeRange(); tr != nil {
		if _, err := query.ResolveTimeRange(*tr, s.cfg.Limits.MaxRangeDays, now); err != nil {
			return query.ResultPage{}, err
		}
	}

	// Page offsets index the shaped rows. The request's own OFFSET is
	// rendered into the query.
	offset := 0
	anchor := ""
	if in.Cursor != "" {
		c, err := pagination.Resolve(in.Cursor)
		if err != nil {
			return query.ResultPage{}, err
		}
		if err := c.Verify(req.Database, req.Measurement, req); err != nil {
			return query.ResultPage{}, err
		}
		offset = c.Offset
		if c.TimeAnchor != "" {
			t, err := time.Parse(time.RFC3339Nano, c.TimeAnchor)
			if err != nil {
				return query.ResultPage{}, query.NewInvalidCursorError("invalid cursor time anchor")
			}
			now, anchor = t, c.TimeAnchor
		}
	} else if relative(req) {
		anchor = now.UTC().Format(time.RFC3339Nano)
	}

	size := in.PageSize
	if size <= 0 {
		size = s.cfg.Limits.DefaultPageSize
	}

	// Only first pages are cached. A cursor always re-executes, so a long
	// row set is never held in the cache whole.
	useCache := !in.NoCache && in.Cursor == ""
	var key, hash string
	if useCache {
		if key, hash, err = firstPageKey(req, size); err != nil {
			return query.ResultPage{}, err
		}
		var entry cachedPage
		if cacheGet(ctx, s.cfg.Cache, key, &entry) && entry.Hash == hash {
			s.cfg.Metrics.RecordCacheHit(ctx, "timeseries.query")
			logging.Debug().
				Add(logging.Component("query")).
				Add(logging.Database(req.Database)).
				Add(logging.Measurement(req.Measurement)).
				Add(logging.Cached(true)).
				Msg("served from cache")
			page = entry.Page
			page.Stats.DurationMs = time.Since(start).Milliseconds()
			return page, nil
		}
		s.cfg.Metrics.RecordCacheMiss(ctx, "timeseries.query")
	}

	result, err := s.run(ctx, req, now, anchor)
	if err != nil {
		return query.ResultPage{}, err
	}

	p := pagination.Paginate(result.Rows, size, offset)

	stats := result.Stats
	stats.DurationMs = time.Since(start).Milliseconds()
	stats.Partial = result.Truncated || p.HasMore
	plan := result.Plan
	page = query.ResultPage{
		Columns: result.Columns,
		Rows:    p.Items,
		Stats:   stats,
		Plan:    &plan,
	}
	if page.Columns == nil {
		page.Columns = []string{}
	}
	if page.Rows == nil {
		page.Rows = [][]any{}
	}
	if p.HasMore {
		token, err := pagination.Issue(req.Database, req.Measurement, p.NextOffset, req, result.Anchor)
		if err != nil {
			return query.ResultPage{}, err
		}
		page.NextCursor = &token
	}
	if useCache {
		cacheSet(ctx, s.cfg.Cache, key, cachedPage{Hash: hash, Page: page}, s.cfg.CacheTTL)
	}
	return page, nil
}

// normalize applies server defaults that are part of the request identity.
func (s *QueryService) normalize(req query.Request) query.Request {
	req = req.Clone()
	if req.TZ == "" && s.cfg.Limits.DefaultTZ != "" && s.cfg.Limits.DefaultTZ != "UTC" {
		req.TZ = s.cfg.Limits.DefaultTZ
	}
	return req
}

// firstPageKey returns the cache key of the first page of req at the given
// page size, and the exact hash stored alongside it.
func firstPageKey(req query.Request, size int) (key, hash string, err error) {
	hash, err = pagination.Hash(req)
	if err != nil {
		return "", "", err
	}
	serialized, err := json.Marshal(struct {
		query.Request
		PageSize int `json:"page_size"`
	}{req, size})
	if err != nil {
		return "", "", err
	}
	return cache.QueryKey(req.Database, serialized), fmt.Sprintf("%s:%d", hash, size), nil
}

// run plans, validates and executes req and shapes the series into rows.
func (s *QueryService) run(ctx context.Context, req query.Request, now time.Time, anchor string) (shapedResult, error) {
	plan, err := s.cfg.Planner.PlanAt(req, false, now)
	if err != nil {
		return shapedResult{}, err
	}
	if err := influxql.ValidateRenderedFrom(plan.Query, req.Measurement); err != nil {
		return shapedResult{}, err
	}

	start := time.Now()
	series, err := execute(ctx, s.cfg, plan.Query, req.Database, query.ExecOptions{ChunkSize: req.ChunkSize})
	elapsed := time.Since(start)
	points := influx.CountPoints(series)
	s.cfg.Metrics.RecordQuery(ctx, "timeseries.query", string(plan.Strategy), err == nil, elapsed, points)
	if err != nil {
		return shapedResult{}, err
	}
	if plan.NeedsDownsampling {
		s.cfg.Metrics.RecordDownsampled(ctx, string(plan.Strategy))
	}

	columns, rows := influx.SeriesToRows(series)
	truncated := false
	if max := s.cfg.Limits.MaxPoints; max > 0 && int64(len(rows)) > max {
		rows = rows[:max]
		truncated = true
	}

	logging.Info().
		Add(logging.Component("query")).
		Add(logging.Database(req.Database)).
		Add(logging.Measurement(req.Measurement)).
		Add(logging.Strategy(plan.Strategy)).
		Add(logging.Points("estimated_points", plan.EstimatedPoints)).
		Add(logging.Points("points", int64(points))).
		Add(logging.Duration(elapsed)).
		Msg("query executed")

	return shapedResult{
		Anchor:    anchor,
		Columns:   columns,
		Rows:      rows,
		Truncated: truncated,
		Stats: query.Stats{
			ScannedPoints: points,
			Window:        window(plan),
		},
		Plan: *plan.Summary(),
	}, nil
}

func window(plan query.Plan) *string {
	w := plan.Window
	if w == "" {
		w = plan.Request.GroupByTime
	}
	if w == "" {
		return nil
	}
	return &w
}

// relative reports whether either end of the time range depends on now().
func relative(req query.Request) bool {
	tr := req.TimeRange()
	if tr == nil {
		return false
	}
	return strings.Contains(tr.From, "now()") || strings.Contains(tr.To, "now()")
}

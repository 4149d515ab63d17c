package query

import (
	"context"
	"time"
)

// Series is one result series as returned by the database.
type Series struct {
	Name    string            `json:"name"`
	Tags    map[string]string `json:"tags,omitempty"`
	Columns []string          `json:"columns"`
	Values  [][]any           `json:"values"`
}

// ExecOptions tunes a single execution.
type ExecOptions struct {
	// ChunkSize enables chunked responses when positive.
	ChunkSize int
	// Epoch selects a numeric timestamp precision (ns, u, ms, s, m, h).
	// Empty means RFC3339 strings.
	Epoch string
}

// PingResult is the outcome of a connectivity probe.
type PingResult struct {
	OK      bool
	Version string
	RTT     time.Duration
}

// Executor runs rendered, validated InfluxQL against a database. It is the
// boundary to the HTTP collaborator; implementations own retries.
type Executor interface {
	Execute(ctx context.Context, text, database string, opts ExecOptions) ([]Series, error)
	Ping(ctx context.Context) (PingResult, error)
}

// Stats describes how a page was produced.
type Stats struct {
	ScannedPoints int     `json:"scanned_points"`
	Window        *string `json:"window"`
	DurationMs    int64   `json:"duration_ms"`
	Partial       bool    `json:"partial"`
}

// ResultPage is one page of a shaped result.
type ResultPage struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	Stats      Stats    `json:"stats"`
	NextCursor *string  `json:"next_cursor"`
	// Plan is attached for callers that want to see adjustments.
	Plan *PlanSummary `json:"plan,omitempty"`
}

// PlanSummary is the caller-visible part of a plan.
type PlanSummary struct {
	Strategy          Strategy `json:"strategy"`
	EstimatedPoints   int64    `json:"estimated_points"`
	NeedsDownsampling bool     `json:"needs_downsampling"`
}

// Summary returns the caller-visible part of the plan.
func (p Plan) Summary() *PlanSummary {
	return &PlanSummary{
		Strategy:          p.Strategy,
		EstimatedPoints:   p.EstimatedPoints,
		NeedsDownsampling: p.NeedsDownsampling,
	}
}

// LastValue is one row of a last-value lookup.
type LastValue struct {
	Group map[string]string `json:"group,omitempty"`
	Time  any               `json:"time"`
	Value any               `json:"value"`
}

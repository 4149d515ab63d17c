// Package query holds the domain model of the read-only query pipeline:
// requests, plans, result pages, the error taxonomy and the collaborator
// boundary used to execute rendered InfluxQL.
package query

import (
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Aggregation is an InfluxQL aggregate function name in lower case.
type Aggregation string

// Supported aggregations.
const (
	AggMean       Aggregation = "mean"
	AggMedian     Aggregation = "median"
	AggMin        Aggregation = "min"
	AggMax        Aggregation = "max"
	AggSum        Aggregation = "sum"
	AggCount      Aggregation = "count"
	AggSpread     Aggregation = "spread"
	AggStddev     Aggregation = "stddev"
	AggPercentile Aggregation = "percentile"
	AggFirst      Aggregation = "first"
	AggLast       Aggregation = "last"
)

// Valid reports whether a is one of the supported aggregations.
func (a Aggregation) Valid() bool {
	switch a {
	case AggMean, AggMedian, AggMin, AggMax, AggSum, AggCount, AggSpread,
		AggStddev, AggPercentile, AggFirst, AggLast:
		return true
	}
	return false
}

// Order is the time sort direction.
type Order string

// Sort directions.
const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Wildcard selects every field.
const Wildcard = "*"

// WildcardFieldCount is the field multiplier the estimators assume for "*".
const WildcardFieldCount = 5

// Fields is a field selector: an explicit list, or the wildcard.
// It unmarshals from either "*" or a JSON array of names.
type Fields []string

// AllFields returns the wildcard selector.
func AllFields() Fields {
	return Fields{Wildcard}
}

// IsWildcard reports whether the selector means all fields.
func (f Fields) IsWildcard() bool {
	return len(f) == 0 || (len(f) == 1 && f[0] == Wildcard)
}

// Count is the number of fields used by point estimation.
func (f Fields) Count() int {
	if f.IsWildcard() {
		return WildcardFieldCount
	}
	return len(f)
}

// MarshalJSON renders the wildcard as "*".
func (f Fields) MarshalJSON() ([]byte, error) {
	if f.IsWildcard() {
		return json.Marshal(Wildcard)
	}
	return json.Marshal([]string(f))
}

// UnmarshalJSON accepts "*" or an array of field names.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != Wildcard {
			return errors.New(`fields must be "*" or an array of names`)
		}
		*f = AllFields()
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.New(`fields must be "*" or an array of names`)
	}
	*f = list
	return nil
}

// Fill is an InfluxQL fill policy: none, null, previous, linear, or a number.
type Fill string

// Fill policies.
const (
	FillNone     Fill = "none"
	FillNull     Fill = "null"
	FillPrevious Fill = "previous"
	FillLinear   Fill = "linear"
)

// Valid reports whether the fill is a known policy or a numeric constant.
func (f Fill) Valid() bool {
	switch f {
	case "", FillNone, FillNull, FillPrevious, FillLinear:
		return true
	}
	_, err := strconv.ParseFloat(string(f), 64)
	return err == nil
}

// MarshalJSON renders numeric fills as JSON numbers.
func (f Fill) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseFloat(string(f), 64); err == nil {
		return []byte(f), nil
	}
	return json.Marshal(string(f))
}

// UnmarshalJSON accepts a policy name or a number.
func (f *Fill) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = Fill(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("fill must be a policy name or a number")
	}
	*f = Fill(n.String())
	return nil
}

// Tag filter operators.
const (
	OpEqual    = "="
	OpNotEqual = "!="
	OpRegex    = "=~"
	OpNotRegex = "!~"
)

// TagCondition is a single tag predicate. A bare JSON string means equality.
type TagCondition struct {
	Op    string `json:"op,omitempty"`
	Value string `json:"value"`
}

// IsRegex reports whether the condition carries a regex literal.
func (c TagCondition) IsRegex() bool {
	return c.Op == OpRegex || c.Op == OpNotRegex
}

// Operator returns the effective operator, defaulting to equality.
func (c TagCondition) Operator() string {
	if c.Op == "" {
		return OpEqual
	}
	return c.Op
}

// UnmarshalJSON accepts "value" or {"op": "...", "value": "..."}.
func (c *TagCondition) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = TagCondition{Value: s}
		return nil
	}
	type plain TagCondition
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.Op {
	case "", OpEqual, OpNotEqual, OpRegex, OpNotRegex:
	default:
		return errors.New("tag operator must be one of =, !=, =~, !~")
	}
	*c = TagCondition(p)
	return nil
}

// MarshalJSON renders plain equality as a bare string.
func (c TagCondition) MarshalJSON() ([]byte, error) {
	if c.Op == "" {
		return json.Marshal(c.Value)
	}
	type plain TagCondition
	return json.Marshal(plain(c))
}

// TimeRange bounds a query: From inclusive, To exclusive. Values are RFC3339
// timestamps or now()-relative expressions.
type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Where holds the optional predicates of a request.
type Where struct {
	Time *TimeRange              `json:"time,omitempty"`
	Tags map[string]TagCondition `json:"tags,omitempty"`
}

// Request is a structured, read-only time-series query.
//
// Request values are treated as immutable. Code that needs different
// parameters derives a copy with the With methods, which never share slices
// or maps with the receiver.
type Request struct {
	Database    string      `json:"db"`
	Measurement string      `json:"measurement"`
	Fields      Fields      `json:"fields"`
	Where       *Where      `json:"where,omitempty"`
	Agg         Aggregation `json:"agg,omitempty"`
	Percentile  *float64    `json:"percentile,omitempty"`
	GroupByTime string      `json:"group_by_time,omitempty"`
	GroupByTags []string    `json:"group_by_tags,omitempty"`
	Fill        Fill        `json:"fill,omitempty"`
	Order       Order       `json:"order,omitempty"`
	Limit       int         `json:"limit,omitempty"`
	Offset      int         `json:"offset,omitempty"`
	ChunkSize   int         `json:"chunk_size,omitempty"`
	TZ          string      `json:"tz,omitempty"`
}

// TimeRange returns the request's time range, or nil.
func (r Request) TimeRange() *TimeRange {
	if r.Where == nil {
		return nil
	}
	return r.Where.Time
}

// Tags returns the request's tag predicates, or nil.
func (r Request) Tags() map[string]TagCondition {
	if r.Where == nil {
		return nil
	}
	return r.Where.Tags
}

// Clone returns a deep copy of the request.
func (r Request) Clone() Request {
	c := r
	c.Fields = slices.Clone(r.Fields)
	c.GroupByTags = slices.Clone(r.GroupByTags)
	if r.Percentile != nil {
		p := *r.Percentile
		c.Percentile = &p
	}
	if r.Where != nil {
		w := Where{Tags: maps.Clone(r.Where.Tags)}
		if r.Where.Time != nil {
			t := *r.Where.Time
			w.Time = &t
		}
		c.Where = &w
	}
	return c
}

// WithGroupByTime returns a copy using the given bucket width.
func (r Request) WithGroupByTime(window string) Request {
	c := r.Clone()
	c.GroupByTime = window
	return c
}

// WithAgg returns a copy using the given aggregation.
func (r Request) WithAgg(agg Aggregation) Request {
	c := r.Clone()
	c.Agg = agg
	return c
}

// WithTimeRange returns a copy bounded by the given range.
func (r Request) WithTimeRange(from, to string) Request {
	c := r.Clone()
	if c.Where == nil {
		c.Where = &Where{}
	}
	c.Where.Time = &TimeRange{From: from, To: to}
	return c
}

// Validate checks the request shape. It does not check identifiers for
// injection; the builder does that while rendering.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.Database) == "":
		return NewValidationError("db is required", nil)
	case strings.TrimSpace(r.Measurement) == "":
		return NewValidationError("measurement is required", nil)
	case r.Agg != "" && !r.Agg.Valid():
		return NewValidationError("unsupported aggregation", map[string]any{"agg": string(r.Agg)})
	case r.Agg == AggPercentile && r.Percentile == nil:
		return NewValidationError("percentile aggregation requires a percentile value", nil)
	case r.Percentile != nil && (*r.Percentile < 0 || *r.Percentile > 100):
		return NewValidationError("percentile must be between 0 and 100", map[string]any{"percentile": *r.Percentile})
	case !r.Fill.Valid():
		return NewValidationError("unsupported fill policy", map[string]any{"fill": string(r.Fill)})
	case r.Order != "" && r.Order != OrderAsc && r.Order != OrderDesc:
		return NewValidationError("order must be asc or desc", map[string]any{"order": string(r.Order)})
	case r.Limit < 0 || r.Offset < 0 || r.ChunkSize < 0:
		return NewValidationError("limit, offset and chunk_size must not be negative", nil)
	}
	if tr := r.TimeRange(); tr != nil && (tr.From == "" || tr.To == "") {
		return NewInvalidTimeRangeError("time range requires both from and to", nil)
	}
	return nil
}

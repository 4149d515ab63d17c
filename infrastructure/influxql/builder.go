package influxql

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	iql "github.com/influxdata/influxql"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

// Render errors.
var (
	ErrSelectRequired = errors.New("SELECT clause is required")
	ErrFromRequired   = errors.New("FROM clause is required")
)

var timezonePattern = regexp.MustCompile(`^[A-Za-z0-9_+\-/]+$`)

// timeLayout is the textual form of both time-range bounds.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Builder accumulates clauses of a SELECT statement. It is a value: each
// method returns a new Builder and leaves the receiver untouched, so no
// clause state can leak between requests. The first error sticks and is
// returned by Render.
type Builder struct {
	selectExpr string
	from       string
	where      []string
	groupBy    []string
	fill       string
	orderBy    string
	limit      string
	offset     string
	tz         string
	maxLimit   int
	err        error
}

// NewBuilder returns an empty builder. maxLimit bounds LIMIT; zero means no
// bound.
func NewBuilder(maxLimit int) Builder {
	return Builder{maxLimit: maxLimit}
}

func (b Builder) fail(err error) Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Select sets the projection. A wildcard with an aggregation renders
// AGG(*); explicit fields are quoted and wrapped in AGG(field), or
// PERCENTILE(field, p) for percentiles.
func (b Builder) Select(fields query.Fields, agg query.Aggregation, percentile *float64) Builder {
	if b.err != nil {
		return b
	}
	fn := strings.ToUpper(string(agg))

	if fields.IsWildcard() {
		if agg != "" {
			b.selectExpr = fn + "(*)"
		} else {
			b.selectExpr = "*"
		}
		return b
	}

	exprs := make([]string, 0, len(fields))
	for _, f := range fields {
		q, err := QuoteField(f)
		if err != nil {
			return b.fail(err)
		}
		switch {
		case agg == query.AggPercentile && percentile != nil:
			exprs = append(exprs, fmt.Sprintf("PERCENTILE(%s, %s)", q, formatFloat(*percentile)))
		case agg != "":
			exprs = append(exprs, fmt.Sprintf("%s(%s)", fn, q))
		default:
			exprs = append(exprs, q)
		}
	}
	b.selectExpr = strings.Join(exprs, ", ")
	return b
}

// selectRaw sets a pre-rendered projection.
func (b Builder) selectRaw(expr string) Builder {
	b.selectExpr = expr
	return b
}

// From sets the measurement.
func (b Builder) From(measurement string) Builder {
	if b.err != nil {
		return b
	}
	q, err := QuoteIdentifier(measurement)
	if err != nil {
		return b.fail(err)
	}
	b.from = q
	return b
}

func (b Builder) addWhere(predicates ...string) Builder {
	b.where = append(slices.Clip(b.where), predicates...)
	return b
}

// TimeRange adds time >= from AND time < to.
func (b Builder) TimeRange(from, to time.Time) Builder {
	if b.err != nil {
		return b
	}
	return b.addWhere(
		fmt.Sprintf("time >= '%s'", from.UTC().Format(timeLayout)),
		fmt.Sprintf("time < '%s'", to.UTC().Format(timeLayout)),
	)
}

// Tag adds a tag predicate. Regex operators require the value to be exactly
// one /regex/ literal and render its canonical form; equality operators
// quote it.
func (b Builder) Tag(name string, cond query.TagCondition) Builder {
	if b.err != nil {
		return b
	}
	q, err := QuoteIdentifier(name)
	if err != nil {
		return b.fail(err)
	}
	value := QuoteTagValue(cond.Value)
	if cond.IsRegex() {
		if value, err = RegexLiteral(cond.Value); err != nil {
			return b.fail(err)
		}
	}
	return b.addWhere(fmt.Sprintf("%s %s %s", q, cond.Operator(), value))
}

// RegexLiteral parses v as a single InfluxQL regex literal such as /^web/
// and returns it re-rendered. Anything after the closing slash, a second
// statement included, is rejected.
func RegexLiteral(v string) (string, error) {
	invalid := query.NewValidationError("tag regex must be a single /regex/ literal",
		map[string]any{"value": v})

	q, err := iql.ParseQuery("SELECT v FROM m WHERE t =~ " + v)
	if err != nil || len(q.Statements) != 1 {
		return "", invalid
	}
	stmt, ok := q.Statements[0].(*iql.SelectStatement)
	if !ok {
		return "", invalid
	}
	cond, ok := stmt.Condition.(*iql.BinaryExpr)
	if !ok || cond.Op != iql.EQREGEX {
		return "", invalid
	}
	if ref, ok := cond.LHS.(*iql.VarRef); !ok || ref.Val != "t" {
		return "", invalid
	}
	lit, ok := cond.RHS.(*iql.RegexLiteral)
	if !ok {
		return "", invalid
	}
	// Trailing clauses such as LIMIT or SLIMIT would survive the checks
	// above; the statement must re-render to the bare predicate.
	if stmt.String() != "SELECT v FROM m WHERE t =~ "+lit.String() {
		return "", invalid
	}
	return lit.String(), nil
}

// Tags adds one predicate per tag in name order.
func (b Builder) Tags(tags map[string]query.TagCondition) Builder {
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b = b.Tag(name, tags[name])
	}
	return b
}

// GroupByTime adds time(window) to GROUP BY. The window must match
// N[smhd]. The time zone goes in the trailing tz() clause, since the second
// argument of time() is an offset in InfluxQL.
func (b Builder) GroupByTime(window string) Builder {
	if b.err != nil {
		return b
	}
	if err := ValidateWindow(window); err != nil {
		return b.fail(err)
	}
	b.groupBy = append(slices.Clip(b.groupBy), fmt.Sprintf("time(%s)", window))
	return b
}

// GroupByTags appends each tag to GROUP BY.
func (b Builder) GroupByTags(tags []string) Builder {
	if b.err != nil {
		return b
	}
	terms := make([]string, 0, len(tags))
	for _, t := range tags {
		q, err := QuoteIdentifier(t)
		if err != nil {
			return b.fail(err)
		}
		terms = append(terms, q)
	}
	b.groupBy = append(slices.Clip(b.groupBy), terms...)
	return b
}

// Fill sets the fill policy.
func (b Builder) Fill(f query.Fill) Builder {
	if b.err != nil || f == "" {
		return b
	}
	if !f.Valid() {
		return b.fail(query.NewValidationError("unsupported fill policy", map[string]any{"fill": string(f)}))
	}
	b.fill = fmt.Sprintf("fill(%s)", f)
	return b
}

// OrderBy sets the time sort direction.
func (b Builder) OrderBy(o query.Order) Builder {
	if b.err != nil || o == "" {
		return b
	}
	switch o {
	case query.OrderAsc, query.OrderDesc:
		b.orderBy = "ORDER BY time " + strings.ToUpper(string(o))
		return b
	default:
		return b.fail(query.NewValidationError("order must be asc or desc", map[string]any{"order": string(o)}))
	}
}

// Limit sets LIMIT after checking it against the builder's maximum.
func (b Builder) Limit(n int) Builder {
	if b.err != nil {
		return b
	}
	if err := ValidateLimit(n, b.maxLimit); err != nil {
		return b.fail(err)
	}
	b.limit = "LIMIT " + strconv.Itoa(n)
	return b
}

// Offset sets OFFSET; zero and negative values are ignored.
func (b Builder) Offset(n int) Builder {
	if b.err != nil || n <= 0 {
		return b
	}
	b.offset = "OFFSET " + strconv.Itoa(n)
	return b
}

// TZ sets the tz() clause.
func (b Builder) TZ(zone string) Builder {
	if b.err != nil || zone == "" {
		return b
	}
	if !timezonePattern.MatchString(zone) {
		return b.fail(query.NewValidationError("invalid timezone", map[string]any{"tz": zone}))
	}
	b.tz = fmt.Sprintf("tz('%s')", zone)
	return b
}

// Render joins the clauses in their fixed order, skipping empty ones.
func (b Builder) Render() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	if b.selectExpr == "" {
		return "", &query.Error{Code: query.CodeValidation, Message: ErrSelectRequired.Error(), Err: ErrSelectRequired}
	}
	if b.from == "" {
		return "", &query.Error{Code: query.CodeValidation, Message: ErrFromRequired.Error(), Err: ErrFromRequired}
	}

	parts := []string{"SELECT " + b.selectExpr, "FROM " + b.from}
	if len(b.where) > 0 {
		parts = append(parts, "WHERE "+strings.Join(b.where, " AND "))
	}
	if len(b.groupBy) > 0 {
		parts = append(parts, "GROUP BY "+strings.Join(b.groupBy, ", "))
	}
	for _, clause := range []string{b.fill, b.orderBy, b.limit, b.offset, b.tz} {
		if clause != "" {
			parts = append(parts, clause)
		}
	}
	return strings.Join(parts, " "), nil
}

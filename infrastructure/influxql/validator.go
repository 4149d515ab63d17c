// Package influxql guards and renders InfluxQL: read-only validation,
// identifier quoting, and the immutable query builder used by the planner.
package influxql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	iql "github.com/influxdata/influxql"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

var forbiddenKeywords = []string{
	"INTO", "DROP", "DELETE", "ALTER", "CREATE", "GRANT", "REVOKE", "INSERT",
}

var forbiddenPatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(forbiddenKeywords))
	for _, kw := range forbiddenKeywords {
		m[kw] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}
	return m
}()

// AllowedFunctions is the set of InfluxQL functions a query may call.
var AllowedFunctions = map[string]bool{
	"MEAN": true, "MEDIAN": true, "MIN": true, "MAX": true, "SUM": true,
	"COUNT": true, "SPREAD": true, "STDDEV": true, "PERCENTILE": true,
	"FIRST": true, "LAST": true, "DERIVATIVE": true,
	"NON_NEGATIVE_DERIVATIVE": true, "INTEGRAL": true, "MOVING_AVERAGE": true,
	"CUMULATIVE_SUM": true, "DIFFERENCE": true, "NON_NEGATIVE_DIFFERENCE": true,
	"ELAPSED": true, "DISTINCT": true, "MODE": true, "SAMPLE": true,
	"TOP": true, "BOTTOM": true,
}

// clauseCalls are IDENT( tokens that belong to the grammar, not to the
// function namespace: clause keywords plus the time(), fill() and tz()
// constructs the builder emits.
var clauseCalls = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "ORDER": true,
	"LIMIT": true, "TIME": true, "FILL": true, "TZ": true, "AND": true, "OR": true,
}

var (
	functionCall  = regexp.MustCompile(`\b([A-Z_]+)\s*\(`)
	windowPattern = regexp.MustCompile(`^\d+[smhd]$`)
)

// Validate rejects anything that is not a pure read: text must start with
// SELECT or SHOW, contain no write or DDL keyword, and call only allowed
// functions.
func Validate(text string) error {
	if err := ValidateReadOnly(text); err != nil {
		return err
	}
	return ValidateFunctions(text)
}

// ValidateReadOnly checks the leading verb and the forbidden keywords.
func ValidateReadOnly(text string) error {
	normalized := strings.ToUpper(strings.TrimSpace(text))

	if !strings.HasPrefix(normalized, "SELECT") && !strings.HasPrefix(normalized, "SHOW") {
		return query.NewValidationError("only SELECT and SHOW queries are allowed",
			map[string]any{"query": text})
	}

	for _, kw := range forbiddenKeywords {
		if forbiddenPatterns[kw].MatchString(normalized) {
			return query.NewValidationError(fmt.Sprintf("forbidden keyword detected: %s", kw),
				map[string]any{"keyword": kw})
		}
	}

	if strings.HasPrefix(normalized, "SELECT") && strings.Contains(normalized, " INTO ") {
		return query.NewValidationError("SELECT INTO is not allowed", nil)
	}
	return nil
}

// ValidateFunctions rejects calls to functions outside AllowedFunctions.
func ValidateFunctions(text string) error {
	normalized := strings.ToUpper(text)
	for _, m := range functionCall.FindAllStringSubmatch(normalized, -1) {
		name := m[1]
		if clauseCalls[name] {
			continue
		}
		if !AllowedFunctions[name] {
			return query.NewValidationError(fmt.Sprintf("function not allowed: %s", name),
				map[string]any{"function": name})
		}
	}
	return nil
}

// ValidateRendered validates builder output. String, identifier and regex
// literals are blanked for the keyword scan so that a tag value such as
// 'drop-zone' is not mistaken for a keyword. The text must then parse as
// exactly one read statement; a SELECT may only read plain measurements of
// the connection's database, with no database or retention policy prefix
// and no subquery.
func ValidateRendered(text string) error {
	_, err := renderedStatement(text)
	return err
}

// ValidateRenderedFrom is ValidateRendered for a SELECT that must read
// measurement and nothing else.
func ValidateRenderedFrom(text, measurement string) error {
	stmt, err := renderedStatement(text)
	if err != nil {
		return err
	}
	sel, ok := stmt.(*iql.SelectStatement)
	if !ok {
		return query.NewValidationError("expected a SELECT statement", map[string]any{"query": text})
	}
	for _, src := range sel.Sources {
		if m, ok := src.(*iql.Measurement); !ok || m.Name != measurement {
			return query.NewValidationError("query reads outside the requested measurement",
				map[string]any{"measurement": measurement, "source": src.String()})
		}
	}
	return nil
}

func renderedStatement(text string) (iql.Statement, error) {
	if err := Validate(maskLiterals(text)); err != nil {
		return nil, err
	}

	q, err := iql.ParseQuery(text)
	if err != nil {
		return nil, query.NewValidationError("malformed query: "+err.Error(), map[string]any{"query": text})
	}
	if len(q.Statements) != 1 {
		return nil, query.NewValidationError("exactly one statement is allowed",
			map[string]any{"statements": len(q.Statements)})
	}

	stmt := q.Statements[0]
	switch s := stmt.(type) {
	case *iql.SelectStatement:
		if s.Target != nil {
			return nil, query.NewValidationError("SELECT INTO is not allowed", nil)
		}
		if name := disallowedCall(s); name != "" {
			return nil, query.NewValidationError(fmt.Sprintf("function not allowed: %s", name),
				map[string]any{"function": name})
		}
		for _, src := range s.Sources {
			m, ok := src.(*iql.Measurement)
			if !ok || m.Database != "" || m.RetentionPolicy != "" || m.Regex != nil {
				return nil, query.NewValidationError("only plain measurements of the selected database may be read",
					map[string]any{"source": src.String()})
			}
		}
	default:
		if kind := statementKind(stmt); !strings.HasPrefix(kind, "Show") {
			return nil, query.NewValidationError(fmt.Sprintf("statement not allowed: %s", kind),
				map[string]any{"statement": kind})
		}
	}
	return stmt, nil
}

// ValidateWindow checks a GROUP BY time() bucket width.
func ValidateWindow(window string) error {
	if !windowPattern.MatchString(window) {
		return query.NewValidationError(fmt.Sprintf("invalid window format: %s (expected e.g. 1m, 5m, 1h)", window),
			map[string]any{"window": window})
	}
	return nil
}

// WindowDuration validates window and converts it to a duration.
func WindowDuration(window string) (time.Duration, error) {
	if err := ValidateWindow(window); err != nil {
		return 0, err
	}
	d, err := iql.ParseDuration(window)
	if err != nil {
		return 0, query.NewValidationError(err.Error(), map[string]any{"window": window})
	}
	return d, nil
}

// ValidateLimit checks 1 <= limit <= maxLimit.
func ValidateLimit(limit, maxLimit int) error {
	if limit < 1 {
		return query.NewValidationError("limit must be at least 1", map[string]any{"limit": limit})
	}
	if maxLimit > 0 && limit > maxLimit {
		return query.NewValidationError(fmt.Sprintf("limit exceeds maximum of %d", maxLimit),
			map[string]any{"limit": limit, "max_limit": maxLimit})
	}
	return nil
}

// Statement describes one statement accepted by ParseReadOnly.
type Statement struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// ParseReadOnly runs Validate and then parses text with the InfluxQL parser,
// rejecting malformed statements, SELECT ... INTO targets and disallowed
// calls anywhere in the tree, subqueries included.
func ParseReadOnly(text string) ([]Statement, error) {
	if err := Validate(text); err != nil {
		return nil, err
	}

	q, err := iql.ParseQuery(text)
	if err != nil {
		return nil, query.NewValidationError("malformed query: "+err.Error(), map[string]any{"query": text})
	}

	stmts := make([]Statement, 0, len(q.Statements))
	for _, stmt := range q.Statements {
		kind := statementKind(stmt)
		switch s := stmt.(type) {
		case *iql.SelectStatement:
			if s.Target != nil {
				return nil, query.NewValidationError("SELECT INTO is not allowed", nil)
			}
			if name := disallowedCall(s); name != "" {
				return nil, query.NewValidationError(fmt.Sprintf("function not allowed: %s", name),
					map[string]any{"function": name})
			}
		default:
			if !strings.HasPrefix(kind, "Show") {
				return nil, query.NewValidationError(fmt.Sprintf("statement not allowed: %s", kind),
					map[string]any{"statement": kind})
			}
		}
		stmts = append(stmts, Statement{Kind: kind, Text: stmt.String()})
	}
	return stmts, nil
}

func statementKind(stmt iql.Statement) string {
	name := fmt.Sprintf("%T", stmt)
	name = name[strings.LastIndex(name, ".")+1:]
	return strings.TrimSuffix(name, "Statement")
}

func disallowedCall(stmt *iql.SelectStatement) string {
	var bad string
	iql.WalkFunc(stmt, func(n iql.Node) {
		call, ok := n.(*iql.Call)
		if !ok || bad != "" {
			return
		}
		name := strings.ToUpper(call.Name)
		if name != "TIME" && !AllowedFunctions[name] {
			bad = name
		}
	})
	return bad
}

// maskLiterals blanks the contents of '...', "..." and /regex/ literals.
func maskLiterals(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch {
			case c == '\\' && i+1 < len(text):
				i++
			case c == quote:
				b.WriteByte(c)
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '/' && regexContext(text[:i]):
			quote = c
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// regexContext reports whether the text before a slash ends with =~ or !~.
func regexContext(prefix string) bool {
	p := strings.TrimRight(prefix, " \t")
	return strings.HasSuffix(p, "=~") || strings.HasSuffix(p, "!~")
}

// formatFloat renders a number without trailing zeros.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

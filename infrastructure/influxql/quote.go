package influxql

import (
	"regexp"
	"strings"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

var (
	unsafeIdentifier = regexp.MustCompile(`[;'"\\\x00-\x1f]`)
	plainIdentifier  = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// QuoteIdentifier makes a measurement, field or tag name safe to embed.
// Names with control characters, quotes, semicolons or backslashes are
// rejected outright. Names made only of [A-Za-z0-9_.-] are returned as-is;
// anything else is double-quoted with inner quotes escaped.
func QuoteIdentifier(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", query.NewValidationError("identifier must not be empty", nil)
	}
	if unsafeIdentifier.MatchString(name) {
		return "", query.NewValidationError("identifier contains forbidden characters",
			map[string]any{"identifier": name})
	}
	if plainIdentifier.MatchString(name) {
		return name, nil
	}
	return `"` + strings.ReplaceAll(name, `"`, `\"`) + `"`, nil
}

// QuoteField is QuoteIdentifier with the wildcard allowed.
func QuoteField(name string) (string, error) {
	if name == query.Wildcard {
		return name, nil
	}
	return QuoteIdentifier(name)
}

// UnquoteIdentifier reverses QuoteIdentifier.
func UnquoteIdentifier(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `\"`, `"`)
	}
	return s
}

// QuoteTagValue single-quotes a tag value, escaping inner single quotes.
// Values are never rejected.
func QuoteTagValue(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `\'`) + "'"
}

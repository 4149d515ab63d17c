package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	domainconfig "github.com/felixgeelhaar/influx-mcp/domain/config"
)

// envRef matches ${NAME}, ${NAME:-default}, ${NAME:?message} and $NAME.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// envExpander substitutes environment references in configuration text so
// that secrets such as the InfluxDB password can stay out of the file.
type envExpander struct {
	lookup LookupFunc
	// strict reports plain references to unset variables.
	strict bool
}

// Expand replaces every reference in input. ${NAME:-default} falls back
// when NAME is unset or empty, ${NAME:?message} fails in that case.
func (e *envExpander) Expand(input string) (string, error) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var missing []string
	out := envRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name, op, arg := m[1], m[2], m[3]
		if name == "" {
			name = m[4]
		}

		value, ok := lookup(name)
		switch op {
		case "-":
			if value == "" {
				return arg
			}
		case "?":
			if value == "" {
				missing = append(missing, name+": "+arg)
				return ref
			}
		default:
			if !ok && e.strict {
				missing = append(missing, name)
			}
		}
		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", domainconfig.ErrMissingEnvVar, strings.Join(missing, ", "))
	}
	return out, nil
}

// ExpandEnv expands references against the process environment; unset
// variables become empty.
func ExpandEnv(input string) string {
	out, _ := (&envExpander{}).Expand(input)
	return out
}

// ExpandEnvStrict is ExpandEnv but fails on any unset variable.
func ExpandEnvStrict(input string) (string, error) {
	return (&envExpander{strict: true}).Expand(input)
}

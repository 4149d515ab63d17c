package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	relativeTime   = regexp.MustCompile(`(?i)^now\(\)\s*(?:([+-])\s*(\d+)([smhd]))?$`)
	simpleDuration = regexp.MustCompile(`(?i)^(\d+)([smhd])$`)
)

var unitDurations = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

var absoluteLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses an RFC3339 timestamp or a now()-relative expression such
// as "now() - 1h". Timestamps without a zone are taken as UTC.
func ParseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	m := relativeTime.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, NewInvalidTimeRangeError(fmt.Sprintf("invalid time format: %s", s), map[string]any{"value": s})
	}
	if m[1] == "" {
		return now.UTC(), nil
	}
	n, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return time.Time{}, NewInvalidTimeRangeError(fmt.Sprintf("invalid time offset: %s", s), map[string]any{"value": s})
	}
	offset := time.Duration(n) * unitDurations[strings.ToLower(m[3])]
	if m[1] == "-" {
		offset = -offset
	}
	return now.Add(offset).UTC(), nil
}

// ParseDuration parses N followed by one of s, m, h, d.
func ParseDuration(s string) (time.Duration, error) {
	m := simpleDuration.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, NewInvalidTimeRangeError(fmt.Sprintf("invalid duration format: %s", s), map[string]any{"value": s})
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, NewInvalidTimeRangeError(fmt.Sprintf("invalid duration format: %s", s), map[string]any{"value": s})
	}
	return time.Duration(n) * unitDurations[strings.ToLower(m[2])], nil
}

// FormatDuration renders d in its largest whole unit, truncating.
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	switch {
	case ms < 1000:
		return fmt.Sprintf("%dms", ms)
	case d < time.Minute:
		return fmt.Sprintf("%ds", int64(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int64(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	default:
		return fmt.Sprintf("%dd", int64(d/(24*time.Hour)))
	}
}

// ResolvedRange is a parsed time range.
type ResolvedRange struct {
	From time.Time
	To   time.Time
}

// Span returns the width of the range.
func (r ResolvedRange) Span() time.Duration {
	return r.To.Sub(r.From)
}

// ResolveTimeRange parses both ends of tr and checks that from precedes to
// and that the span does not exceed maxDays.
func ResolveTimeRange(tr TimeRange, maxDays int, now time.Time) (ResolvedRange, error) {
	from, err := ParseTime(tr.From, now)
	if err != nil {
		return ResolvedRange{}, err
	}
	to, err := ParseTime(tr.To, now)
	if err != nil {
		return ResolvedRange{}, err
	}
	if !from.Before(to) {
		return ResolvedRange{}, NewInvalidTimeRangeError("start time must be before end time",
			map[string]any{"from": tr.From, "to": tr.To})
	}
	days := to.Sub(from).Hours() / 24
	if maxDays > 0 && days > float64(maxDays) {
		return ResolvedRange{}, NewInvalidTimeRangeError(
			fmt.Sprintf("time range exceeds maximum of %d days (got %.1f days)", maxDays, days),
			map[string]any{"from": tr.From, "to": tr.To, "range_days": days, "max_range_days": maxDays})
	}
	return ResolvedRange{From: from, To: to}, nil
}

package influxql

import (
	"strings"
	"time"

	iql "github.com/influxdata/influxql"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

// FromRequest applies every clause of req to a fresh builder in clause order.
// Relative time expressions are resolved against now.
func FromRequest(req query.Request, maxLimit int, now time.Time) Builder {
	b := NewBuilder(maxLimit).
		Select(req.Fields, req.Agg, req.Percentile).
		From(req.Measurement)

	if tr := req.TimeRange(); tr != nil {
		from, err := query.ParseTime(tr.From, now)
		if err != nil {
			return b.fail(err)
		}
		to, err := query.ParseTime(tr.To, now)
		if err != nil {
			return b.fail(err)
		}
		b = b.TimeRange(from, to)
	}
	b = b.Tags(req.Tags())

	if req.GroupByTime != "" {
		b = b.GroupByTime(req.GroupByTime)
	}
	if len(req.GroupByTags) > 0 {
		b = b.GroupByTags(req.GroupByTags)
	}
	b = b.Fill(req.Fill).OrderBy(req.Order)
	if req.Limit > 0 {
		b = b.Limit(req.Limit)
	}
	return b.Offset(req.Offset).TZ(req.TZ)
}

// LastQuery renders SELECT LAST(field) FROM m [WHERE tags] [GROUP BY tags].
func LastQuery(measurement, field string, tags map[string]query.TagCondition, groupByTags []string) (string, error) {
	q, err := QuoteField(field)
	if err != nil {
		return "", err
	}
	b := NewBuilder(0).selectRaw("LAST(" + q + ")").From(measurement).Tags(tags)
	if len(groupByTags) > 0 {
		b = b.GroupByTags(groupByTags)
	}
	return b.Render()
}

// ShowDatabases lists databases.
func ShowDatabases() string {
	return "SHOW DATABASES"
}

// ShowMeasurements lists measurements, optionally filtered by a regex. A
// pattern given without slashes is wrapped in them. The statement is parsed
// before it is returned so a crafted pattern cannot smuggle extra clauses.
func ShowMeasurements(match string) (string, error) {
	if match == "" {
		return "SHOW MEASUREMENTS", nil
	}
	if !(len(match) >= 2 && strings.HasPrefix(match, "/") && strings.HasSuffix(match, "/")) {
		match = "/" + strings.ReplaceAll(match, "/", `\/`) + "/"
	}
	text := "SHOW MEASUREMENTS WITH MEASUREMENT =~ " + match
	stmt, err := iql.ParseStatement(text)
	if err != nil {
		return "", query.NewValidationError("invalid measurement pattern: "+err.Error(), map[string]any{"match": match})
	}
	if _, ok := stmt.(*iql.ShowMeasurementsStatement); !ok {
		return "", query.NewValidationError("invalid measurement pattern", map[string]any{"match": match})
	}
	return text, nil
}

// ShowFieldKeys lists field names and types of a measurement.
func ShowFieldKeys(measurement string) (string, error) {
	q, err := QuoteIdentifier(measurement)
	if err != nil {
		return "", err
	}
	return "SHOW FIELD KEYS FROM " + q, nil
}

// ShowTagKeys lists tag names of a measurement.
func ShowTagKeys(measurement string) (string, error) {
	q, err := QuoteIdentifier(measurement)
	if err != nil {
		return "", err
	}
	return "SHOW TAG KEYS FROM " + q, nil
}

// ShowRetentionPolicies lists retention policies of a database.
func ShowRetentionPolicies(db string) (string, error) {
	q, err := QuoteIdentifier(db)
	if err != nil {
		return "", err
	}
	return "SHOW RETENTION POLICIES ON " + q, nil
}

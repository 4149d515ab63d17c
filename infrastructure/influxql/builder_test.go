package influxql

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestBuilder_ClauseOrder(t *testing.T) {
	t.Parallel()

	from := fixedNow.Add(-time.Hour)
	got, err := NewBuilder(1000).
		Select(query.Fields{"usage"}, query.AggMean, nil).
		From("cpu").
		TimeRange(from, fixedNow).
		Tag("host", query.TagCondition{Value: "server01"}).
		GroupByTime("5m").
		GroupByTags([]string{"region"}).
		Fill(query.FillNone).
		OrderBy(query.OrderDesc).
		Limit(10).
		Offset(20).
		TZ("Europe/Berlin").
		Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	want := "SELECT MEAN(usage) FROM cpu " +
		"WHERE time >= '2024-06-01T11:00:00.000Z' AND time < '2024-06-01T12:00:00.000Z' AND host = 'server01' " +
		"GROUP BY time(5m), region fill(none) ORDER BY time DESC LIMIT 10 OFFSET 20 tz('Europe/Berlin')"
	if got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuilder_Immutable(t *testing.T) {
	t.Parallel()

	base := NewBuilder(0).Select(nil, "", nil).From("cpu")
	a := base.Tag("host", query.TagCondition{Value: "a"})
	b := base.Tag("host", query.TagCondition{Value: "b"})

	baseText, _ := base.Render()
	aText, _ := a.Render()
	bText, _ := b.Render()

	if baseText != "SELECT * FROM cpu" {
		t.Errorf("base = %s, want SELECT * FROM cpu", baseText)
	}
	if !strings.Contains(aText, "'a'") || strings.Contains(aText, "'b'") {
		t.Errorf("a = %s", aText)
	}
	if !strings.Contains(bText, "'b'") || strings.Contains(bText, "'a'") {
		t.Errorf("b = %s", bText)
	}
}

func TestBuilder_Select(t *testing.T) {
	t.Parallel()

	p := 95.0
	tests := []struct {
		name   string
		fields query.Fields
		agg    query.Aggregation
		pct    *float64
		want   string
	}{
		{"wildcard", query.AllFields(), "", nil, "SELECT * FROM m"},
		{"wildcard agg", query.AllFields(), query.AggMax, nil, "SELECT MAX(*) FROM m"},
		{"fields", query.Fields{"a", "b c"}, "", nil, `SELECT a, "b c" FROM m`},
		{"percentile", query.Fields{"lat"}, query.AggPercentile, &p, "SELECT PERCENTILE(lat, 95) FROM m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NewBuilder(0).Select(tt.fields, tt.agg, tt.pct).From("m").Render()
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Render() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuilder_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		b    Builder
		want error
	}{
		{"missing select", NewBuilder(0).From("m"), ErrSelectRequired},
		{"missing from", NewBuilder(0).Select(nil, "", nil), ErrFromRequired},
		{"bad measurement", NewBuilder(0).Select(nil, "", nil).From("m;"), query.ErrValidation},
		{"bad window", NewBuilder(0).Select(nil, "", nil).From("m").GroupByTime("5 minutes"), query.ErrValidation},
		{"limit over max", NewBuilder(10).Select(nil, "", nil).From("m").Limit(11), query.ErrValidation},
		{"bad tz", NewBuilder(0).Select(nil, "", nil).From("m").TZ("UTC')"), query.ErrValidation},
		{"bad fill", NewBuilder(0).Select(nil, "", nil).From("m").Fill("zero"), query.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.b.Render()
			if !errors.Is(err, tt.want) {
				t.Errorf("Render() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuilder_RegexTag(t *testing.T) {
	t.Parallel()

	got, err := NewBuilder(0).Select(nil, "", nil).From("m").
		Tag("host", query.TagCondition{Op: query.OpRegex, Value: "/^web/"}).
		GroupByTime("1h").
		Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "SELECT * FROM m WHERE host =~ /^web/ GROUP BY time(1h)"
	if got != want {
		t.Errorf("Render() = %s, want %s", got, want)
	}
	if err := ValidateRendered(got); err != nil {
		t.Errorf("ValidateRendered() error = %v", err)
	}
}

func TestRegexLiteral(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{name: "anchored", value: "/^web/", want: "/^web/"},
		{name: "escaped slash", value: `/a\/b/`, want: `/a\/b/`},
		{name: "second statement", value: `/x/; SELECT * FROM "secrets"."autogen"."passwords"`, wantErr: true},
		{name: "extra predicate", value: "/x/ OR time > 0", wantErr: true},
		{name: "trailing limit", value: "/x/ LIMIT 1", wantErr: true},
		{name: "string literal", value: "'abc'", wantErr: true},
		{name: "bare word", value: "web", wantErr: true},
		{name: "empty", value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := RegexLiteral(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RegexLiteral(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, query.ErrValidation) {
					t.Errorf("RegexLiteral(%q) error = %v, want ErrValidation", tt.value, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("RegexLiteral(%q) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}
}

func TestBuilder_RegexTagRejectsTrailingText(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder(0).Select(nil, "", nil).From("m").
		Tag("host", query.TagCondition{Op: query.OpRegex, Value: `/x/; SELECT * FROM "secrets"."autogen"."passwords"`}).
		Render()
	if !errors.Is(err, query.ErrValidation) {
		t.Errorf("Render() error = %v, want %v", err, query.ErrValidation)
	}
}

func TestFromRequest(t *testing.T) {
	t.Parallel()

	req := query.Request{
		Database:    "metrics",
		Measurement: "cpu",
		Fields:      query.Fields{"usage"},
		Where: &query.Where{
			Time: &query.TimeRange{From: "now() - 1h", To: "now()"},
			Tags: map[string]query.TagCondition{"host": {Value: "a"}},
		},
		Agg:         query.AggMean,
		GroupByTime: "1m",
		Limit:       5,
	}
	got, err := FromRequest(req, 100, fixedNow).Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "SELECT MEAN(usage) FROM cpu WHERE time >= '2024-06-01T11:00:00.000Z' AND time < '2024-06-01T12:00:00.000Z' " +
		"AND host = 'a' GROUP BY time(1m) LIMIT 5"
	if got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}

	req.Where.Time.From = "yesterday"
	if _, err := FromRequest(req, 100, fixedNow).Render(); err == nil {
		t.Error("Render() with unparseable time should fail")
	}
}

func TestLastQuery(t *testing.T) {
	t.Parallel()

	got, err := LastQuery("cpu", "*", map[string]query.TagCondition{"dc": {Value: "eu"}}, []string{"host"})
	if err != nil {
		t.Fatalf("LastQuery() error = %v", err)
	}
	if want := "SELECT LAST(*) FROM cpu WHERE dc = 'eu' GROUP BY host"; got != want {
		t.Errorf("LastQuery() = %s, want %s", got, want)
	}
}

func TestShowStatements(t *testing.T) {
	t.Parallel()

	if got, _ := ShowMeasurements(""); got != "SHOW MEASUREMENTS" {
		t.Errorf("ShowMeasurements() = %s", got)
	}
	if got, err := ShowMeasurements("^cpu"); err != nil || got != "SHOW MEASUREMENTS WITH MEASUREMENT =~ /^cpu/" {
		t.Errorf("ShowMeasurements(^cpu) = %s, %v", got, err)
	}
	if got, _ := ShowFieldKeys("cpu"); got != "SHOW FIELD KEYS FROM cpu" {
		t.Errorf("ShowFieldKeys() = %s", got)
	}
	if got, _ := ShowTagKeys("my m"); got != `SHOW TAG KEYS FROM "my m"` {
		t.Errorf("ShowTagKeys() = %s", got)
	}
	if got, _ := ShowRetentionPolicies("metrics"); got != "SHOW RETENTION POLICIES ON metrics" {
		t.Errorf("ShowRetentionPolicies() = %s", got)
	}
	if _, err := ShowRetentionPolicies("x;y"); err == nil {
		t.Error("ShowRetentionPolicies(x;y) should fail")
	}
}

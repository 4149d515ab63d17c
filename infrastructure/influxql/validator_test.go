package influxql

import (
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"simple select", "SELECT mean(usage) FROM cpu WHERE time > now() - 1h GROUP BY time(5m)", false},
		{"show databases", "SHOW DATABASES", false},
		{"leading whitespace", "   select * from cpu", false},
		{"fill and tz", "SELECT mean(x) FROM m GROUP BY time(1m) fill(none) tz('UTC')", false},
		{"drop", "DROP DATABASE metrics", true},
		{"lower-case delete", "delete from cpu", true},
		{"select into", "SELECT * INTO other FROM cpu", true},
		{"embedded drop", "SELECT * FROM cpu; DROP MEASUREMENT cpu", true},
		{"mixed-case grant", "SHOW USERS; GrAnT ALL TO bob", true},
		{"insert", "INSERT cpu value=1", true},
		{"unknown function", "SELECT evil(x) FROM cpu", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, query.ErrValidation) {
				t.Errorf("Validate(%q) error = %v, want ErrValidation", tt.text, err)
			}
		})
	}
}

func TestValidateRendered_MasksLiterals(t *testing.T) {
	t.Parallel()

	text := `SELECT "value" FROM m WHERE "zone" = 'drop-zone' AND "host" =~ /create.*/`
	if err := ValidateRendered(text); err != nil {
		t.Errorf("ValidateRendered() error = %v, want nil", err)
	}
	if err := Validate(text); err == nil {
		t.Error("Validate() on unmasked text should reject the keyword")
	}
}

func TestValidateRendered_StatementShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"plain select", "SELECT mean(usage) FROM cpu WHERE time > now() - 1h GROUP BY time(5m)", false},
		{"show measurements", "SHOW MEASUREMENTS", false},
		{"two selects", `SELECT * FROM cpu WHERE host =~ /x/; SELECT * FROM cpu`, true},
		{"other database", `SELECT * FROM "secrets"."autogen"."passwords"`, true},
		{"retention policy", `SELECT * FROM "autogen"."cpu"`, true},
		{"measurement regex", "SELECT * FROM /.*/", true},
		{"subquery", "SELECT * FROM (SELECT * FROM cpu)", true},
		{"unparsable", "SELECT FROM", true},
		{"fill as a field function", "SELECT fill(usage) FROM cpu", true},
		{"tz as a field function", "SELECT tz(usage) FROM cpu", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateRendered(tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateRendered(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, query.ErrValidation) {
				t.Errorf("ValidateRendered(%q) error = %v, want ErrValidation", tt.text, err)
			}
		})
	}
}

func TestValidateRenderedFrom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"own measurement", "SELECT usage FROM cpu", false},
		{"quoted own measurement", `SELECT "usage" FROM "cpu"`, false},
		{"other measurement", "SELECT usage FROM mem", true},
		{"extra measurement", "SELECT usage FROM cpu, mem", true},
		{"show statement", "SHOW DATABASES", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateRenderedFrom(tt.text, "cpu")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateRenderedFrom(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
		})
	}
}

func TestValidateWindow(t *testing.T) {
	t.Parallel()

	for _, w := range []string{"1s", "5m", "12h", "7d"} {
		if err := ValidateWindow(w); err != nil {
			t.Errorf("ValidateWindow(%s) error = %v", w, err)
		}
	}
	for _, w := range []string{"", "5", "m", "1w", "1.5h", "5m;"} {
		if err := ValidateWindow(w); err == nil {
			t.Errorf("ValidateWindow(%q) should fail", w)
		}
	}

	d, err := WindowDuration("2m")
	if err != nil || d != 2*time.Minute {
		t.Errorf("WindowDuration(2m) = %v, %v, want 2m0s", d, err)
	}
}

func TestValidateLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		limit, max int
		wantErr    bool
	}{
		{1, 100, false},
		{100, 100, false},
		{101, 100, true},
		{0, 100, true},
		{5000, 0, false},
	}
	for _, tt := range tests {
		if err := ValidateLimit(tt.limit, tt.max); (err != nil) != tt.wantErr {
			t.Errorf("ValidateLimit(%d, %d) error = %v, wantErr %v", tt.limit, tt.max, err, tt.wantErr)
		}
	}
}

func TestParseReadOnly(t *testing.T) {
	t.Parallel()

	stmts, err := ParseReadOnly("SELECT mean(usage) FROM cpu GROUP BY time(1m); SHOW MEASUREMENTS")
	if err != nil {
		t.Fatalf("ParseReadOnly() error = %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("len(stmts) = %d, want 2", len(stmts))
	}
	if stmts[0].Kind != "Select" {
		t.Errorf("stmts[0].Kind = %s, want Select", stmts[0].Kind)
	}
	if stmts[1].Kind != "ShowMeasurements" {
		t.Errorf("stmts[1].Kind = %s, want ShowMeasurements", stmts[1].Kind)
	}

	bad := []string{
		"SELECT FROM",
		"SELECT * FROM (SELECT evil(x) FROM cpu)",
		"SHOW",
	}
	for _, text := range bad {
		if _, err := ParseReadOnly(text); err == nil {
			t.Errorf("ParseReadOnly(%q) should fail", text)
		}
	}
}

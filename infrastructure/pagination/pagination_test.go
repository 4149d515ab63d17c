package pagination

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

func TestHash_OrderIndependent(t *testing.T) {
	t.Parallel()

	a := map[string]any{"db": "d", "measurement": "m", "fields": []string{"x"}, "where": map[string]any{"b": 1, "a": 2}}
	b := map[string]any{"where": map[string]any{"a": 2, "b": 1}, "fields": []string{"x"}, "measurement": "m", "db": "d"}

	ha, err := Hash(a)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	hb, _ := Hash(b)
	if ha != hb {
		t.Errorf("Hash() differs by key order: %s vs %s", ha, hb)
	}
	if len(ha) != 16 {
		t.Errorf("len(Hash()) = %d, want 16", len(ha))
	}
}

func TestIssueResolveVerify(t *testing.T) {
	t.Parallel()

	params := map[string]any{"db": "d", "measurement": "m", "fields": []string{"x"}}
	token, err := Issue("d", "m", 50, params, "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	c, err := Resolve(token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if c.Database != "d" || c.Measurement != "m" || c.Offset != 50 {
		t.Errorf("Resolve() = %+v", c)
	}
	if err := c.Verify("d", "m", params); err != nil {
		t.Errorf("Verify(same params) error = %v", err)
	}

	changed := map[string]any{"db": "d", "measurement": "m", "fields": []string{"y"}}
	if err := c.Verify("d", "m", changed); !errors.Is(err, query.ErrInvalidCursor) {
		t.Errorf("Verify(changed fields) error = %v, want INVALID_CURSOR", err)
	}
	if err := c.Verify("d", "other", params); !errors.Is(err, query.ErrInvalidCursor) {
		t.Errorf("Verify(other measurement) error = %v, want INVALID_CURSOR", err)
	}
}

func TestIssue_TimeAnchor(t *testing.T) {
	t.Parallel()

	token, _ := Issue("d", "m", 10, struct{}{}, "2024-01-01T00:00:00Z")
	c, err := Resolve(token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if c.TimeAnchor != "2024-01-01T00:00:00Z" {
		t.Errorf("TimeAnchor = %s", c.TimeAnchor)
	}
}

func TestResolve_Invalid(t *testing.T) {
	t.Parallel()

	for _, token := range []string{"not base64!", "bm90IGpzb24=", "e30="} {
		if _, err := Resolve(token); !errors.Is(err, query.ErrInvalidCursor) {
			t.Errorf("Resolve(%q) error = %v, want INVALID_CURSOR", token, err)
		}
	}
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	rows := []int{0, 1, 2, 3, 4, 5, 6}
	tests := []struct {
		size, offset int
		wantLen      int
		wantMore     bool
		wantNext     int
	}{
		{3, 0, 3, true, 3},
		{3, 3, 3, true, 6},
		{3, 6, 1, false, 7},
		{10, 0, 7, false, 7},
		{3, 20, 0, false, 7},
		{0, 2, 5, false, 7},
	}
	for _, tt := range tests {
		p := Paginate(rows, tt.size, tt.offset)
		if len(p.Items) != tt.wantLen || p.HasMore != tt.wantMore || p.NextOffset != tt.wantNext {
			t.Errorf("Paginate(size=%d, offset=%d) = len %d, more %v, next %d; want %d, %v, %d",
				tt.size, tt.offset, len(p.Items), p.HasMore, p.NextOffset, tt.wantLen, tt.wantMore, tt.wantNext)
		}
	}
}

package influx

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/influxdata/influxdb1-client/models"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

func fromRows(rows []models.Row) []query.Series {
	out := make([]query.Series, 0, len(rows))
	for _, r := range rows {
		values := make([][]any, len(r.Values))
		for i, row := range r.Values {
			values[i] = normalizeRow(row)
		}
		out = append(out, query.Series{
			Name:    r.Name,
			Tags:    r.Tags,
			Columns: r.Columns,
			Values:  values,
		})
	}
	return out
}

func normalizeRow(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = normalizeValue(v)
	}
	return out
}

// normalizeValue turns json.Number into int64 when integral, float64 otherwise.
func normalizeValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// MergeSeries joins series that share a name and tag set, as happens when a
// chunked response splits one series across chunks. Order of first
// appearance is kept.
func MergeSeries(series []query.Series) []query.Series {
	if len(series) < 2 {
		return series
	}
	index := make(map[string]int, len(series))
	out := make([]query.Series, 0, len(series))
	for _, s := range series {
		key := seriesKey(s)
		if i, ok := index[key]; ok {
			out[i].Values = append(out[i].Values, s.Values...)
			continue
		}
		index[key] = len(out)
		s.Values = append([][]any(nil), s.Values...)
		out = append(out, s)
	}
	return out
}

func seriesKey(s query.Series) string {
	keys := sortedKeys(s.Tags)
	var b strings.Builder
	b.WriteString(s.Name)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s.Tags[k])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SeriesToRows flattens series into one table. A single untagged series
// passes through unchanged. Otherwise the sorted union of tag keys is
// prepended to the columns, and each row carries its series' tag values.
func SeriesToRows(series []query.Series) ([]string, [][]any) {
	if len(series) == 0 {
		return []string{}, [][]any{}
	}
	if len(series) == 1 && len(series[0].Tags) == 0 {
		rows := series[0].Values
		if rows == nil {
			rows = [][]any{}
		}
		return series[0].Columns, rows
	}

	tagSet := make(map[string]string)
	for _, s := range series {
		for k := range s.Tags {
			tagSet[k] = ""
		}
	}
	tagKeys := sortedKeys(tagSet)
	columns := append(append([]string{}, tagKeys...), series[0].Columns...)

	rows := make([][]any, 0, CountPoints(series))
	for _, s := range series {
		prefix := make([]any, len(tagKeys))
		for i, k := range tagKeys {
			prefix[i] = s.Tags[k]
		}
		for _, v := range s.Values {
			row := make([]any, 0, len(prefix)+len(v))
			row = append(row, prefix...)
			row = append(row, v...)
			rows = append(rows, row)
		}
	}
	return columns, rows
}

// CountPoints returns the total number of rows across series.
func CountPoints(series []query.Series) int {
	n := 0
	for _, s := range series {
		n += len(s.Values)
	}
	return n
}

// Column returns the index of name in columns, or -1.
func Column(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

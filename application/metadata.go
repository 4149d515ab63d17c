package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/influx-mcp/domain/cache"
	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/influx"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/influxql"
)

// describeRetryAfter is suggested to callers rejected by the describe
// bulkhead.
const describeRetryAfter = 100 * time.Millisecond

// FieldInfo is one field key and its type.
type FieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RetentionPolicy describes one retention policy.
type RetentionPolicy struct {
	Name        string `json:"name"`
	Duration    string `json:"duration"`
	Replication int64  `json:"replication"`
	Default     bool   `json:"default"`
}

// Description is the schema of one measurement.
type Description struct {
	Database    string      `json:"db"`
	Measurement string      `json:"measurement"`
	Fields      []FieldInfo `json:"fields"`
	Tags        []string    `json:"tags"`
}

// MetadataService answers schema questions through the metadata cache.
type MetadataService struct {
	cfg      Config
	bulkhead bulkhead.Bulkhead[any]
}

func newMetadataService(cfg Config) *MetadataService {
	return &MetadataService{
		cfg: cfg,
		bulkhead: bulkhead.New[any](bulkhead.Config{
			MaxConcurrent: cfg.MaxDescribeConcurrency,
		}),
	}
}

func (s *MetadataService) show(ctx context.Context, text, db string) ([]query.Series, error) {
	if err := influxql.ValidateRendered(text); err != nil {
		return nil, err
	}
	return execute(ctx, s.cfg, text, db, query.ExecOptions{})
}

// ListDatabases lists databases visible through the allow-list.
func (s *MetadataService) ListDatabases(ctx context.Context) ([]string, error) {
	all, err := cached(ctx, s.cfg, "meta.list_databases", cache.MetadataKey("databases"), func(ctx context.Context) ([]string, error) {
		series, err := s.show(ctx, influxql.ShowDatabases(), "")
		if err != nil {
			return nil, err
		}
		return stringColumn(series, "name"), nil
	})
	if err != nil {
		return nil, err
	}

	if s.cfg.Limits.AllowsAll() {
		return all, nil
	}
	out := make([]string, 0, len(all))
	for _, db := range all {
		if s.cfg.Limits.DatabaseAllowed(db) {
			out = append(out, db)
		}
	}
	return out, nil
}

// ListMeasurements lists measurements of db, optionally filtered by a regex.
func (s *MetadataService) ListMeasurements(ctx context.Context, db, match string) ([]string, error) {
	if err := s.check(db); err != nil {
		return nil, err
	}
	text, err := influxql.ShowMeasurements(match)
	if err != nil {
		return nil, err
	}
	key := cache.MetadataKey("measurements", db, match)
	return cached(ctx, s.cfg, "meta.list_measurements", key, func(ctx context.Context) ([]string, error) {
		series, err := s.show(ctx, text, db)
		if err != nil {
			return nil, err
		}
		return stringColumn(series, "name"), nil
	})
}

// ListFields lists field keys and types of a measurement.
func (s *MetadataService) ListFields(ctx context.Context, db, measurement string) ([]FieldInfo, error) {
	if err := s.check(db, measurement); err != nil {
		return nil, err
	}
	text, err := influxql.ShowFieldKeys(measurement)
	if err != nil {
		return nil, err
	}
	key := cache.MetadataKey("fields", db, measurement)
	return cached(ctx, s.cfg, "meta.list_fields", key, func(ctx context.Context) ([]FieldInfo, error) {
		series, err := s.show(ctx, text, db)
		if err != nil {
			return nil, err
		}
		out := []FieldInfo{}
		for _, ser := range series {
			ni, ti := influx.Column(ser.Columns, "fieldKey"), influx.Column(ser.Columns, "fieldType")
			for _, row := range ser.Values {
				out = append(out, FieldInfo{Name: cell(row, ni), Type: cell(row, ti)})
			}
		}
		return out, nil
	})
}

// ListTags lists tag keys of a measurement.
func (s *MetadataService) ListTags(ctx context.Context, db, measurement string) ([]string, error) {
	if err := s.check(db, measurement); err != nil {
		return nil, err
	}
	text, err := influxql.ShowTagKeys(measurement)
	if err != nil {
		return nil, err
	}
	key := cache.MetadataKey("tags", db, measurement)
	return cached(ctx, s.cfg, "meta.list_tags", key, func(ctx context.Context) ([]string, error) {
		series, err := s.show(ctx, text, db)
		if err != nil {
			return nil, err
		}
		return stringColumn(series, "tagKey"), nil
	})
}

// RetentionPolicies lists the retention policies of db.
func (s *MetadataService) RetentionPolicies(ctx context.Context, db string) ([]RetentionPolicy, error) {
	if err := s.check(db); err != nil {
		return nil, err
	}
	text, err := influxql.ShowRetentionPolicies(db)
	if err != nil {
		return nil, err
	}
	key := cache.MetadataKey("retention_policies", db)
	return cached(ctx, s.cfg, "meta.retention_policies", key, func(ctx context.Context) ([]RetentionPolicy, error) {
		series, err := s.show(ctx, text, db)
		if err != nil {
			return nil, err
		}
		out := []RetentionPolicy{}
		for _, ser := range series {
			ni := influx.Column(ser.Columns, "name")
			di := influx.Column(ser.Columns, "duration")
			ri := influx.Column(ser.Columns, "replicaN")
			fi := influx.Column(ser.Columns, "default")
			for _, row := range ser.Values {
				rp := RetentionPolicy{Name: cell(row, ni), Duration: cell(row, di)}
				if ri >= 0 && ri < len(row) {
					if n, ok := toFloat(row[ri]); ok {
						rp.Replication = int64(n)
					}
				}
				if fi >= 0 && fi < len(row) {
					rp.Default, _ = row[fi].(bool)
				}
				out = append(out, rp)
			}
		}
		return out, nil
	})
}

// Describe fetches fields and tags of a measurement concurrently. The
// lookups share a bulkhead so describe calls cannot crowd out the rest of
// the limiter's permits.
func (s *MetadataService) Describe(ctx context.Context, db, measurement string) (Description, error) {
	if err := s.check(db, measurement); err != nil {
		return Description{}, err
	}

	desc := Description{Database: db, Measurement: measurement}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.guard(gctx, func(ctx context.Context) (any, error) {
			return s.ListFields(ctx, db, measurement)
		})
		if err != nil {
			return err
		}
		desc.Fields = v.([]FieldInfo)
		return nil
	})
	g.Go(func() error {
		v, err := s.guard(gctx, func(ctx context.Context) (any, error) {
			return s.ListTags(ctx, db, measurement)
		})
		if err != nil {
			return err
		}
		desc.Tags = v.([]string)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Description{}, err
	}
	return desc, nil
}

func (s *MetadataService) guard(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	v, err := s.bulkhead.Execute(ctx, fn)
	if err != nil {
		var qe *query.Error
		if !errors.As(err, &qe) && ctx.Err() == nil {
			return nil, query.NewRateLimitError(describeRetryAfter)
		}
		return nil, err
	}
	return v, nil
}

// check enforces the allow-list and that identifiers are present.
func (s *MetadataService) check(db string, measurement ...string) error {
	if db == "" {
		return query.NewValidationError("db is required", nil)
	}
	for _, m := range measurement {
		if m == "" {
			return query.NewValidationError("measurement is required", nil)
		}
	}
	return checkDatabase(s.cfg, db)
}

// stringColumn collects the named column, or the first column, of every
// series.
func stringColumn(series []query.Series, name string) []string {
	out := []string{}
	for _, ser := range series {
		i := influx.Column(ser.Columns, name)
		if i < 0 {
			i = 0
		}
		for _, row := range ser.Values {
			if v := cell(row, i); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func cell(row []any, i int) string {
	if i < 0 || i >= len(row) || row[i] == nil {
		return ""
	}
	if s, ok := row[i].(string); ok {
		return s
	}
	return fmt.Sprint(row[i])
}

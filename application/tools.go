package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/tool"
)

type dbInput struct {
	Database string `json:"db"`
}

type measurementsInput struct {
	Database string `json:"db"`
	Match    string `json:"match,omitempty"`
}

type measurementInput struct {
	Database    string `json:"db"`
	Measurement string `json:"measurement"`
}

type validateInput struct {
	Query string `json:"query"`
}

// handle adapts a typed service call to a tool handler.
func handle[In, Out any](fn func(context.Context, In) (Out, error)) tool.Handler {
	return func(ctx context.Context, raw json.RawMessage) (tool.Result, error) {
		start := time.Now()
		in, err := tool.Decode[In](raw)
		if err != nil {
			return tool.Result{}, err
		}
		out, err := fn(ctx, in)
		if err != nil {
			return tool.Result{}, err
		}
		res, err := tool.JSONResult(out)
		if err != nil {
			return tool.Result{}, err
		}
		res.Duration = time.Since(start)
		return res, nil
	}
}

// Tools returns the MCP tool set. Every tool is read-only.
func (s *Services) Tools() []tool.Tool {
	return []tool.Tool{
		tool.NewBuilder("meta.list_databases").
			WithDescription("List databases visible through the allow-list.").
			WithTags("meta").
			WithHandler(handle(func(ctx context.Context, _ struct{}) (map[string][]string, error) {
				dbs, err := s.Metadata.ListDatabases(ctx)
				return map[string][]string{"databases": dbs}, err
			})).
			MustBuild(),

		tool.NewBuilder("meta.list_measurements").
			WithDescription("List measurements of {db}, optionally filtered by the regex {match}.").
			WithTags("meta").
			WithHandler(handle(func(ctx context.Context, in measurementsInput) (map[string][]string, error) {
				ms, err := s.Metadata.ListMeasurements(ctx, in.Database, in.Match)
				return map[string][]string{"measurements": ms}, err
			})).
			MustBuild(),

		tool.NewBuilder("meta.list_fields").
			WithDescription("List field keys and types of {db, measurement}.").
			WithTags("meta").
			WithHandler(handle(func(ctx context.Context, in measurementInput) (map[string][]FieldInfo, error) {
				fs, err := s.Metadata.ListFields(ctx, in.Database, in.Measurement)
				return map[string][]FieldInfo{"fields": fs}, err
			})).
			MustBuild(),

		tool.NewBuilder("meta.list_tags").
			WithDescription("List tag keys of {db, measurement}.").
			WithTags("meta").
			WithHandler(handle(func(ctx context.Context, in measurementInput) (map[string][]string, error) {
				ts, err := s.Metadata.ListTags(ctx, in.Database, in.Measurement)
				return map[string][]string{"tags": ts}, err
			})).
			MustBuild(),

		tool.NewBuilder("meta.retention_policies").
			WithDescription("List retention policies of {db}.").
			WithTags("meta").
			WithHandler(handle(func(ctx context.Context, in dbInput) (map[string][]RetentionPolicy, error) {
				rps, err := s.Metadata.RetentionPolicies(ctx, in.Database)
				return map[string][]RetentionPolicy{"rps": rps}, err
			})).
			MustBuild(),

		tool.NewBuilder("meta.describe").
			WithDescription("Describe {db, measurement}: fields with types and tag keys.").
			WithTags("meta").
			WithHandler(handle(func(ctx context.Context, in measurementInput) (Description, error) {
				return s.Metadata.Describe(ctx, in.Database, in.Measurement)
			})).
			MustBuild(),

		tool.NewBuilder("timeseries.query").
			WithDescription("Run a structured read-only query. Large ranges are downsampled " +
				"automatically; results are paginated with next_cursor.").
			WithTags("timeseries").
			WithHandler(handle(s.Query.Query)).
			MustBuild(),

		tool.NewBuilder("timeseries.last").
			WithDescription("Return the latest value of {field}, per tag group when grouped.").
			WithTags("timeseries").
			Uncached().
			WithHandler(handle(s.Query.Last)).
			MustBuild(),

		tool.NewBuilder("timeseries.window_agg").
			WithDescription("Aggregate {field} over fixed windows with several aggregations at once.").
			WithTags("timeseries").
			WithHandler(handle(s.Query.WindowAgg)).
			MustBuild(),

		tool.NewBuilder("features.extract").
			WithDescription("Compute summary features (mean std var rms p2p skew kurtosis zcr trend auc) " +
				"of an inline series or a stored field, globally or over rolling windows.").
			WithTags("features").
			WithHandler(handle(s.Features.Extract)).
			MustBuild(),

		tool.NewBuilder("query.validate").
			WithDescription("Check that an InfluxQL statement is read-only and well formed without running it.").
			WithTags("query").
			WithHandler(handle(func(_ context.Context, in validateInput) (ValidateResult, error) {
				return s.Health.Validate(in.Query)
			})).
			MustBuild(),

		tool.NewBuilder("health.ping").
			WithDescription("Report server and database health.").
			WithTags("health").
			Uncached().
			WithHandler(handle(func(ctx context.Context, _ struct{}) (PingResult, error) {
				return s.Health.Ping(ctx), nil
			})).
			MustBuild(),

		tool.NewBuilder("server.stats").
			WithDescription("Report cache and rate limiter statistics.").
			WithTags("health").
			Uncached().
			WithHandler(handle(func(context.Context, struct{}) (StatsResult, error) {
				return s.Health.Stats(), nil
			})).
			MustBuild(),
	}
}

// Register adds every tool to registry.
func (s *Services) Register(registry tool.Registry) error {
	for _, t := range s.Tools() {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/planner"
)

// planOutput is what `plan` prints.
type planOutput struct {
	Strategy          query.Strategy `json:"strategy"`
	Window            string         `json:"window,omitempty"`
	EstimatedPoints   int64          `json:"estimated_points"`
	NeedsDownsampling bool           `json:"needs_downsampling"`
	Query             string         `json:"query"`
}

func (a *App) newPlanCmd() *cobra.Command {
	var (
		request string
		last    bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show how a structured request would be executed",
		Long: `Plan a structured query request against the configured limits and print
the chosen strategy, window, point estimate and InfluxQL text. Nothing is
sent to the database.

The request is inline JSON, @path to read a file, or - for stdin.

Examples:
  influx-mcp plan --request '{"db":"metrics","measurement":"cpu","fields":["usage"],
    "where":{"time":{"from":"now() - 7d","to":"now()"}}}'
  influx-mcp plan --request @request.json --last`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			data, err := readRequest(request, cmd.InOrStdin())
			if err != nil {
				return err
			}

			var req query.Request
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("parse request: %w", err)
			}
			req = req.Clone()
			if err := req.Validate(); err != nil {
				return err
			}
			if !cfg.Limits.DatabaseAllowed(req.Database) {
				return query.NewDatabaseNotAllowedError(req.Database)
			}

			p := planner.New(cfg.Limits.MaxPoints, cfg.Limits.MaxLimit)
			plan, err := p.Plan(req, last)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(planOutput{
				Strategy:          plan.Strategy,
				Window:            plan.Window,
				EstimatedPoints:   plan.EstimatedPoints,
				NeedsDownsampling: plan.NeedsDownsampling,
				Query:             plan.Query,
			})
		},
	}
	cmd.Flags().StringVarP(&request, "request", "r", "", "Request JSON, @file or - for stdin (required)")
	cmd.Flags().BoolVar(&last, "last", false, "Plan a last-value lookup")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

func readRequest(arg string, stdin io.Reader) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("read request: %w", err)
		}
		return data, nil
	default:
		return []byte(arg), nil
	}
}

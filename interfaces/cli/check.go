package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/influx-mcp/infrastructure/influxql"
)

func (a *App) newCheckCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check <query>",
		Short: "Validate an InfluxQL statement offline",
		Long: `Check that an InfluxQL statement would be accepted by the server:
read-only, well formed, and free of forbidden functions. Nothing is sent to
the database.

Examples:
  influx-mcp check "SELECT mean(usage) FROM cpu WHERE time > now() - 1h GROUP BY time(1m)"
  influx-mcp check --json "SHOW MEASUREMENTS"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			stmts, err := influxql.ParseReadOnly(text)
			if err != nil {
				return fmt.Errorf("query rejected: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"valid": true, "statements": stmts})
			}
			fmt.Fprintf(a.stdout, "✓ Query is valid\n")
			for _, s := range stmts {
				fmt.Fprintf(a.stdout, "  %s: %s\n", s.Kind, s.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the result as JSON")
	return cmd
}

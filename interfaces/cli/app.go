// Package cli provides the influx-mcp command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	influxmcp "github.com/felixgeelhaar/influx-mcp"
	domainconfig "github.com/felixgeelhaar/influx-mcp/domain/config"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/config"
)

// Version information set at build time.
var (
	Version   = influxmcp.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App represents the CLI application.
type App struct {
	root       *cobra.Command
	stdout     io.Writer
	stderr     io.Writer
	lookup     config.LookupFunc
	configPath string
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
		lookup: os.LookupEnv,
	}

	app.root = &cobra.Command{
		Use:   "influx-mcp",
		Short: "Read-only InfluxDB access for MCP clients",
		Long: `influx-mcp exposes an InfluxDB 1.x server to MCP clients as a set of
read-only tools. Every query is validated, planned against a point budget,
rate limited, cached and paginated before results reach the client.

Configuration is layered: defaults, then the --config file, then INFLUX_*,
MCP_* and LOG_* environment variables, then command flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	app.root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Path to configuration file (YAML or JSON)")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newServeCmd(),
		app.newCheckCmd(),
		app.newPlanCmd(),
		app.newConfigCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// WithEnv replaces the environment used by the configuration overlay.
func (a *App) WithEnv(lookup config.LookupFunc) *App {
	a.lookup = lookup
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// loadConfig resolves the effective configuration before flag overrides.
func (a *App) loadConfig() (*domainconfig.Config, error) {
	loader := config.NewLoaderWithOptions(config.WithLookup(a.lookup))
	cfg, err := loader.Resolve(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "influx-mcp version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}

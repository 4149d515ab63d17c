package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	domainconfig "github.com/felixgeelhaar/influx-mcp/domain/config"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/logging"
)

// serveOptions are flag overrides applied after the configuration layers.
type serveOptions struct {
	transport string
	addr      string
	adminAddr string
	auditLog  string
	influxURL string
	logLevel  string
}

func (a *App) newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run the MCP server on stdio (the default) or HTTP.

Logs go to stderr; on the stdio transport stdout carries protocol frames
only. With --admin-addr, /healthz, /stats and /metrics are served on a
separate listener.

Examples:
  # Serve over stdio with settings from the environment
  INFLUX_HOST=influx.local INFLUX_ALLOWED_DATABASES=metrics influx-mcp serve

  # Serve over HTTP with admin endpoints
  influx-mcp serve -c influx-mcp.yaml --transport http --addr :8080 --admin-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "", "Transport: stdio or http (overrides config)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address for the HTTP transport")
	cmd.Flags().StringVar(&opts.adminAddr, "admin-addr", "", "Listen address for admin endpoints")
	cmd.Flags().StringVar(&opts.auditLog, "audit-log", "", "Audit trail target: stderr or a file path")
	cmd.Flags().StringVar(&opts.influxURL, "influx-url", "", "InfluxDB base URL, e.g. http://localhost:8086")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides config)")

	return cmd
}

// apply layers the flags over cfg and revalidates the result.
func (o *serveOptions) apply(cfg *domainconfig.Config) error {
	if o.transport != "" {
		cfg.Server.Transport = o.transport
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if o.adminAddr != "" {
		cfg.Server.AdminAddr = o.adminAddr
	}
	if o.auditLog != "" {
		cfg.Server.AuditLog = o.auditLog
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.influxURL != "" {
		protocol, host, port, err := splitHostPort(o.influxURL)
		if err != nil {
			return fmt.Errorf("--influx-url: %w", err)
		}
		cfg.Influx.Protocol, cfg.Influx.Host, cfg.Influx.Port = protocol, host, port
	}
	return cfg.Validate()
}

func (a *App) serve(ctx context.Context, opts *serveOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if err := opts.apply(cfg); err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: a.stderr,
	})

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info().
			Add(logging.Component("cli")).
			Add(logging.Str("transport", cfg.Server.Transport)).
			Add(logging.Str("version", cfg.Server.Version)).
			Msg("mcp server starting")
		if cfg.Server.Transport == domainconfig.TransportHTTP {
			return rt.server.ServeHTTP(ctx, cfg.Server.Addr)
		}
		return rt.server.ServeStdio(ctx)
	})
	if cfg.Server.AdminAddr != "" {
		g.Go(func() error {
			return rt.admin.Serve(ctx, cfg.Server.AdminAddr)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logging.Info().
		Add(logging.Component("cli")).
		Msg("mcp server stopped")
	return err
}

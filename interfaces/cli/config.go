package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/influx-mcp/infrastructure/config"
)

func (a *App) newConfigCmd() *cobra.Command {
	var showEnv bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration the server would run with, after defaults, the
--config file and the environment overlay are applied. Passwords are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showEnv {
				for _, key := range config.EnvKeys() {
					fmt.Fprintln(a.stdout, key)
				}
				return nil
			}

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(a.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(cfg.Redacted()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().BoolVar(&showEnv, "env", false, "List the environment variables that override settings")
	return cmd
}

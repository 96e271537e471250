package cli

import (
	"context"

	"github.com/spf13/cobra"

	"dhcpproxy/config"
)

// globals holds what the persistent flags and the config file resolve to.
type globals struct {
	configPath string
	logLevel   string
	logFile    string
	color      bool

	cfg     config.Config
	cleanup func() error
}

func RootCmd(ctx context.Context) *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "dhcpproxy",
		Short: "DHCP management proxy and client",
		// Silence because we want to use our logger instead
		SilenceErrors:     true,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if g.cleanup != nil {
				return g.cleanup()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "", "path to a .yaml, .toml or .json config file")
	flags.StringVarP(&g.logLevel, "log-level", "l", "", "log level, overrides the config file")
	flags.StringVarP(&g.logFile, "log-file", "o", "", "where to output logs, unset will output to stdout")
	flags.BoolVar(&g.color, "color", false, "colorize console logs")

	cmd.AddCommand(serveCmd(ctx, g))
	cmd.AddCommand(versionCmd(ctx, g))

	cmd.InitDefaultHelpCmd()

	return cmd
}

func (g *globals) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = g.logFile
	}

	cleanup, err := setupLogger(cfg.LogLevel, cfg.LogFile, g.color)
	if err != nil {
		return err
	}

	g.cfg = cfg
	g.cleanup = cleanup
	return nil
}

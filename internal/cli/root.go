// Package cli wires configuration, logging and the app into cobra commands.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/panelrenew/panelrenew/internal/config"
	"github.com/panelrenew/panelrenew/internal/observability"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

type contextKey struct{}

var configKey contextKey

type rootOptions struct {
	configPath string
	headful    bool
	logLevel   string
	timeout    time.Duration
}

// NewRootCmd builds the command tree. Each call returns an independent tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	runCmd := newRunCmd()

	cmd := &cobra.Command{
		Use:           "panelrenew",
		Short:         "Keep a free hosting panel server alive by claiming extra time.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				observability.InitializeLogger(config.Default().Logger)
				return err
			}
			opts.apply(cmd, cfg)

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting panelrenew", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		// Running without a subcommand performs a single claim run.
		RunE: runCmd.RunE,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default is the user config dir)")
	flags.BoolVar(&opts.headful, "headful", false, "show the browser window")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "abort a run after this long")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(
		runCmd,
		newDaemonCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newHistoryCmd(),
		newOpenCmd(),
	)
	return cmd
}

// apply lets explicitly set flags win over file and environment.
func (o *rootOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("headful") {
		cfg.Browser.Headless = !o.headful
	}
	if flags.Changed("log-level") {
		cfg.Logger.Level = strings.ToLower(o.logLevel)
	}
	if flags.Changed("timeout") {
		cfg.Run.Timeout = o.timeout
	}
}

// Execute runs the command tree with ctx, logging the final error.
func Execute(ctx context.Context) error {
	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		observability.GetLogger().Error("Command failed", zap.Error(err))
	}
	return err
}

func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

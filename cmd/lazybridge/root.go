package main

import (
	"fmt"

	"github.com/paveg/lazybridge"
	"github.com/paveg/lazybridge/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootOptions are the flags shared by every subcommand
type rootOptions struct {
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "lazybridge",
		Short: "Run lazy query pipelines over CSV and Parquet files",
		Long: `lazybridge builds a deferred query plan from a pipeline file and
collects it with the in-process engine.

A pipeline file names its sources and a chain of steps:

  sources:
    trades: {csv: trades.csv}
  pipeline:
    source: trades
    steps:
      - filter: {gt: [price, {lit: 10}]}
      - sort_by_exprs: {by: [time], descending: [false]}`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "engine configuration file (.json, .yaml or .yml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every executed plan node")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newExplainCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// setup loads the configuration, builds the logger and installs the engine
func (o *rootOptions) setup() error {
	cfg := config.NewConfig()
	if o.configPath != "" {
		loaded, err := config.LoadFromFile(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg = config.ApplyEnv(cfg)
	if o.verbose {
		cfg.VerboseLogging = true
	}

	warnings, err := config.NewConfigValidator().Validate(cfg)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	for _, w := range warnings {
		logger.Warn("configuration", zap.String("warning", w))
	}
	if err := lazybridge.ConfigureWithLogger(cfg, logger); err != nil {
		return err
	}
	o.cfg, o.logger = cfg, logger
	return nil
}

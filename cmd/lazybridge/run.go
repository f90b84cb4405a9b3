package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paveg/lazybridge"
	"github.com/paveg/lazybridge/internal/monitoring"
	"github.com/paveg/lazybridge/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOptions struct {
	root       *rootOptions
	background bool
	timeout    time.Duration
	format     string
	metrics    bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{root: root}

	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Collect a pipeline and print the result",
		Long: `Builds the pipeline's plan, collects it and prints the resulting table.

Interrupting the command (Ctrl-C) or reaching --timeout stops the collect
between plan nodes or kernel batches.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.background, "background", false, "collect on a background worker")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "abort the collect after this long (0 = no limit)")
	cmd.Flags().StringVarP(&opts.format, "output", "o", "table", "output format: table or csv")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "print per-node execution metrics after the result")
	return cmd
}

func (o *runOptions) run(cmd *cobra.Command, path string) error {
	if o.format != "table" && o.format != "csv" {
		return fmt.Errorf("unsupported output format %q (want table or csv)", o.format)
	}
	if o.metrics && !o.root.cfg.MetricsCollection {
		cfg := o.root.cfg
		cfg.MetricsCollection = true
		if err := lazybridge.ConfigureWithLogger(cfg, o.root.logger); err != nil {
			return err
		}
	}

	lf, err := buildPipeline(path, o.root.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var df *lazybridge.DataFrame
	if o.background {
		df, err = collectInBackground(ctx, lf, o.root.logger)
	} else {
		df, err = lf.CollectContext(ctx)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch o.format {
	case "csv":
		if err := df.WriteCSV(out); err != nil {
			return err
		}
	default:
		fmt.Fprint(out, df.String())
	}
	if o.metrics {
		printMetrics(out, monitoring.GetGlobalSummary())
	}
	return nil
}

// collectInBackground collects on a background handle, cancelling it when
// ctx is done.
func collectInBackground(ctx context.Context, lf *lazybridge.LazyFrame, logger *zap.Logger) (*lazybridge.DataFrame, error) {
	h := lf.CollectBackground()
	defer h.Close()
	logger.Debug("background collect started", zap.String("id", h.ID()))

	select {
	case <-h.Done():
	case <-ctx.Done():
		logger.Info("cancelling background collect", zap.String("id", h.ID()))
		h.Cancel()
	}
	return h.Join()
}

func buildPipeline(path string, logger *zap.Logger) (*lazybridge.LazyFrame, error) {
	doc, err := pipeline.Load(path)
	if err != nil {
		return nil, err
	}
	return pipeline.NewBuilder(doc, pipeline.WithLogger(logger)).Build()
}

func printMetrics(w io.Writer, s monitoring.MetricsSummary) {
	fmt.Fprintf(w, "operations: %d, failures: %d, rows: %d, total: %s\n",
		s.TotalOperations, s.Failures, s.TotalRows, s.TotalDuration)
}

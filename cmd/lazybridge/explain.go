package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExplainCommand(root *rootOptions) *cobra.Command {
	var optimized, debug bool

	cmd := &cobra.Command{
		Use:   "explain <pipeline>",
		Short: "Print a pipeline's plan without collecting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if optimized && debug {
				return fmt.Errorf("--optimized and --debug are mutually exclusive")
			}
			lf, err := buildPipeline(args[0], root.logger)
			if err != nil {
				return err
			}

			var text string
			switch {
			case optimized:
				text, err = lf.DescribeOptimizedPlan()
			case debug:
				text, err = lf.DebugPlan()
			default:
				text = lf.DescribePlan()
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&optimized, "optimized", false, "resolve and optimize the plan first")
	cmd.Flags().BoolVar(&debug, "debug", false, "print the raw plan as a JSON tree")
	return cmd
}

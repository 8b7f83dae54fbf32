package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBaselineCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Record every unseen transient as processed without posting",
		Long: "Append a baseline row to the processed-state store for each identifier in the\n" +
			"source list that is not yet recorded. Use it once before enabling scheduled\n" +
			"runs on an existing backlog.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			summary, err := ctx.runner(cfg, logger).MarkProcessed(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "Dry run: %d unseen transient(s) would be recorded\n", summary.Baseline)
				for _, id := range summary.Selected {
					fmt.Fprintf(out, "  would record %s\n", id)
				}
				return nil
			}
			fmt.Fprintf(out, "Recorded %d transient(s) as baseline in %s\n", summary.Baseline, cfg.Paths.ProcessedStore)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the identifiers without writing the store")
	return cmd
}

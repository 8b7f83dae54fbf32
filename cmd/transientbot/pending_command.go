package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"transientbot/internal/transients"
)

func newPendingCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List transients the next run would post",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			plan, err := ctx.runner(cfg, logger).Plan(cmd.Context())
			if err != nil {
				return err
			}

			type pendingRow struct {
				ID     string `json:"id"`
				State  string `json:"state"`
				Coords string `json:"coordinates"`
				TS     string `json:"test_statistic"`
				Status string `json:"status"`
			}
			var rows []pendingRow
			add := func(list []transients.Transient, state string) {
				for _, t := range list {
					coords := "-"
					if t.HasCoordinates {
						coords = t.Coordinates.String()
					}
					ts := "-"
					if !math.IsNaN(t.TestStatistic) {
						ts = fmt.Sprintf("%.1f", t.TestStatistic)
					}
					rows = append(rows, pendingRow{ID: t.ID, State: state, Coords: coords, TS: ts, Status: t.Status})
				}
			}
			add(plan.Selected, "next run")
			add(plan.Deferred, "deferred")
			add(plan.Baseline, "baseline")

			if asJSON {
				if rows == nil {
					rows = []pendingRow{}
				}
				return writeJSON(cmd, rows)
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "Nothing pending")
				return nil
			}
			if plan.FirstRun {
				fmt.Fprintln(out, "Processed-state store is empty: first-run selection applies")
			}
			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				table = append(table, []string{r.ID, r.State, r.Coords, r.TS, r.Status})
			}
			fmt.Fprintln(out, renderTable(out,
				[]column{col("ID"), col("State"), col("RA/Dec"), numCol("TS"), col("Status")},
				table,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

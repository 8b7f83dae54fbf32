package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"transientbot/internal/imagery"
	"transientbot/internal/ledger"
	"transientbot/internal/preflight"
	"transientbot/internal/textutil"
	"transientbot/internal/votes"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration, processed-state, and vote summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			var lines []string

			lines = append(lines, renderSectionHeader("Inputs", colorize)...)
			if _, err := os.Stat(cfg.Paths.SourceList); err != nil {
				lines = append(lines, renderStatusLine("Source list", statusError, cfg.Paths.SourceList+" (missing)", colorize))
			} else {
				lines = append(lines, renderStatusLine("Source list", statusOK, cfg.Paths.SourceList, colorize))
			}

			led, ledErr := ledger.Load(cfg.Paths.ProcessedStore)
			switch {
			case ledErr != nil:
				lines = append(lines, renderStatusLine("Processed store", statusError, ledErr.Error(), colorize))
			case led.Empty():
				lines = append(lines, renderStatusLine("Processed store", statusWarn, "empty (next run is a first run)", colorize))
			default:
				lines = append(lines, renderStatusLine("Processed store", statusOK,
					fmt.Sprintf("%d entries: %s", led.Len(), outcomeBreakdown(led.Entries())), colorize))
				entries := led.Entries()
				last := entries[len(entries)-1]
				lines = append(lines, renderStatusLine("Last processed", statusInfo,
					fmt.Sprintf("%s (%s, %s)", last.ID, last.Outcome, last.ProcessedAt.Format("2006-01-02 15:04 MST")), colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Delivery", colorize)...)
			if cfg.SlackEnabled() {
				lines = append(lines, renderStatusLine("Slack", statusOK, "channel "+cfg.Slack.ChannelID, colorize))
			} else {
				lines = append(lines, renderStatusLine("Slack", statusWarn, "not configured (runs require --dry-run)", colorize))
			}
			lines = append(lines, renderStatusLine("Voting", statusInfo, yesNo(cfg.Slack.Voting), colorize))
			lines = append(lines, renderStatusLine("Live votes", statusInfo, yesNo(cfg.Slack.AppToken != ""), colorize))
			surveys := imagery.FromConfig(cfg).Surveys()
			if len(surveys) == 0 {
				lines = append(lines, renderStatusLine("Surveys", statusWarn, "none enabled", colorize))
			} else {
				lines = append(lines, renderStatusLine("Surveys", statusOK, strings.Join(surveys, ", "), colorize))
			}
			contours := "off"
			if cfg.TSMap.Dir != "" {
				contours = cfg.TSMap.Dir
			}
			lines = append(lines, renderStatusLine("TS contours", statusInfo, contours, colorize))
			lines = append(lines, renderStatusLine("Schedule", statusInfo, fmt.Sprintf("daily at %s (%s)", cfg.Monitor.DailyAt, cfg.Monitor.Timezone), colorize))

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Votes", colorize)...)
			store, err := votes.Open(cfg.VotesDBPath())
			if err != nil {
				lines = append(lines, renderStatusLine("Vote database", statusError, err.Error(), colorize))
			} else {
				defer store.Close()
				tallies, err := store.List(cmd.Context())
				if err != nil {
					lines = append(lines, renderStatusLine("Vote database", statusError, err.Error(), colorize))
				} else {
					lines = append(lines, renderStatusLine("Vote database", statusOK,
						fmt.Sprintf("%d tallies: %s", len(tallies), categoryBreakdown(tallies, votes.ThresholdsFromConfig(cfg.Voting))), colorize))
				}
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Checks", colorize)...)
			for _, r := range preflight.RunAll(cmd.Context(), cfg, remote) {
				lines = append(lines, renderStatusLine(r.Name, textutil.Ternary(r.Passed, statusOK, statusError), r.Detail, colorize))
			}

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "check", false, "Also verify Slack and CASDA credentials over the network")
	return cmd
}

func outcomeBreakdown(entries []ledger.Entry) string {
	counts := map[ledger.Outcome]int{}
	for _, e := range entries {
		counts[e.Outcome]++
	}
	return formatCounts(counts)
}

func categoryBreakdown(tallies []votes.Tally, th votes.Thresholds) string {
	if len(tallies) == 0 {
		return "none"
	}
	counts := map[votes.Category]int{}
	for _, t := range tallies {
		counts[votes.Classify(t, th).Category]++
	}
	return formatCounts(counts)
}

func formatCounts[K ~string](counts map[K]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, counts[K(k)]))
	}
	return strings.Join(parts, ", ")
}

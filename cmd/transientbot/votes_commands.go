package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"transientbot/internal/votes"
)

func newVotesCommand(ctx *commandContext) *cobra.Command {
	votesCmd := &cobra.Command{
		Use:   "votes",
		Short: "Collect and report reaction votes on posted transients",
	}
	votesCmd.AddCommand(newVotesSyncCommand(ctx))
	votesCmd.AddCommand(newVotesReportCommand(ctx))
	votesCmd.AddCommand(newVotesListenCommand(ctx))
	return votesCmd
}

func (c *commandContext) openVotes() (*votes.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return votes.Open(cfg.VotesDBPath())
}

func newVotesSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh tallies from the reactions on every posted alert",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.SlackEnabled() && ctx.notifier == nil {
				return errors.New("slack is not configured; set slack.bot_token and slack.channel_id")
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openVotes()
			if err != nil {
				return err
			}
			defer store.Close()

			collector := votes.NewCollector(store, cfg.Paths.ProcessedStore, ctx.notifications(cfg, logger), logger)
			result, err := collector.Sync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Checked %d alert(s): %d updated, %d failed\n", result.Checked, result.Updated, result.Failed)
			return nil
		},
	}
}

func newVotesReportCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show classified tallies in follow-up priority order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openVotes()
			if err != nil {
				return err
			}
			defer store.Close()

			tallies, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			ranked := votes.Rank(tallies)
			if limit > 0 && len(ranked) > limit {
				ranked = ranked[:limit]
			}
			th := votes.ThresholdsFromConfig(cfg.Voting)

			type reportRow struct {
				votes.Tally
				Classification votes.Classification `json:"classification"`
				Priority       int                  `json:"priority"`
			}
			rows := make([]reportRow, 0, len(ranked))
			for _, t := range ranked {
				rows = append(rows, reportRow{Tally: t, Classification: votes.Classify(t, th), Priority: votes.Priority(t)})
			}
			if asJSON {
				return writeJSON(cmd, rows)
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No votes recorded yet (run `transientbot votes sync`)")
				return nil
			}
			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				table = append(table, []string{
					r.TransientID,
					strconv.Itoa(r.Priority),
					string(r.Classification.Category),
					fmt.Sprintf("%.0f%%", r.Classification.Confidence*100),
					strconv.Itoa(r.AGN),
					strconv.Itoa(r.Interesting),
					strconv.Itoa(r.Star),
					strconv.Itoa(r.Junk),
				})
			}
			fmt.Fprintln(out, renderTable(out,
				[]column{col("ID"), numCol("Priority"), col("Class"), numCol("Conf"),
					numCol("AGN"), numCol("Interesting"), numCol("Star"), numCol("Junk")},
				table,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the top N transients")
	return cmd
}

func newVotesListenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Follow reaction events over Slack Socket Mode and update tallies live",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openVotes()
			if err != nil {
				return err
			}
			defer store.Close()

			collector := votes.NewCollector(store, cfg.Paths.ProcessedStore, ctx.notifications(cfg, logger), logger)
			listener, err := votes.NewListener(cfg.Slack, collector, logger)
			if err != nil {
				return err
			}
			listenCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if err := listener.Start(listenCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

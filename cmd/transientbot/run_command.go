package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"transientbot/internal/config"
	"transientbot/internal/logging"
	"transientbot/internal/monitor"
	"transientbot/internal/preflight"
	"transientbot/internal/scheduler"
	"transientbot/internal/statusapi"
	"transientbot/internal/votes"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Perform one notification run and exit",
		Long: "Read the source list, post every transient not yet in the processed-state\n" +
			"store, and record the outcomes. Intended to be invoked once a day by cron or\n" +
			"a systemd timer.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !dryRun && !cfg.SlackEnabled() && ctx.notifier == nil {
				return errors.New("slack.bot_token and slack.channel_id are required (set SLACK_BOT_TOKEN/SLACK_CHANNEL_ID or use --dry-run)")
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			summary, err := ctx.runner(cfg, logger).Run(runCtx, dryRun)
			if err != nil {
				return err
			}
			pruneRetained(cfg, logger)
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be posted without fetching, posting, or recording")
	return cmd
}

func printSummary(out io.Writer, s monitor.Summary) {
	if s.DryRun {
		fmt.Fprintf(out, "Dry run: %d candidate(s), %d selected, %d deferred, %d baseline\n",
			s.Candidates, len(s.Selected), s.Deferred, s.Baseline)
		for _, id := range s.Selected {
			fmt.Fprintf(out, "  would post %s\n", id)
		}
		return
	}
	fmt.Fprintf(out, "Run %s: posted %d, no imagery %d, failed %d, invalid %d, baseline %d, deferred %d\n",
		s.RunID, s.Posted, s.NoImagery, s.Failed, s.Invalid, s.Baseline, s.Deferred)
}

func pruneRetained(cfg *config.Config, logger *slog.Logger) {
	logging.Prune(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.ImagesDir, Pattern: "*_thumb.png"},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "*.log", Exclude: []string{cfg.LogPath()}},
	)
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run now and then daily at monitor.daily_at, tracking votes live",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.SlackEnabled() && ctx.notifier == nil {
				return errors.New("slack.bot_token and slack.channel_id are required for watch mode")
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			watchCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runWatch(watchCtx, ctx, cfg, logger)
		},
	}
}

func runWatch(ctx context.Context, cmdCtx *commandContext, cfg *config.Config, logger *slog.Logger) error {
	daily, err := scheduler.FromConfig(cfg, logger)
	if err != nil {
		return err
	}
	store, err := votes.Open(cfg.VotesDBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	for _, r := range preflight.Failed(preflight.RunAll(ctx, cfg, cmdCtx.notifier == nil)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "scheduled runs may fail until this is fixed"),
		)
	}

	notifier := cmdCtx.notifications(cfg, logger)
	collector := votes.NewCollector(store, cfg.Paths.ProcessedStore, notifier, logger)
	runner := cmdCtx.runner(cfg, logger)

	api := statusapi.New(cfg.Status.Bind, cfg.Paths.ProcessedStore, store, votes.ThresholdsFromConfig(cfg.Voting), logger)
	if err := api.Start(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if cfg.Slack.Voting && strings.TrimSpace(cfg.Slack.AppToken) != "" {
		listener, err := votes.NewListener(cfg.Slack, collector, logger)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(logger, "vote listener stopped", "vote_listener_stopped", logging.Error(err))
			}
		}()
	}

	err = daily.Run(ctx, func(ctx context.Context) error {
		_, err := runner.Run(ctx, false)
		if errors.Is(err, monitor.ErrLocked) {
			logger.Info("another run holds the lock; skipping this slot")
			return nil
		}
		if err != nil {
			return err
		}
		if cfg.Slack.Voting {
			if _, err := collector.Sync(ctx); err != nil {
				logging.WarnWithContext(logger, "vote sync failed", "vote_sync_failed", logging.Error(err))
			}
		}
		pruneRetained(cfg, logger)
		return nil
	})
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("watch stopped")
		return nil
	}
	return err
}

package monitor

import (
	"context"
	"errors"
	"fmt"

	"transientbot/internal/ledger"
	"transientbot/internal/logging"
)

// MarkProcessed records every unseen source-list identifier as baseline
// without fetching or posting. Later runs then only announce rows added after
// it. dryRun reports the identifiers without writing.
func (r *Runner) MarkProcessed(ctx context.Context, dryRun bool) (Summary, error) {
	summary := Summary{RunID: r.runID(), DryRun: dryRun}
	ctx = logging.WithRunID(ctx, summary.RunID)
	logger := logging.WithContext(ctx, r.logger)

	if !dryRun {
		lock, err := r.acquire()
		if err != nil {
			return summary, err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logging.WarnWithContext(logger, "failed to release run lock", "lock_release_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "next run may report the lock as busy"),
				)
			}
		}()
	}

	plan, err := r.Plan(ctx)
	if err != nil {
		return summary, err
	}
	summary.FirstRun = plan.FirstRun
	summary.Candidates = len(plan.Unseen)
	summary.Selected = ids(plan.Unseen)
	if dryRun {
		summary.Baseline = len(plan.Unseen)
		return summary, nil
	}

	at := r.now()
	for _, t := range plan.Unseen {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := plan.Ledger.Append(baselineEntry(t, at)); err != nil {
			if errors.Is(err, ledger.ErrDuplicate) {
				continue
			}
			return summary, fmt.Errorf("record baseline: %w", err)
		}
		summary.Baseline++
	}

	logger.Info("marked unseen transients processed",
		logging.Int("baseline", summary.Baseline),
		logging.String(logging.FieldEventType, "baseline_recorded"),
	)
	return summary, nil
}

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"transientbot/internal/compose"
	"transientbot/internal/imagery"
	"transientbot/internal/ledger"
	"transientbot/internal/logging"
	"transientbot/internal/notifications"
	"transientbot/internal/transients"
)

func newRunID() string {
	return uuid.NewString()
}

// Run performs one complete run. dryRun computes the selection without
// fetching, posting, or writing.
func (r *Runner) Run(ctx context.Context, dryRun bool) (Summary, error) {
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
		logging.ErrorWithContext(logger, "run aborted", "run_aborted",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the file named in the error; nothing was posted or recorded"),
		)
		return summary, err
	}
	summary.FirstRun = plan.FirstRun
	summary.Candidates = plan.candidates()
	summary.Deferred = len(plan.Deferred)
	summary.Selected = ids(plan.Selected)

	logger.Info("run started",
		logging.Bool("first_run", plan.FirstRun),
		logging.Int("unseen", len(plan.Unseen)),
		logging.Int("selected", len(plan.Selected)),
		logging.Int("deferred", len(plan.Deferred)),
		logging.Int("baseline", len(plan.Baseline)),
		logging.Bool("dry_run", dryRun),
		logging.String(logging.FieldEventType, "run_started"),
	)

	if dryRun {
		summary.Baseline = len(plan.Baseline)
		return summary, nil
	}

	for i, t := range plan.Selected {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		outcome := r.process(ctx, plan.Ledger, t)
		switch outcome {
		case ledger.OutcomePosted:
			summary.Posted++
		case ledger.OutcomeNoImagery:
			summary.NoImagery++
		case ledger.OutcomeError:
			summary.Invalid++
		default:
			summary.Failed++
		}
		if posted(outcome) && i < len(plan.Selected)-1 {
			if err := r.sleep(ctx, r.postDelay); err != nil {
				return summary, err
			}
		}
	}

	if plan.FirstRun {
		at := r.now()
		for _, t := range plan.Baseline {
			if err := plan.Ledger.Append(baselineEntry(t, at)); err != nil {
				if errors.Is(err, ledger.ErrDuplicate) {
					continue
				}
				return summary, fmt.Errorf("record baseline: %w", err)
			}
			summary.Baseline++
		}
	}

	logger.Info("run complete",
		logging.Int("candidates", summary.Candidates),
		logging.Int("posted", summary.Posted),
		logging.Int("no_imagery", summary.NoImagery),
		logging.Int("failed", summary.Failed),
		logging.Int("invalid", summary.Invalid),
		logging.Int("baseline", summary.Baseline),
		logging.Int("deferred", summary.Deferred),
		logging.String(logging.FieldEventType, "run_complete"),
	)
	return summary, nil
}

func posted(o ledger.Outcome) bool {
	return o == ledger.OutcomePosted || o == ledger.OutcomeNoImagery
}

// process handles one identifier end to end and returns the recorded
// outcome, or "" when nothing was recorded.
func (r *Runner) process(ctx context.Context, led *ledger.Ledger, t transients.Transient) ledger.Outcome {
	ctx = logging.WithTransientID(ctx, t.ID)
	logger := logging.WithContext(ctx, r.logger)

	if t.HasCoordinates && !t.Coordinates.Valid() {
		logging.WarnWithContext(logger, "invalid coordinates; recording as error", "invalid_coordinates",
			logging.String("coordinates", t.Coordinates.String()),
			logging.String(logging.FieldErrorHint, "correct the source list row"),
			logging.String(logging.FieldImpact, "transient will not be posted"),
		)
		if err := led.Append(ledger.EntryFor(t, ledger.OutcomeError, r.now())); err != nil {
			r.recordFailed(logger, err)
			return ""
		}
		return ledger.OutcomeError
	}

	msg, err := r.prepare(ctx, logger, t)
	if err != nil {
		logging.WarnWithContext(logger, "imagery fetch failed; will retry next run", "imagery_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check survey credentials and connectivity"),
			logging.String(logging.FieldImpact, "transient left pending"),
		)
		return ""
	}

	result, err := r.notifier.PostTransient(ctx, msg)
	if err != nil {
		logging.WarnWithContext(logger, "post failed; will retry next run", "post_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the Slack token, channel, and chat:write scope"),
			logging.String(logging.FieldImpact, "transient left pending"),
		)
		return ""
	}
	if r.voting && result.TS != "" {
		if err := r.notifier.AddVotingReactions(ctx, result); err != nil {
			logging.WarnWithContext(logger, "voting reactions incomplete", "reactions_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the bot has reactions:write scope"),
				logging.String(logging.FieldImpact, "alert posted without all voting reactions"),
			)
		}
	}

	outcome := ledger.OutcomePosted
	if msg.ImagePath == "" {
		outcome = ledger.OutcomeNoImagery
	}
	entry := ledger.EntryFor(t, outcome, r.now())
	entry.MessageTS = result.TS
	entry.Channel = result.Channel
	if err := led.Append(entry); err != nil {
		r.recordFailed(logger, err)
		return ""
	}
	logger.Info("transient processed",
		logging.String(logging.FieldOutcome, string(outcome)),
		logging.Float64("test_statistic", finiteOrZero(t.TestStatistic)),
		logging.String("surveys", strings.Join(msg.Surveys, ",")),
		logging.Bool("image_shared", result.ImageShared),
		logging.String(logging.FieldEventType, "transient_processed"),
	)
	return outcome
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (r *Runner) recordFailed(logger *slog.Logger, err error) {
	logging.ErrorWithContext(logger, "failed to record outcome", "store_append_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the processed-state store is writable"),
	)
}

// prepare fetches every enabled survey and composes the thumbnail. Missing
// imagery is not an error; any other fetch failure is.
func (r *Runner) prepare(ctx context.Context, logger *slog.Logger, t transients.Transient) (notifications.Message, error) {
	msg := notifications.Message{Transient: t}
	if !t.HasCoordinates {
		logger.Info("no coordinates; posting without imagery")
		return msg, nil
	}
	target := imagery.Target{ID: t.ID, Coordinates: t.Coordinates}

	var panels []*imagery.Cutout
	for _, fetcher := range r.fetchers.Panels {
		cutout, err := fetcher.Fetch(ctx, target)
		if errors.Is(err, imagery.ErrNoImagery) {
			logger.Info("no imagery from survey", logging.String(logging.FieldSurvey, fetcher.Survey()))
			continue
		}
		if err != nil {
			return msg, fmt.Errorf("%s: %w", fetcher.Survey(), err)
		}
		panels = append(panels, cutout)
		msg.Surveys = append(msg.Surveys, cutout.Survey)
	}
	if len(panels) == 0 {
		return msg, nil
	}

	var contours *imagery.Cutout
	if r.fetchers.Contours != nil {
		cutout, err := r.fetchers.Contours.Fetch(ctx, target)
		switch {
		case err == nil:
			contours = cutout
		case errors.Is(err, imagery.ErrNoImagery):
		default:
			logging.WarnWithContext(logger, "ts map unreadable; composing without contours", "tsmap_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "thumbnail has no contour overlay"),
			)
		}
	}

	path, err := r.composer.Compose(t, panels, contours)
	if errors.Is(err, compose.ErrNothingToCompose) {
		msg.Surveys = nil
		return msg, nil
	}
	if err != nil {
		return msg, fmt.Errorf("compose thumbnail: %w", err)
	}
	msg.ImagePath = path
	return msg, nil
}

// Preview fetches and composes the thumbnail for one identifier from the
// source list without posting or recording anything.
func (r *Runner) Preview(ctx context.Context, id string) (notifications.Message, error) {
	list, err := transients.Load(r.sourceList)
	if err != nil {
		return notifications.Message{}, fmt.Errorf("read source list: %w", err)
	}
	t, ok := transients.Index(list)[id]
	if !ok {
		return notifications.Message{}, fmt.Errorf("transient %q not in source list", id)
	}
	if t.HasCoordinates && !t.Coordinates.Valid() {
		return notifications.Message{}, fmt.Errorf("transient %q has invalid coordinates %s", id, t.Coordinates)
	}
	ctx = logging.WithTransientID(ctx, id)
	return r.prepare(ctx, logging.WithContext(ctx, r.logger), t)
}

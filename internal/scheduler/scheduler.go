// Package scheduler runs a job once at startup and then daily at a fixed
// wall-clock time.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"transientbot/internal/config"
	"transientbot/internal/logging"
)

// Daily fires at Hour:Minute in Location every day.
type Daily struct {
	Hour     int
	Minute   int
	Location *time.Location

	logger *slog.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

// New builds a daily schedule.
func New(hour, minute int, loc *time.Location, logger *slog.Logger) *Daily {
	if loc == nil {
		loc = time.Local
	}
	return &Daily{
		Hour:     hour,
		Minute:   minute,
		Location: loc,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		now:      time.Now,
		after:    time.After,
	}
}

// FromConfig reads monitor.daily_at and monitor.timezone.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Daily, error) {
	hour, minute, loc, err := cfg.Schedule()
	if err != nil {
		return nil, err
	}
	return New(hour, minute, loc, logger), nil
}

// Next returns the first occurrence strictly after now. Across DST changes
// the result is the configured wall-clock time as normalized by time.Date.
func (d *Daily) Next(now time.Time) time.Time {
	local := now.In(d.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, 0, 0, d.Location)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, d.Hour, d.Minute, 0, 0, d.Location)
	}
	return next
}

// Run calls fn immediately and then at every scheduled time until ctx is
// cancelled. A failing invocation is logged and the schedule continues.
func (d *Daily) Run(ctx context.Context, fn func(context.Context) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.WarnWithContext(d.logger, "scheduled run failed; will retry at next slot", "scheduled_run_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "pending transients wait for the next scheduled run"),
			)
		}

		next := d.Next(d.now())
		wait := next.Sub(d.now())
		d.logger.Info("next run scheduled",
			logging.String("at", next.Format(time.RFC3339)),
			logging.Duration("in", wait.Round(time.Second)),
			logging.String(logging.FieldEventType, "run_scheduled"),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.after(wait):
		}
	}
}

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"transientbot/internal/compose"
	"transientbot/internal/config"
	"transientbot/internal/imagery"
	"transientbot/internal/logging"
	"transientbot/internal/notifications"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another transientbot run is in progress")

// Dependencies are the collaborators a Runner drives.
type Dependencies struct {
	Fetchers imagery.Set
	Composer *compose.Composer
	Notifier notifications.Service
}

// Runner executes scheduled runs.
type Runner struct {
	sourceList   string
	storePath    string
	lockPath     string
	maxPosts     int
	lookbackDays int
	postDelay    time.Duration
	voting       bool

	fetchers imagery.Set
	composer *compose.Composer
	notifier notifications.Service
	logger   *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	runID func() string
}

// New constructs a runner from configuration and collaborators.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Runner {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg, logger)
	}
	composer := deps.Composer
	if composer == nil {
		composer = compose.FromConfig(cfg)
	}
	return &Runner{
		sourceList:   cfg.Paths.SourceList,
		storePath:    cfg.Paths.ProcessedStore,
		lockPath:     cfg.LockPath(),
		maxPosts:     cfg.Monitor.MaxPostsPerRun,
		lookbackDays: cfg.Monitor.FirstRunLookbackDays,
		postDelay:    time.Duration(cfg.Slack.PostDelaySeconds) * time.Second,
		voting:       cfg.Slack.Voting,
		fetchers:     deps.Fetchers,
		composer:     composer,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "monitor"),
		now:          time.Now,
		sleep:        sleepWithContext,
		runID:        newRunID,
	}
}

// Summary reports what one run did.
type Summary struct {
	RunID      string
	FirstRun   bool
	Candidates int
	Posted     int
	NoImagery  int
	Failed     int
	Invalid    int
	Baseline   int
	Deferred   int
	// Selected lists the identifiers chosen for processing, in order.
	Selected []string
	DryRun   bool
}

func (r *Runner) acquire() (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(r.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	lock := flock.New(r.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return lock, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package votes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"transientbot/internal/ledger"
	"transientbot/internal/logging"
	"transientbot/internal/notifications"
)

// ReactionSource reads the current reactions on a posted alert.
type ReactionSource interface {
	MessageReactions(ctx context.Context, posted notifications.Posted) (map[string]int, error)
}

// SyncResult summarizes one Collector.Sync pass.
type SyncResult struct {
	Checked int
	Updated int
	Failed  int
}

// Collector refreshes tallies for every posted alert in the processed-state
// store. The store is re-read on each pass so alerts posted by a concurrent
// run are picked up.
type Collector struct {
	store      *Store
	ledgerPath string
	source     ReactionSource
	logger     *slog.Logger
	now        func() time.Time
}

// NewCollector wires a collector.
func NewCollector(store *Store, ledgerPath string, source ReactionSource, logger *slog.Logger) *Collector {
	return &Collector{
		store:      store,
		ledgerPath: ledgerPath,
		source:     source,
		logger:     logging.NewComponentLogger(logger, "votes"),
		now:        time.Now,
	}
}

// Tracked returns the delivered alerts (with or without imagery) that carry
// a message reference.
func (c *Collector) Tracked() ([]ledger.Entry, error) {
	led, err := ledger.Load(c.ledgerPath)
	if err != nil {
		return nil, err
	}
	var out []ledger.Entry
	for _, entry := range led.Entries() {
		delivered := entry.Outcome == ledger.OutcomePosted || entry.Outcome == ledger.OutcomeNoImagery
		if delivered && entry.MessageTS != "" && entry.Channel != "" {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Sync refreshes every tracked alert. Individual failures are logged and
// counted; only a failure to read the processed-state store aborts the pass.
func (c *Collector) Sync(ctx context.Context) (SyncResult, error) {
	var result SyncResult
	entries, err := c.Tracked()
	if err != nil {
		return result, fmt.Errorf("load tracked alerts: %w", err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		changed, err := c.Refresh(ctx, entry.ID, entry.Channel, entry.MessageTS)
		if err != nil {
			result.Failed++
			logging.WarnWithContext(c.logger, "vote refresh failed", "vote_refresh_failed",
				logging.String(logging.FieldTransientID, entry.ID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the bot has channels:history scope"),
				logging.String(logging.FieldImpact, "tally for this transient is stale"),
			)
			continue
		}
		if changed {
			result.Updated++
		}
	}
	c.logger.Info("vote sync complete",
		logging.Int("checked", result.Checked),
		logging.Int("updated", result.Updated),
		logging.Int("failed", result.Failed),
		logging.String(logging.FieldEventType, "vote_sync_complete"),
	)
	return result, nil
}

// Refresh reads the reactions on one message and stores the resulting tally.
func (c *Collector) Refresh(ctx context.Context, id, channel, ts string) (bool, error) {
	if c.source == nil {
		return false, errors.New("no reaction source configured")
	}
	counts, err := c.source.MessageReactions(ctx, notifications.Posted{Channel: channel, TS: ts})
	if err != nil {
		return false, err
	}
	tally := TallyFromReactions(id, channel, ts, counts)
	tally.UpdatedAt = c.now().UTC()
	changed, err := c.store.Upsert(ctx, tally)
	if err != nil {
		return false, err
	}
	if changed {
		c.logger.Debug("tally updated",
			logging.String(logging.FieldTransientID, id),
			logging.Int("votes", tally.Total()),
		)
	}
	return changed, nil
}

// Resolve maps a message reference back to the transient it announced.
func (c *Collector) Resolve(ctx context.Context, channel, ts string) (string, bool, error) {
	tally, err := c.store.FindByMessage(ctx, channel, ts)
	if err != nil {
		return "", false, err
	}
	if tally != nil {
		return tally.TransientID, true, nil
	}
	entries, err := c.Tracked()
	if err != nil {
		return "", false, err
	}
	for _, entry := range entries {
		if entry.Channel == channel && entry.MessageTS == ts {
			return entry.ID, true, nil
		}
	}
	return "", false, nil
}

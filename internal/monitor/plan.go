package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"transientbot/internal/ledger"
	"transientbot/internal/novelty"
	"transientbot/internal/transients"
)

// Plan is the selection computed for one run.
type Plan struct {
	Ledger   *ledger.Ledger
	FirstRun bool
	// Unseen is the novelty filter result before status and date rules.
	Unseen []transients.Transient
	// Selected will be processed this run, in source order.
	Selected []transients.Transient
	// Deferred passed selection but exceeded the per-run cap.
	Deferred []transients.Transient
	// Baseline is recorded without posting on the first run.
	Baseline []transients.Transient
}

// Plan reads the source list and store and applies the selection rules.
// Either file failing to parse is fatal.
func (r *Runner) Plan(ctx context.Context) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}
	list, err := transients.Load(r.sourceList)
	if err != nil {
		return Plan{}, fmt.Errorf("read source list: %w", err)
	}
	led, err := ledger.Load(r.storePath)
	if err != nil {
		return Plan{}, fmt.Errorf("read processed-state store: %w", err)
	}
	return r.plan(list, led), nil
}

func (r *Runner) plan(list []transients.Transient, led *ledger.Ledger) Plan {
	index := transients.Index(list)
	unseenIDs := novelty.Filter(transients.IDs(list), led.IDs())

	p := Plan{Ledger: led, FirstRun: led.Empty()}
	p.Unseen = make([]transients.Transient, 0, len(unseenIDs))
	for _, id := range unseenIDs {
		p.Unseen = append(p.Unseen, index[id])
	}

	var eligible []transients.Transient
	if p.FirstRun {
		// Only fresh, unreviewed rows are announced on the first run; rows
		// the pipeline already flagged as new become the baseline. Rows with
		// no detection time cannot be aged and are announced.
		cutoff := r.now().AddDate(0, 0, -r.lookbackDays)
		for _, t := range p.Unseen {
			status := strings.TrimSpace(t.Status)
			switch {
			case status == "" && (t.Time.IsZero() || t.Time.After(cutoff)):
				eligible = append(eligible, t)
			case strings.EqualFold(status, transients.StatusNew):
				p.Baseline = append(p.Baseline, t)
			}
		}
	} else {
		for _, t := range p.Unseen {
			if t.Candidate() {
				eligible = append(eligible, t)
			}
		}
	}

	if r.maxPosts > 0 && len(eligible) > r.maxPosts {
		p.Selected = eligible[:r.maxPosts]
		p.Deferred = eligible[r.maxPosts:]
	} else {
		p.Selected = eligible
	}
	return p
}

// candidates counts rows that passed selection before the cap.
func (p Plan) candidates() int {
	return len(p.Selected) + len(p.Deferred)
}

func ids(list []transients.Transient) []string {
	return transients.IDs(list)
}

func baselineEntry(t transients.Transient, at time.Time) ledger.Entry {
	return ledger.EntryFor(t, ledger.OutcomeBaseline, at)
}

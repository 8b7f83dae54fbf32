package votes

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"transientbot/internal/ledger"
	"transientbot/internal/logging"
	"transientbot/internal/notifications"
)

type fakeReactions struct {
	mu     sync.Mutex
	counts map[string]map[string]int
	failOn string
	calls  int
}

func (f *fakeReactions) MessageReactions(_ context.Context, posted notifications.Posted) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if posted.TS == f.failOn {
		return nil, errors.New("history unavailable")
	}
	return f.counts[posted.TS], nil
}

func (f *fakeReactions) set(ts string, counts map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[ts] = counts
}

func writeLedger(t *testing.T, entries ...ledger.Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "processed.csv")
	led, err := ledger.Load(path)
	if err != nil {
		t.Fatalf("ledger.Load: %v", err)
	}
	for _, entry := range entries {
		if err := led.Append(entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return path
}

func TestCollectorSync(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	path := writeLedger(t,
		ledger.Entry{ID: "T1", Outcome: ledger.OutcomePosted, Channel: "C1", MessageTS: "1.0"},
		ledger.Entry{ID: "T2", Outcome: ledger.OutcomePosted, Channel: "C1", MessageTS: "2.0"},
		ledger.Entry{ID: "T3", Outcome: ledger.OutcomeNoImagery},
		ledger.Entry{ID: "T5", Outcome: ledger.OutcomeNoImagery, Channel: "C1", MessageTS: "5.0"},
		ledger.Entry{ID: "T6", Outcome: ledger.OutcomeError, Channel: "C1", MessageTS: "6.0"},
		ledger.Entry{ID: "T4", Outcome: ledger.OutcomePosted, Channel: "C1", MessageTS: "4.0"},
	)
	source := &fakeReactions{
		counts: map[string]map[string]int{
			"1.0": {"milky_way": 3},
			"2.0": {},
		},
		failOn: "4.0",
	}
	collector := NewCollector(store, path, source, logging.NewNop())

	result, err := collector.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Checked != 4 || result.Updated != 3 || result.Failed != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	got, err := store.Get(ctx, "T1")
	if err != nil || got == nil || got.AGN != 3 {
		t.Fatalf("T1 tally = %+v err=%v", got, err)
	}

	again, err := collector.Sync(ctx)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if again.Updated != 0 {
		t.Fatalf("unchanged reactions should not update, got %+v", again)
	}
}

func TestCollectorResolve(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	path := writeLedger(t, ledger.Entry{ID: "T1", Outcome: ledger.OutcomePosted, Channel: "C1", MessageTS: "1.0"})
	collector := NewCollector(store, path, &fakeReactions{counts: map[string]map[string]int{}}, nil)

	id, ok, err := collector.Resolve(ctx, "C1", "1.0")
	if err != nil || !ok || id != "T1" {
		t.Fatalf("Resolve = %q %v %v", id, ok, err)
	}
	if _, ok, err := collector.Resolve(ctx, "C1", "9.9"); err != nil || ok {
		t.Fatalf("expected unknown message, ok=%v err=%v", ok, err)
	}
}

package monitor

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"transientbot/internal/compose"
	"transientbot/internal/config"
	"transientbot/internal/imagery"
	"transientbot/internal/ledger"
	"transientbot/internal/logging"
	"transientbot/internal/notifications"
	"transientbot/internal/testsupport"
	"transientbot/internal/transients"
)

type fakeFetcher struct {
	survey  string
	err     error
	failFor map[string]error
	calls   int
}

func (f *fakeFetcher) Survey() string { return f.survey }

func (f *fakeFetcher) Fetch(_ context.Context, target imagery.Target) (*imagery.Cutout, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := f.failFor[target.ID]; err != nil {
		return nil, err
	}
	data := make([]float64, 16*16)
	for i := range data {
		data[i] = float64(i)
	}
	return &imagery.Cutout{Survey: f.survey, Width: 16, Height: 16, Data: data, PixelScaleArcsec: 2}, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	posts     []notifications.Message
	reactions int
	failPost  bool
	failIDs   map[string]bool
}

func (n *fakeNotifier) PostTransient(_ context.Context, msg notifications.Message) (notifications.Posted, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failPost || n.failIDs[msg.Transient.ID] {
		return notifications.Posted{}, errors.New("slack down")
	}
	n.posts = append(n.posts, msg)
	return notifications.Posted{Channel: "C1", TS: msg.Transient.ID + ".ts", ImageShared: msg.ImagePath != ""}, nil
}

func (n *fakeNotifier) AddVotingReactions(context.Context, notifications.Posted) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reactions++
	return nil
}

func (n *fakeNotifier) MessageReactions(context.Context, notifications.Posted) (map[string]int, error) {
	return map[string]int{}, nil
}

func (n *fakeNotifier) TestNotification(context.Context) error { return nil }

func (n *fakeNotifier) postedIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.posts))
	for _, p := range n.posts {
		out = append(out, p.Transient.ID)
	}
	return out
}

type harness struct {
	cfg      *config.Config
	runner   *Runner
	notifier *fakeNotifier
	fetcher  *fakeFetcher
	sleeps   []time.Duration
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Slack.PostDelaySeconds = 2
	h := &harness{
		cfg:      cfg,
		notifier: &fakeNotifier{},
		fetcher:  &fakeFetcher{survey: "RACS"},
	}
	h.runner = New(cfg, Dependencies{
		Fetchers: imagery.Set{Panels: []imagery.Fetcher{h.fetcher}},
		Composer: compose.New(cfg.Paths.ImagesDir, compose.Options{PanelSize: 32}),
		Notifier: h.notifier,
	}, logging.NewNop())
	h.runner.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	h.runner.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	h.runner.runID = func() string { return "run-test" }
	return h
}

func seedStore(t *testing.T, cfg *config.Config, ids ...string) {
	t.Helper()
	for _, id := range ids {
		testsupport.MustAppend(t, cfg, ledger.Entry{ID: id, Outcome: ledger.OutcomeBaseline})
	}
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunPostsOnlyUnseenIdentifiersOnce(t *testing.T) {
	h := newHarness(t, testsupport.WithSourceList("T1 150 -30.5", "T2 151 -31", "T1 150 -30.5"))
	seedStore(t, h.cfg, "T2")

	summary, err := h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Posted != 1 || summary.Candidates != 1 || summary.RunID != "run-test" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := h.notifier.postedIDs(); !equalIDs(got, []string{"T1"}) {
		t.Fatalf("posted %v, want [T1]", got)
	}
	if h.notifier.reactions != 1 {
		t.Fatalf("expected voting reactions once, got %d", h.notifier.reactions)
	}
	post := h.notifier.posts[0]
	if post.ImagePath == "" || len(post.Surveys) != 1 || post.Surveys[0] != "RACS" {
		t.Fatalf("expected composed thumbnail, got %+v", post)
	}
	if _, err := os.Stat(post.ImagePath); err != nil {
		t.Fatalf("thumbnail missing: %v", err)
	}

	entry, ok := testsupport.MustLoadLedger(t, h.cfg).Lookup("T1")
	if !ok || entry.Outcome != ledger.OutcomePosted || entry.MessageTS != "T1.ts" || entry.Channel != "C1" {
		t.Fatalf("unexpected entry %+v ok=%v", entry, ok)
	}

	again, err := h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.Posted != 0 || again.Candidates != 0 || len(h.notifier.postedIDs()) != 1 {
		t.Fatalf("second run should post nothing, got %+v", again)
	}
}

func TestRunMalformedStoreIsFatal(t *testing.T) {
	h := newHarness(t, testsupport.WithSourceList("T3 10 10"))
	testsupport.WriteLines(t, h.cfg.Paths.ProcessedStore, "id,processed_at,outcome", `T9,"unterminated`)
	before, err := os.ReadFile(h.cfg.Paths.ProcessedStore)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}

	_, err = h.runner.Run(context.Background(), false)
	if !errors.Is(err, ledger.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if len(h.notifier.postedIDs()) != 0 || h.fetcher.calls != 0 {
		t.Fatal("malformed store must not trigger fetches or posts")
	}
	after, _ := os.ReadFile(h.cfg.Paths.ProcessedStore)
	if string(before) != string(after) {
		t.Fatal("store must not be modified")
	}
}

func TestRunFirstRunPostsRecentAndRecordsBaseline(t *testing.T) {
	h := newHarness(t, testsupport.WithSourceList(
		testsupport.TSVHeader,
		testsupport.TSVRow("J1", "obs1", "150", "-30", "F1", "2024-05-25T00:00:00", "40", "3.2", ""),
		testsupport.TSVRow("J2", "obs1", "151", "-30", "F1", "2023-01-01T00:00:00", "40", "3.2", ""),
		testsupport.TSVRow("J3", "obs1", "152", "-30", "F1", "2024-05-30T00:00:00", "40", "3.2", "new"),
		testsupport.TSVRow("J4", "obs1", "153", "-30", "F1", "2024-05-30T00:00:00", "40", "3.2", "reviewed"),
	))

	summary, err := h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.FirstRun || summary.Posted != 1 || summary.Baseline != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := h.notifier.postedIDs(); !equalIDs(got, []string{"J1_obs1"}) {
		t.Fatalf("posted %v", got)
	}
	led := testsupport.MustLoadLedger(t, h.cfg)
	if entry, ok := led.Lookup("J3_obs1"); !ok || entry.Outcome != ledger.OutcomeBaseline {
		t.Fatalf("expected baseline entry for J3, got %+v ok=%v", entry, ok)
	}
	if led.Contains("J2_obs1") || led.Contains("J4_obs1") {
		t.Fatal("old and reviewed rows must not be recorded on the first run")
	}
}

func TestRunCapsPostsAndPauses(t *testing.T) {
	h := newHarness(t,
		testsupport.WithSourceList("A 1 1", "B 2 2", "C 3 3"),
		testsupport.WithMaxPosts(2),
	)
	seedStore(t, h.cfg, "seed")

	summary, err := h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Posted != 2 || summary.Deferred != 1 || summary.Candidates != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != 2*time.Second {
		t.Fatalf("expected one 2s pause, got %v", h.sleeps)
	}
	next, err := h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if next.Posted != 1 || !equalIDs(next.Selected, []string{"C"}) {
		t.Fatalf("deferred identifier should post next run, got %+v", next)
	}
}

func TestRunOutcomes(t *testing.T) {
	t.Run("no imagery", func(t *testing.T) {
		h := newHarness(t, testsupport.WithSourceList("N1 10 10"))
		seedStore(t, h.cfg, "seed")
		h.fetcher.err = imagery.ErrNoImagery

		summary, err := h.runner.Run(context.Background(), false)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if summary.NoImagery != 1 || h.notifier.posts[0].ImagePath != "" {
			t.Fatalf("expected post without image, got %+v", summary)
		}
		entry, _ := testsupport.MustLoadLedger(t, h.cfg).Lookup("N1")
		if entry.Outcome != ledger.OutcomeNoImagery {
			t.Fatalf("outcome = %s", entry.Outcome)
		}
	})

	t.Run("fetch failure leaves identifier pending", func(t *testing.T) {
		h := newHarness(t, testsupport.WithSourceList("F1 10 10"))
		seedStore(t, h.cfg, "seed")
		h.fetcher.err = errors.New("connection reset")

		summary, err := h.runner.Run(context.Background(), false)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if summary.Failed != 1 || len(h.notifier.postedIDs()) != 0 {
			t.Fatalf("unexpected summary %+v", summary)
		}
		if testsupport.MustLoadLedger(t, h.cfg).Contains("F1") {
			t.Fatal("failed identifier must not be recorded")
		}
	})

	t.Run("post failure leaves identifier pending", func(t *testing.T) {
		h := newHarness(t, testsupport.WithSourceList("P1 10 10"))
		seedStore(t, h.cfg, "seed")
		h.notifier.failPost = true

		summary, err := h.runner.Run(context.Background(), false)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if summary.Failed != 1 || testsupport.MustLoadLedger(t, h.cfg).Contains("P1") {
			t.Fatalf("unexpected summary %+v", summary)
		}
	})

	t.Run("invalid coordinates recorded as error", func(t *testing.T) {
		h := newHarness(t, testsupport.WithSourceList("BAD 10 95"))
		seedStore(t, h.cfg, "seed")

		summary, err := h.runner.Run(context.Background(), false)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if summary.Invalid != 1 || h.fetcher.calls != 0 {
			t.Fatalf("unexpected summary %+v", summary)
		}
		entry, _ := testsupport.MustLoadLedger(t, h.cfg).Lookup("BAD")
		if entry.Outcome != ledger.OutcomeError {
			t.Fatalf("outcome = %s", entry.Outcome)
		}
	})
}

func TestRunContinuesAfterPerIdentifierFailure(t *testing.T) {
	t.Run("fetch", func(t *testing.T) {
		h := newHarness(t, testsupport.WithSourceList("A 10 10", "B 11 11"))
		seedStore(t, h.cfg, "seed")
		h.fetcher.failFor = map[string]error{"A": errors.New("connection reset")}

		summary, err := h.runner.Run(context.Background(), false)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if summary.Failed != 1 || summary.Posted != 1 {
			t.Fatalf("unexpected summary %+v", summary)
		}
		if got := h.notifier.postedIDs(); !equalIDs(got, []string{"B"}) {
			t.Fatalf("posted %v, want [B]", got)
		}
		led := testsupport.MustLoadLedger(t, h.cfg)
		if led.Contains("A") {
			t.Fatal("failed identifier must not be recorded")
		}
		if entry, ok := led.Lookup("B"); !ok || entry.Outcome != ledger.OutcomePosted {
			t.Fatalf("expected B recorded as posted, got %+v ok=%v", entry, ok)
		}
	})

	t.Run("post", func(t *testing.T) {
		h := newHarness(t, testsupport.WithSourceList("A 10 10", "B 11 11"))
		seedStore(t, h.cfg, "seed")
		h.notifier.failIDs = map[string]bool{"A": true}

		summary, err := h.runner.Run(context.Background(), false)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if summary.Failed != 1 || summary.Posted != 1 {
			t.Fatalf("unexpected summary %+v", summary)
		}
		led := testsupport.MustLoadLedger(t, h.cfg)
		if led.Contains("A") || !led.Contains("B") {
			t.Fatalf("expected only B recorded, got %+v", led.Entries())
		}

		h.notifier.failIDs = nil
		retry, err := h.runner.Run(context.Background(), false)
		if err != nil {
			t.Fatalf("second Run: %v", err)
		}
		if retry.Posted != 1 || !equalIDs(retry.Selected, []string{"A"}) {
			t.Fatalf("failed identifier should be retried, got %+v", retry)
		}
	})
}

func TestRunMalformedSourceListIsFatal(t *testing.T) {
	h := newHarness(t, testsupport.WithSourceList("A 10 10", "B ten 11"))
	seedStore(t, h.cfg, "seed")
	before, err := os.ReadFile(h.cfg.Paths.ProcessedStore)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}

	_, err = h.runner.Run(context.Background(), false)
	if !errors.Is(err, transients.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if h.fetcher.calls != 0 || len(h.notifier.postedIDs()) != 0 {
		t.Fatal("malformed source list must not trigger fetches or posts")
	}
	after, _ := os.ReadFile(h.cfg.Paths.ProcessedStore)
	if string(before) != string(after) {
		t.Fatal("store must not be modified")
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	h := newHarness(t, testsupport.WithSourceList("D1 10 10", "D2 11 11"))
	seedStore(t, h.cfg, "seed")

	summary, err := h.runner.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.DryRun || !equalIDs(summary.Selected, []string{"D1", "D2"}) {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if h.fetcher.calls != 0 || len(h.notifier.postedIDs()) != 0 {
		t.Fatal("dry run must not fetch or post")
	}
	if testsupport.MustLoadLedger(t, h.cfg).Len() != 1 {
		t.Fatal("dry run must not write the store")
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t, testsupport.WithSourceList("L1 10 10"))
	if err := os.MkdirAll(h.cfg.Paths.StateDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	held := flock.New(h.cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	if _, err := h.runner.Run(context.Background(), false); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	h := newHarness(t, testsupport.WithSourceList("V1 10 10"))
	msg, err := h.runner.Preview(context.Background(), "V1")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if msg.ImagePath == "" {
		t.Fatal("expected thumbnail path")
	}
	if _, err := h.runner.Preview(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown identifier")
	}
	if len(h.notifier.postedIDs()) != 0 {
		t.Fatal("preview must not post")
	}
}

func TestFirstRunAnnouncesUndatedRows(t *testing.T) {
	h := newHarness(t, testsupport.WithSourceList("T3 10 10"))
	summary, err := h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.FirstRun || summary.Posted != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	again, err := h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.FirstRun || again.Candidates != 0 {
		t.Fatalf("second run should find nothing, got %+v", again)
	}
}

func TestMarkProcessedRecordsUnseenAsBaseline(t *testing.T) {
	h := newHarness(t, testsupport.WithSourceList("A 10 10", "B 11 11", "BAD 10 95"))
	seedStore(t, h.cfg, "A")

	summary, err := h.runner.MarkProcessed(context.Background(), false)
	if err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if summary.Baseline != 2 || !equalIDs(summary.Selected, []string{"B", "BAD"}) {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if h.fetcher.calls != 0 || len(h.notifier.postedIDs()) != 0 {
		t.Fatal("baseline must not fetch or post")
	}
	led := testsupport.MustLoadLedger(t, h.cfg)
	for _, id := range []string{"B", "BAD"} {
		if entry, ok := led.Lookup(id); !ok || entry.Outcome != ledger.OutcomeBaseline {
			t.Fatalf("expected %s recorded as baseline, got %+v ok=%v", id, entry, ok)
		}
	}

	next, err := h.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if next.Candidates != 0 {
		t.Fatalf("nothing should remain after baseline, got %+v", next)
	}
}

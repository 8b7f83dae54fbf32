package notifications_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"transientbot/internal/config"
	"transientbot/internal/notifications"
	"transientbot/internal/transients"
)

type fakeSlack struct {
	server *httptest.Server

	mu        sync.Mutex
	calls     map[string][]map[string]string
	reactions []string
}

func newFakeSlack(t *testing.T) *fakeSlack {
	t.Helper()
	fs := &fakeSlack{calls: map[string][]map[string]string{}}
	fs.server = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeSlack) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/upload" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}
	_ = r.ParseForm()
	method := strings.TrimPrefix(r.URL.Path, "/api/")
	form := map[string]string{}
	for key := range r.Form {
		form[key] = r.Form.Get(key)
	}
	fs.mu.Lock()
	fs.calls[method] = append(fs.calls[method], form)
	fs.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	var resp any
	switch method {
	case "chat.postMessage":
		resp = map[string]any{"ok": true, "channel": "C123", "ts": "1700000000.000100"}
	case "files.getUploadURLExternal":
		resp = map[string]any{"ok": true, "upload_url": fs.server.URL + "/upload", "file_id": "F1"}
	case "files.completeUploadExternal":
		resp = map[string]any{"ok": true, "files": []map[string]any{{"id": "F1", "title": "thumb"}}}
	case "reactions.add":
		name := r.Form.Get("name")
		fs.mu.Lock()
		fs.reactions = append(fs.reactions, name)
		fs.mu.Unlock()
		switch name {
		case "star":
			resp = map[string]any{"ok": false, "error": "already_reacted"}
		case "wastebasket":
			resp = map[string]any{"ok": false, "error": "invalid_name"}
		default:
			resp = map[string]any{"ok": true}
		}
	case "auth.test":
		resp = map[string]any{"ok": true, "user_id": "UBOT", "user": "transientbot"}
	case "conversations.history":
		resp = map[string]any{"ok": true, "messages": []map[string]any{{
			"type": "message",
			"ts":   "1700000000.000100",
			"text": "New transient detected: J1_obs1",
			"reactions": []map[string]any{
				{"name": "fire", "count": 3, "users": []string{"UBOT", "U1", "U2"}},
				{"name": "milky_way", "count": 1, "users": []string{"UBOT"}},
				{"name": "eyes", "count": 1, "users": []string{"U3"}},
			},
		}}}
	default:
		resp = map[string]any{"ok": false, "error": "unknown_method"}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (fs *fakeSlack) callsTo(method string) []map[string]string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]map[string]string(nil), fs.calls[method]...)
}

func (fs *fakeSlack) config() *config.Config {
	cfg := config.Default()
	cfg.Slack.BotToken = "xoxb-test"
	cfg.Slack.ChannelID = "C123"
	cfg.Slack.APIURL = fs.server.URL + "/api/"
	return &cfg
}

func sampleTransient() transients.Transient {
	return transients.Transient{
		ID:             "J1_obs1",
		Source:         "J1",
		Observation:    "obs1",
		Coordinates:    transients.Coordinates{RA: 150, Dec: -30.5},
		HasCoordinates: true,
		Field:          "VAST_0001",
		Time:           time.Date(2026, 10, 1, 12, 30, 0, 0, time.UTC),
		TestStatistic:  42.17,
		PeakFluxMJy:    3.456,
		FWHMDays:       math.NaN(),
		Status:         "new",
	}
}

func TestNewServiceReturnsNoopWhenTokenMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg, nil)
	posted, err := svc.PostTransient(context.Background(), notifications.Message{Transient: sampleTransient()})
	if err != nil || posted.TS != "" {
		t.Fatalf("expected noop post, got %+v, %v", posted, err)
	}
	counts, err := svc.MessageReactions(context.Background(), posted)
	if err != nil || len(counts) != 0 {
		t.Fatalf("expected empty counts, got %v, %v", counts, err)
	}
}

func TestPostTransientSendsBlocksAndImage(t *testing.T) {
	fs := newFakeSlack(t)
	svc := notifications.NewService(fs.config(), nil)

	imagePath := filepath.Join(t.TempDir(), "J1_obs1_thumb.png")
	if err := os.WriteFile(imagePath, []byte("\x89PNG fake"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	posted, err := svc.PostTransient(context.Background(), notifications.Message{
		Transient: sampleTransient(),
		ImagePath: imagePath,
		Surveys:   []string{"RACS", "unWISE W1"},
	})
	if err != nil {
		t.Fatalf("PostTransient returned error: %v", err)
	}
	if posted.Channel != "C123" || posted.TS != "1700000000.000100" {
		t.Fatalf("unexpected posted reference %+v", posted)
	}

	posts := fs.callsTo("chat.postMessage")
	if len(posts) != 1 {
		t.Fatalf("expected one chat.postMessage, got %d", len(posts))
	}
	if posts[0]["channel"] != "C123" || posts[0]["text"] != "New transient detected: J1_obs1" {
		t.Fatalf("unexpected post form %v", posts[0])
	}
	blocks := posts[0]["blocks"]
	for _, want := range []string{"New Transient: J1_obs1", "10h 00m 00.00s", "2026-10-01 12:30:00 UTC", "42.2", "3.46 mJy", "RACS, unWISE W1", "divider"} {
		if !strings.Contains(blocks, want) {
			t.Fatalf("expected %q in blocks %s", want, blocks)
		}
	}
	if strings.Contains(blocks, "FWHM") {
		t.Fatalf("FWHM section should be omitted when unknown: %s", blocks)
	}

	uploads := fs.callsTo("files.getUploadURLExternal")
	if len(uploads) != 1 || uploads[0]["filename"] != "J1_obs1_thumb.png" {
		t.Fatalf("expected thumbnail upload request, got %v", uploads)
	}
}

func TestAddVotingReactionsToleratesExisting(t *testing.T) {
	fs := newFakeSlack(t)
	svc := notifications.NewService(fs.config(), nil)
	err := svc.AddVotingReactions(context.Background(), notifications.Posted{Channel: "C123", TS: "1700000000.000100"})
	if err == nil || !strings.Contains(err.Error(), "wastebasket") || strings.Contains(err.Error(), "star") {
		t.Fatalf("expected only the wastebasket failure, got %v", err)
	}
	if got := strings.Join(fs.reactions, ","); got != "milky_way,fire,star,wastebasket" {
		t.Fatalf("unexpected reactions %s", got)
	}
}

func TestMessageReactionsDiscountsBot(t *testing.T) {
	fs := newFakeSlack(t)
	svc := notifications.NewService(fs.config(), nil)
	posted := notifications.Posted{Channel: "C123", TS: "1700000000.000100"}
	counts, err := svc.MessageReactions(context.Background(), posted)
	if err != nil {
		t.Fatalf("MessageReactions returned error: %v", err)
	}
	if counts["fire"] != 2 || counts["eyes"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if _, ok := counts["milky_way"]; ok {
		t.Fatalf("bot-only reaction should not be counted: %v", counts)
	}
	if _, err := svc.MessageReactions(context.Background(), posted); err != nil {
		t.Fatalf("second MessageReactions returned error: %v", err)
	}
	if n := len(fs.callsTo("auth.test")); n != 1 {
		t.Fatalf("expected bot identity to be cached, got %d auth.test calls", n)
	}
}

func TestTestNotification(t *testing.T) {
	fs := newFakeSlack(t)
	if err := notifications.NewService(fs.config(), nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("TestNotification returned error: %v", err)
	}
	if posts := fs.callsTo("chat.postMessage"); len(posts) != 1 || !strings.Contains(posts[0]["text"], "test") {
		t.Fatalf("unexpected test post %v", posts)
	}
}

func TestBlocksWithoutImageOrCoordinates(t *testing.T) {
	tr := sampleTransient()
	tr.HasCoordinates = false
	tr.FWHMDays = 1.25
	tr.Status = ""
	blocks := notifications.Blocks(notifications.Message{Transient: tr})
	data, err := json.Marshal(blocks)
	if err != nil {
		t.Fatalf("marshal blocks: %v", err)
	}
	text := string(data)
	for _, want := range []string{"No data available for this location", "Duration (FWHM):* 1.25 days", "*Status:*\\nnone"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %s", want, text)
		}
	}
	if _, ok := blocks[len(blocks)-1].(*slack.DividerBlock); !ok {
		t.Fatalf("expected trailing divider, got %T", blocks[len(blocks)-1])
	}
}

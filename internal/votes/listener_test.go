package votes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"transientbot/internal/config"
	"transientbot/internal/ledger"
	"transientbot/internal/logging"
)

func TestNewListenerRequiresAppToken(t *testing.T) {
	if _, err := NewListener(config.Slack{BotToken: "xoxb"}, nil, nil); err != ErrNoAppToken {
		t.Fatalf("expected ErrNoAppToken, got %v", err)
	}
}

func TestListenerRefreshesTrackedMessage(t *testing.T) {
	var (
		mu   sync.Mutex
		acks []string
	)
	upgrader := websocket.Upgrader{}
	ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frames := []string{
			`{"type":"hello"}`,
			`{"envelope_id":"e1","type":"events_api","payload":{"event":{"type":"reaction_added","user":"U2","reaction":"thumbsup","item":{"type":"message","channel":"C1","ts":"1.0"}}}}`,
			`{"envelope_id":"e2","type":"events_api","payload":{"event":{"type":"reaction_added","user":"U2","reaction":"fire","item":{"type":"message","channel":"C1","ts":"1.0"}}}}`,
		}
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ack map[string]string
			if json.Unmarshal(msg, &ack) == nil {
				mu.Lock()
				acks = append(acks, ack["envelope_id"])
				mu.Unlock()
			}
		}
	}))
	defer ws.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/apps.connections.open") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer xapp-test" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":false,"error":"invalid_auth"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":  true,
			"url": "ws" + strings.TrimPrefix(ws.URL, "http"),
		})
	}))
	defer api.Close()

	store := openTestStore(t)
	path := writeLedger(t, ledger.Entry{ID: "T1", Outcome: ledger.OutcomePosted, Channel: "C1", MessageTS: "1.0"})
	source := &fakeReactions{counts: map[string]map[string]int{}}
	source.set("1.0", map[string]int{"fire": 1})
	collector := NewCollector(store, path, source, logging.NewNop())

	listener, err := NewListener(config.Slack{
		BotToken: "xoxb-test",
		AppToken: "xapp-test",
		APIURL:   api.URL + "/",
	}, collector, logging.NewNop())
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	listener.reconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- listener.Start(ctx) }()

	deadline := time.Now().Add(4 * time.Second)
	for {
		tally, err := store.Get(context.Background(), "T1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		mu.Lock()
		acked := len(acks)
		mu.Unlock()
		if tally != nil && tally.Interesting == 1 && acked >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("tally was not refreshed from reaction event")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(acks) < 2 || acks[0] != "e1" || acks[1] != "e2" {
		t.Fatalf("expected both envelopes acknowledged, got %v", acks)
	}
	source.mu.Lock()
	calls := source.calls
	source.mu.Unlock()
	if calls < 1 {
		t.Fatalf("expected at least one reaction fetch, got %d", calls)
	}
}

package testsupport

import (
	"testing"

	"transientbot/internal/config"
	"transientbot/internal/ledger"
	"transientbot/internal/votes"
)

// MustOpenVotes opens the vote database for tests and registers cleanup.
func MustOpenVotes(t testing.TB, cfg *config.Config) *votes.Store {
	t.Helper()

	store, err := votes.Open(cfg.VotesDBPath())
	if err != nil {
		t.Fatalf("votes.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustLoadLedger reads the processed-state store configured in cfg.
func MustLoadLedger(t testing.TB, cfg *config.Config) *ledger.Ledger {
	t.Helper()

	led, err := ledger.Load(cfg.Paths.ProcessedStore)
	if err != nil {
		t.Fatalf("ledger.Load: %v", err)
	}
	return led
}

// MustAppend records entries in the processed-state store configured in cfg.
func MustAppend(t testing.TB, cfg *config.Config, entries ...ledger.Entry) {
	t.Helper()

	led := MustLoadLedger(t, cfg)
	for _, entry := range entries {
		if err := led.Append(entry); err != nil {
			t.Fatalf("ledger.Append %s: %v", entry.ID, err)
		}
	}
}

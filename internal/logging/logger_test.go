package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"transientbot/internal/config"
	"transientbot/internal/logging"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesJSONLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg, "")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from test", logging.String(logging.FieldTransientID, "T1"))

	line := strings.TrimSpace(readLog(t, cfg.LogPath()))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log file should hold JSON, got %q: %v", line, err)
	}
	if entry["msg"] != "hello from test" || entry[logging.FieldTransientID] != "T1" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestConsoleLoggerHoistsComponentAndTransient(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithRunID(context.Background(), "run-1")
	ctx = logging.WithTransientID(ctx, "J1234-5678_obs1")
	component := logging.WithContext(ctx, logging.NewComponentLogger(logger, "monitor"))
	component.Info("transient posted",
		logging.String("note", "has spaces"),
		logging.Group("cutout", logging.Int("width", 64)),
	)

	content := buf.String()
	for _, want := range []string{
		"INFO  monitor [J1234-5678_obs1]: transient posted",
		`note="has spaces"`,
		"cutout.width=64",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
	for _, unwanted := range []string{"run-1", "component=", "transient_id="} {
		if strings.Contains(content, unwanted) {
			t.Fatalf("did not expect %q in %q", unwanted, content)
		}
	}
}

func TestConsoleLoggerGroupsApplyToLaterAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.With(logging.String("survey", "RACS")).WithGroup("cutout").Debug("decoded", logging.Int("width", 32))

	content := buf.String()
	if !strings.Contains(content, "survey=RACS") || !strings.Contains(content, "cutout.width=32") {
		t.Fatalf("unexpected grouping in %q", content)
	}
}

func TestConsoleLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "warn", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("quiet")
	logging.WarnWithContext(logger, "loud", "test_warning", logging.Error(errors.New("boom")))

	content := buf.String()
	if strings.Contains(content, "quiet") {
		t.Fatalf("info line should be filtered: %q", content)
	}
	for _, want := range []string{"WARN  loud", "event_type=test_warning", "error=boom", "error_hint=", "impact="} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
}

func TestJSONConsoleAndFileFanout(t *testing.T) {
	var buf bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "logs", "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Console: &buf, File: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithRunID(context.Background(), "run-1")
	ctx = logging.WithTransientID(ctx, "T1")
	logging.WithContext(ctx, logger).Info("processing")

	for name, raw := range map[string]string{"console": buf.String(), "file": readLog(t, logPath)} {
		var entry map[string]any
		line := strings.TrimSpace(raw)
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("%s: unmarshal %q: %v", name, line, err)
		}
		if entry["level"] != "info" || entry["msg"] != "processing" {
			t.Fatalf("%s: unexpected entry: %v", name, entry)
		}
		if entry[logging.FieldRunID] != "run-1" || entry[logging.FieldTransientID] != "T1" {
			t.Fatalf("%s: missing context fields: %v", name, entry)
		}
		if _, ok := entry["ts"]; !ok {
			t.Fatalf("%s: expected ts key: %v", name, entry)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml", Console: &bytes.Buffer{}}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestPruneRemovesOnlyOldMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "a_thumb.png")
	fresh := filepath.Join(dir, "b_thumb.png")
	other := filepath.Join(dir, "notes.txt")
	kept := filepath.Join(dir, "c_thumb.png")
	for _, path := range []string{old, fresh, other, kept} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, other, kept} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.Prune(logging.NewNop(), 5, logging.RetentionTarget{Dir: dir, Pattern: "*_thumb.png", Exclude: []string{kept}})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected %s removed", old)
	}
	for _, path := range []string{fresh, other, kept} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
	if logging.Prune(nil, 0, logging.RetentionTarget{Dir: dir}) != 0 {
		t.Fatal("zero retention should disable pruning")
	}
}

package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteLines writes lines to path, one per line, creating parent directories.
func WriteLines(t testing.TB, path string, lines ...string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// TSVRow joins cells with tabs.
func TSVRow(cells ...string) string {
	return strings.Join(cells, "\t")
}

// TSVHeader is the column layout produced by the detection pipeline.
var TSVHeader = TSVRow("source", "observation", "ra[deg]", "dec[deg]", "field", "time", "test_statistic", "peak_flux[mJy]", "status")

// Package ledger persists which transients have already been handled.
//
// The ledger is an append-only CSV file with one row per identifier. Rows are
// never rewritten or removed, and an identifier appears at most once. Files
// written by the original monitor (a narrower header ending in processed_at)
// are read as posted entries and keep their layout when appended to, so both
// tools can share one file.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"transientbot/internal/novelty"
	"transientbot/internal/transients"
)

var (
	// ErrMalformed indicates the store file could not be parsed into rows.
	ErrMalformed = errors.New("malformed processed-state store")
	// ErrDuplicate is returned when appending an identifier that is already recorded.
	ErrDuplicate = errors.New("identifier already recorded")
)

// Outcome is the processing result recorded for an identifier.
type Outcome string

const (
	OutcomePosted    Outcome = "posted"
	OutcomeNoImagery Outcome = "no-imagery"
	OutcomeError     Outcome = "error"
	// OutcomeBaseline marks rows that existed before the first run and were
	// never posted.
	OutcomeBaseline Outcome = "baseline"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomePosted, OutcomeNoImagery, OutcomeError, OutcomeBaseline:
		return true
	}
	return false
}

// Entry is one processed identifier.
type Entry struct {
	ID            string    `json:"id"`
	ProcessedAt   time.Time `json:"processed_at"`
	Outcome       Outcome   `json:"outcome"`
	Source        string    `json:"source,omitempty"`
	Observation   string    `json:"observation,omitempty"`
	RA            float64   `json:"ra_deg"`
	Dec           float64   `json:"dec_deg"`
	Field         string    `json:"field,omitempty"`
	DetectedAt    time.Time `json:"time,omitzero"`
	TestStatistic float64   `json:"test_statistic"`
	Status        string    `json:"status,omitempty"`
	MessageTS     string    `json:"message_ts,omitempty"`
	Channel       string    `json:"channel,omitempty"`
}

// EntryFor builds an entry describing t.
func EntryFor(t transients.Transient, outcome Outcome, processedAt time.Time) Entry {
	return Entry{
		ID:            t.ID,
		ProcessedAt:   processedAt.UTC(),
		Outcome:       outcome,
		Source:        t.Source,
		Observation:   t.Observation,
		RA:            t.Coordinates.RA,
		Dec:           t.Coordinates.Dec,
		Field:         t.Field,
		DetectedAt:    t.Time,
		TestStatistic: t.TestStatistic,
		Status:        t.Status,
	}
}

var header = []string{
	"id", "processed_at", "outcome", "source", "observation", "ra_deg", "dec_deg",
	"field", "time", "test_statistic", "status", "message_ts", "channel",
}

// legacyExtra is appended to a legacy header before the first row is added.
var legacyExtra = []string{"outcome", "message_ts", "channel"}

// Detection times in legacy files use the pandas tz-aware rendering.
const legacyTimeLayout = "2006-01-02 15:04:05-07:00"

type layout int

const (
	layoutCurrent layout = iota
	layoutLegacy
)

// Ledger is the in-memory view of a store file plus its append handle.
type Ledger struct {
	path    string
	mu      sync.RWMutex
	layout  layout
	columns []string
	exists  bool
	entries []Entry
	ids     novelty.IDSet
}

// Load reads the store at path. A missing or empty file yields an empty
// ledger; any parse failure returns an error wrapping ErrMalformed.
func Load(path string) (*Ledger, error) {
	l := &Ledger{path: path, ids: novelty.NewIDSet()}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return l, nil
		}
		return nil, fmt.Errorf("open processed-state store: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.ReuseRecord = false
	first, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return l, nil
	}
	if err != nil {
		return nil, malformed(path, err)
	}
	l.exists = true

	cols, kind, err := detectLayout(first)
	if err != nil {
		return nil, malformed(path, err)
	}
	l.layout = kind
	l.columns = normalizeHeader(first)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed(path, err)
		}
		line, _ := reader.FieldPos(0)
		entry, err := decodeRow(cols, kind, record)
		if err != nil {
			return nil, malformed(path, fmt.Errorf("line %d: %w", line, err))
		}
		l.entries = append(l.entries, entry)
		l.ids[entry.ID] = struct{}{}
	}
	return l, nil
}

func malformed(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
}

func normalizeHeader(row []string) []string {
	names := make([]string, len(row))
	for i, name := range row {
		names[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}
	return names
}

func detectLayout(row []string) (map[string]int, layout, error) {
	cols := make(map[string]int, len(row))
	for i, name := range normalizeHeader(row) {
		cols[name] = i
	}
	if hasColumns(cols, "id", "processed_at", "outcome") {
		return cols, layoutCurrent, nil
	}
	if hasColumns(cols, "source", "observation", "processed_at") {
		return cols, layoutLegacy, nil
	}
	return nil, 0, fmt.Errorf("unrecognized header %q", strings.Join(row, ","))
}

func legacyID(source, observation string) string {
	if observation == "" {
		return source
	}
	return source + "_" + observation
}

func hasColumns(cols map[string]int, names ...string) bool {
	for _, name := range names {
		if _, ok := cols[name]; !ok {
			return false
		}
	}
	return true
}

func decodeRow(cols map[string]int, kind layout, record []string) (Entry, error) {
	cell := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var entry Entry
	var err error
	switch kind {
	case layoutLegacy:
		entry.Source = cell("source")
		entry.Observation = cell("observation")
		entry.ID = legacyID(entry.Source, entry.Observation)
		entry.Outcome = OutcomePosted
		if raw := cell("outcome"); raw != "" && raw != "nan" {
			entry.Outcome = Outcome(raw)
			if !entry.Outcome.Valid() {
				return Entry{}, fmt.Errorf("unknown outcome %q", entry.Outcome)
			}
		}
		entry.MessageTS = nanToEmpty(cell("message_ts"))
		entry.Channel = nanToEmpty(cell("channel"))
		if entry.RA, err = parseFloat("ra[deg]", cell("ra[deg]")); err != nil {
			return Entry{}, err
		}
		if entry.Dec, err = parseFloat("dec[deg]", cell("dec[deg]")); err != nil {
			return Entry{}, err
		}
	default:
		entry.ID = cell("id")
		entry.Outcome = Outcome(cell("outcome"))
		if !entry.Outcome.Valid() {
			return Entry{}, fmt.Errorf("unknown outcome %q", entry.Outcome)
		}
		entry.Source = cell("source")
		entry.Observation = cell("observation")
		entry.MessageTS = cell("message_ts")
		entry.Channel = cell("channel")
		if entry.RA, err = parseFloat("ra_deg", cell("ra_deg")); err != nil {
			return Entry{}, err
		}
		if entry.Dec, err = parseFloat("dec_deg", cell("dec_deg")); err != nil {
			return Entry{}, err
		}
	}
	if entry.ID == "" {
		return Entry{}, errors.New("empty identifier")
	}
	entry.Field = cell("field")
	entry.Status = nanToEmpty(cell("status"))
	if entry.TestStatistic, err = parseFloat("test_statistic", cell("test_statistic")); err != nil {
		return Entry{}, err
	}
	if raw := cell("processed_at"); raw != "" {
		if entry.ProcessedAt, err = transients.ParseTime(raw); err != nil {
			return Entry{}, fmt.Errorf("processed_at: %w", err)
		}
	} else {
		return Entry{}, errors.New("processed_at is required")
	}
	if raw := cell("time"); raw != "" && raw != "nan" {
		if entry.DetectedAt, err = transients.ParseTime(raw); err != nil {
			return Entry{}, fmt.Errorf("time: %w", err)
		}
	}
	return entry, nil
}

func nanToEmpty(raw string) string {
	if strings.EqualFold(raw, "nan") {
		return ""
	}
	return raw
}

func parseFloat(name, raw string) (float64, error) {
	if raw == "" || strings.EqualFold(raw, "nan") {
		return math.NaN(), nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a number", name, raw)
	}
	return value, nil
}

// Path returns the store location.
func (l *Ledger) Path() string {
	return l.path
}

// Len returns the number of recorded entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Empty reports whether nothing has been recorded yet.
func (l *Ledger) Empty() bool {
	return l.Len() == 0
}

// Contains reports whether id has been recorded.
func (l *Ledger) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ids.Contains(id)
}

// IDs returns a snapshot of the recorded identifiers.
func (l *Ledger) IDs() novelty.IDSet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ids.Union()
}

// Entries returns a copy of the entries in file order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Lookup returns the first entry recorded for id.
func (l *Ledger) Lookup(id string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, entry := range l.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return Entry{}, false
}

// Append writes entry to the end of the store and syncs it to disk. The file
// and its header are created on first use.
func (l *Ledger) Append(entry Entry) error {
	entry.ID = strings.TrimSpace(entry.ID)
	if entry.ID == "" {
		return errors.New("append: empty identifier")
	}
	if !entry.Outcome.Valid() {
		return fmt.Errorf("append %s: unknown outcome %q", entry.ID, entry.Outcome)
	}
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ids.Contains(entry.ID) {
		return fmt.Errorf("append %s: %w", entry.ID, ErrDuplicate)
	}

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}
	if l.layout == layoutLegacy && !slices.Contains(l.columns, "outcome") {
		if err := l.widenLegacy(); err != nil {
			return err
		}
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open processed-state store: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if !l.exists {
		l.layout, l.columns = layoutCurrent, header
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("write store header: %w", err)
		}
	}
	if err := writer.Write(l.encodeRow(entry)); err != nil {
		return fmt.Errorf("write store row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush store row: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync processed-state store: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close processed-state store: %w", err)
	}

	l.exists = true
	l.entries = append(l.entries, entry)
	l.ids[entry.ID] = struct{}{}
	return nil
}

// widenLegacy rewrites a legacy store with legacyExtra columns added. Existing
// rows get empty cells, which read back as posted.
func (l *Ledger) widenLegacy() error {
	src, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("open processed-state store: %w", err)
	}
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	src.Close()
	if err != nil {
		return malformed(l.path, err)
	}
	if len(records) == 0 {
		return malformed(l.path, errors.New("missing header"))
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*.csv")
	if err != nil {
		return fmt.Errorf("create widened store: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	width := len(records[0])
	writer := csv.NewWriter(tmp)
	for i, record := range records {
		row := make([]string, width, width+len(legacyExtra))
		copy(row, record)
		if i == 0 {
			row = append(row, legacyExtra...)
		} else {
			row = append(row, make([]string, len(legacyExtra))...)
		}
		if err := writer.Write(row); err != nil {
			return fail(fmt.Errorf("write widened store: %w", err))
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fail(fmt.Errorf("flush widened store: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync widened store: %w", err))
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(fmt.Errorf("chmod widened store: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close widened store: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace processed-state store: %w", err)
	}
	l.columns = append(normalizeHeader(records[0]), legacyExtra...)
	return nil
}

func (l *Ledger) encodeRow(e Entry) []string {
	if l.layout == layoutLegacy {
		return l.encodeLegacyRow(e)
	}
	detected := ""
	if !e.DetectedAt.IsZero() {
		detected = e.DetectedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		e.ID, e.ProcessedAt.UTC().Format(time.RFC3339Nano), string(e.Outcome), e.Source, e.Observation,
		formatFloat(e.RA), formatFloat(e.Dec), e.Field, detected,
		formatFloat(e.TestStatistic), e.Status, e.MessageTS, e.Channel,
	}
}

// encodeLegacyRow fills cells by name in the file's column order. Columns the
// entry has no value for stay empty.
func (l *Ledger) encodeLegacyRow(e Entry) []string {
	source, observation := e.Source, e.Observation
	if legacyID(source, observation) != e.ID {
		source, observation = e.ID, ""
	}
	detected := ""
	if !e.DetectedAt.IsZero() {
		detected = e.DetectedAt.UTC().Format(legacyTimeLayout)
	}
	values := map[string]string{
		"source":         source,
		"observation":    observation,
		"ra[deg]":        formatFloat(e.RA),
		"dec[deg]":       formatFloat(e.Dec),
		"field":          e.Field,
		"time":           detected,
		"test_statistic": formatFloat(e.TestStatistic),
		"status":         e.Status,
		"processed_at":   e.ProcessedAt.UTC().Format("2006-01-02T15:04:05.000000-07:00"),
		"outcome":        string(e.Outcome),
		"message_ts":     e.MessageTS,
		"channel":        e.Channel,
	}
	row := make([]string, len(l.columns))
	for i, name := range l.columns {
		row[i] = values[name]
	}
	return row
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

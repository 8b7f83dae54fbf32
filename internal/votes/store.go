package votes

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Older databases must
// be removed; tallies are rebuilt by the next sync.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store persists tallies in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the vote database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create vote db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s and run 'transientbot votes sync')",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

const tallyColumns = "transient_id, channel, message_ts, agn, interesting, star, junk, updated_at"

// Upsert stores t, replacing any previous tally for the transient. A history
// row is added whenever the counts change. It reports whether anything changed.
func (s *Store) Upsert(ctx context.Context, t Tally) (bool, error) {
	t.TransientID = strings.TrimSpace(t.TransientID)
	if t.TransientID == "" {
		return false, errors.New("upsert tally: empty transient id")
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	previous, err := scanTally(tx.QueryRowContext(ctx, `SELECT `+tallyColumns+` FROM tallies WHERE transient_id = ?`, t.TransientID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("read tally: %w", err)
	}
	changed := errors.Is(err, sql.ErrNoRows) || !previous.SameCounts(t) ||
		previous.Channel != t.Channel || previous.MessageTS != t.MessageTS
	if !changed {
		return false, nil
	}

	stamp := t.UpdatedAt.UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tallies (`+tallyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(transient_id) DO UPDATE SET
             channel = excluded.channel,
             message_ts = excluded.message_ts,
             agn = excluded.agn,
             interesting = excluded.interesting,
             star = excluded.star,
             junk = excluded.junk,
             updated_at = excluded.updated_at`,
		t.TransientID, t.Channel, t.MessageTS, t.AGN, t.Interesting, t.Star, t.Junk, stamp,
	); err != nil {
		return false, fmt.Errorf("upsert tally: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tally_history (transient_id, agn, interesting, star, junk, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.TransientID, t.AGN, t.Interesting, t.Star, t.Junk, stamp,
	); err != nil {
		return false, fmt.Errorf("record tally history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tally: %w", err)
	}
	return true, nil
}

// Get returns the tally for id, or nil when none is stored.
func (s *Store) Get(ctx context.Context, id string) (*Tally, error) {
	t, err := scanTally(s.db.QueryRowContext(ctx, `SELECT `+tallyColumns+` FROM tallies WHERE transient_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tally: %w", err)
	}
	return &t, nil
}

// FindByMessage returns the tally tracking a posted message, or nil.
func (s *Store) FindByMessage(ctx context.Context, channel, ts string) (*Tally, error) {
	t, err := scanTally(s.db.QueryRowContext(ctx,
		`SELECT `+tallyColumns+` FROM tallies WHERE channel = ? AND message_ts = ? LIMIT 1`, channel, ts))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tally by message: %w", err)
	}
	return &t, nil
}

// List returns every tally ordered by transient ID.
func (s *Store) List(ctx context.Context) ([]Tally, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tallyColumns+` FROM tallies ORDER BY transient_id`)
	if err != nil {
		return nil, fmt.Errorf("list tallies: %w", err)
	}
	defer rows.Close()

	var out []Tally
	for rows.Next() {
		t, err := scanTally(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tallies: %w", err)
	}
	return out, nil
}

// HistoryLen returns how many count changes were recorded for id.
func (s *Store) HistoryLen(ctx context.Context, id string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tally_history WHERE transient_id = ?`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tally history: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTally(row rowScanner) (Tally, error) {
	var (
		t       Tally
		updated string
	)
	if err := row.Scan(&t.TransientID, &t.Channel, &t.MessageTS, &t.AGN, &t.Interesting, &t.Star, &t.Junk, &updated); err != nil {
		return Tally{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		t.UpdatedAt = ts
	}
	return t, nil
}

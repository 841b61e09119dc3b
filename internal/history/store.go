// Package history keeps a SQLite journal of conversion runs and of the
// story titles already used.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"

	_ "modernc.org/sqlite"
)

const (
	defaultListLimit = 50
	dirPermissions   = 0o750
	// Fixed width so that text ordering matches time ordering.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrPathEmpty is returned when no database path is configured.
var ErrPathEmpty = errors.New("history database path cannot be empty")

// Run is one recorded conversion.
type Run struct {
	ID           string
	StartedAt    time.Time
	Duration     time.Duration
	Voice        string
	LanguageCode string
	Fragments    int
	Segments     int
	Skipped      int
	Status       string
	Message      string
	Output       string
}

// Store is a SQLite-backed run journal.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
	clock  func() time.Time
}

// Open creates or opens the database at path.
func Open(ctx context.Context, path string, log *logger.Logger) (*Store, error) {
	if path == "" {
		return nil, ErrPathEmpty
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		mkdirErr := os.MkdirAll(dir, dirPermissions)
		if mkdirErr != nil {
			return nil, fmt.Errorf("create history dir: %w", mkdirErr)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, openErr := sql.Open("sqlite", dsn)
	if openErr != nil {
		return nil, fmt.Errorf("open sqlite: %w", openErr)
	}

	pingErr := db.PingContext(ctx)
	if pingErr != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", pingErr)
	}

	store := &Store{db: db, logger: log, clock: time.Now}

	schemaErr := store.initSchema(ctx)
	if schemaErr != nil {
		_ = db.Close()

		return nil, schemaErr
	}

	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    voice TEXT,
    language_code TEXT,
    fragments INTEGER NOT NULL,
    segments INTEGER NOT NULL,
    skipped INTEGER NOT NULL,
    status TEXT NOT NULL,
    message TEXT,
    output TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE TABLE IF NOT EXISTS titles (
    title TEXT PRIMARY KEY,
    created_at TEXT NOT NULL
);
`

	_, execErr := s.db.ExecContext(ctx, ddl)
	if execErr != nil {
		return fmt.Errorf("init history schema: %w", execErr)
	}

	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts run, replacing an earlier row with the same id.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = s.clock()
	}

	_, execErr := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, started_at, duration_ms, voice, language_code, fragments, segments, skipped, status, message, output)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   duration_ms=excluded.duration_ms, segments=excluded.segments, skipped=excluded.skipped,
		   status=excluded.status, message=excluded.message, output=excluded.output`,
		run.ID, run.StartedAt.UTC().Format(timeLayout), run.Duration.Milliseconds(),
		run.Voice, run.LanguageCode, run.Fragments, run.Segments, run.Skipped,
		run.Status, run.Message, run.Output)
	if execErr != nil {
		return fmt.Errorf("record run %s: %w", run.ID, execErr)
	}

	return nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, queryErr := s.db.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, voice, language_code, fragments, segments, skipped, status, message, output
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list runs: %w", queryErr)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var (
			run        Run
			started    string
			durationMS int64
		)

		scanErr := rows.Scan(&run.ID, &started, &durationMS, &run.Voice, &run.LanguageCode,
			&run.Fragments, &run.Segments, &run.Skipped, &run.Status, &run.Message, &run.Output)
		if scanErr != nil {
			return nil, fmt.Errorf("scan run: %w", scanErr)
		}

		timestamp, parseErr := time.Parse(timeLayout, started)
		if parseErr == nil {
			run.StartedAt = timestamp
		}

		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("iterate runs: %w", rowsErr)
	}

	return runs, nil
}

// Prune keeps only the newest keep runs. It returns how many were deleted.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	result, execErr := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id IN (
		SELECT id FROM runs ORDER BY started_at DESC LIMIT -1 OFFSET ?
	)`, keep)
	if execErr != nil {
		return 0, fmt.Errorf("prune runs: %w", execErr)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		s.logger.Info("Pruned %d old runs from history", deleted)
	}

	return deleted, nil
}

// AddTitle stores title in the title library. It reports false when the
// title was already there.
func (s *Store) AddTitle(ctx context.Context, title string) (bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return false, nil
	}

	result, execErr := s.db.ExecContext(ctx,
		`INSERT INTO titles(title, created_at) VALUES(?, ?) ON CONFLICT(title) DO NOTHING`,
		title, s.clock().UTC().Format(timeLayout))
	if execErr != nil {
		return false, fmt.Errorf("add title: %w", execErr)
	}

	inserted, _ := result.RowsAffected()

	return inserted > 0, nil
}

// Titles returns the library in insertion order.
func (s *Store) Titles(ctx context.Context) ([]string, error) {
	rows, queryErr := s.db.QueryContext(ctx, `SELECT title FROM titles ORDER BY created_at ASC, title ASC`)
	if queryErr != nil {
		return nil, fmt.Errorf("list titles: %w", queryErr)
	}
	defer rows.Close()

	var titles []string

	for rows.Next() {
		var title string

		scanErr := rows.Scan(&title)
		if scanErr != nil {
			return nil, fmt.Errorf("scan title: %w", scanErr)
		}

		titles = append(titles, title)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("iterate titles: %w", rowsErr)
	}

	return titles, nil
}

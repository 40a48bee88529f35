package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages journal persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string

	mu  sync.Mutex
	seq map[string]int
}

// Open initializes or connects to the journal database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, seq: make(map[string]int)}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun inserts a run row in the running state.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is empty")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, input_dir, output_dir, mode, status)
         VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.InputDir,
		run.OutputDir,
		run.Mode,
		StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordOutcome appends one outcome for runID, assigning the next sequence number.
func (s *Store) RecordOutcome(ctx context.Context, outcome Outcome) error {
	s.mu.Lock()
	s.seq[outcome.RunID]++
	seq := s.seq[outcome.RunID]
	s.mu.Unlock()

	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, seq, source, outcome, digest, destination, detail, recorded_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.RunID,
		seq,
		outcome.Source,
		outcome.Outcome,
		nullableString(outcome.Digest),
		nullableString(outcome.Destination),
		nullableString(outcome.Detail),
		outcome.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// FinishRun stores the final tally and status for runID.
func (s *Store) FinishRun(ctx context.Context, runID string, counts Counts, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs
         SET finished_at = ?, total = ?, uniques = ?, duplicates = ?, hash_failures = ?,
             move_failures = ?, delete_failures = ?, skipped = ?, status = ?
         WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		counts.Total,
		counts.Uniques,
		counts.Duplicates,
		counts.HashFailures,
		counts.MoveFailures,
		counts.DeleteFailures,
		counts.Skipped,
		status,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: run %s not found", runID)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, input_dir, output_dir, mode,
    total, uniques, duplicates, hash_failures, move_failures, delete_failures, skipped, status`

// ListRuns returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun fetches one run. Unknown IDs return (nil, nil). A unique ID prefix
// is accepted so operators can paste shortened identifiers.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ORDER BY id LIMIT 2`,
		id, stripLikeWildcards(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if run.ID == id {
			return &run, nil
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// Outcomes lists recorded outcomes for runID in sequence order. When kinds is
// non-empty only those outcome kinds are returned.
func (s *Store) Outcomes(ctx context.Context, runID string, kinds ...string) ([]Outcome, error) {
	query := `SELECT run_id, seq, source, outcome, digest, destination, detail, recorded_at
              FROM outcomes WHERE run_id = ?`
	args := []any{runID}
	if len(kinds) > 0 {
		query += ` AND outcome IN (` + makePlaceholders(len(kinds)) + `)`
		for _, kind := range kinds {
			args = append(args, kind)
		}
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o                           Outcome
			digest, destination, detail sql.NullString
			recordedAt                  string
		)
		if err := rows.Scan(&o.RunID, &o.Seq, &o.Source, &o.Outcome, &digest, &destination, &detail, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Digest = digest.String
		o.Destination = destination.String
		o.Detail = detail.String
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			o.RecordedAt = t
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(
		&run.ID, &startedAt, &finishedAt, &run.InputDir, &run.OutputDir, &run.Mode,
		&run.Counts.Total, &run.Counts.Uniques, &run.Counts.Duplicates, &run.Counts.HashFailures,
		&run.Counts.MoveFailures, &run.Counts.DeleteFailures, &run.Counts.Skipped, &run.Status,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		run.StartedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			run.FinishedAt = &t
		}
	}
	return run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func stripLikeWildcards(value string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(value)
}

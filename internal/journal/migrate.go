package journal

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrSchemaMismatch means the journal was written by a newer mediasort.
var ErrSchemaMismatch = errors.New("journal schema is newer than this build")

// migrations returns the embedded scripts in file-name order. Script i takes
// the database from user_version i to i+1.
func migrations() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("list journal migrations: %w", err)
	}
	scripts := make([]string, 0, len(entries))
	for _, entry := range entries {
		body, err := fs.ReadFile(migrationFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		scripts = append(scripts, string(body))
	}
	return scripts, nil
}

// Version reports the schema version recorded in the database header.
func (s *Store) Version(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read journal version: %w", err)
	}
	return version, nil
}

// migrate applies every pending script, each in its own transaction together
// with the version bump, so an interrupted upgrade resumes where it stopped.
func (s *Store) migrate(ctx context.Context) error {
	scripts, err := migrations()
	if err != nil {
		return err
	}
	current, err := s.Version(ctx)
	if err != nil {
		return err
	}
	if current > len(scripts) {
		return fmt.Errorf("%w: %s is at version %d, this build knows %d (upgrade mediasort or move the file aside)",
			ErrSchemaMismatch, s.path, current, len(scripts))
	}
	for v := current; v < len(scripts); v++ {
		if err := s.applyMigration(ctx, v+1, scripts[v]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, target int, script string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal migration %d: %w", target, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("journal migration %d: %w", target, err)
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
		return fmt.Errorf("journal migration %d: set version: %w", target, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal migration %d: %w", target, err)
	}
	return nil
}

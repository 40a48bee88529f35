// Package checkpoint records which source paths have been fully handled so an
// interrupted or repeated run skips them. It is keyed by path, independent of
// content, and is a pure "already handled" ledger rather than a dedup
// mechanism.
package checkpoint

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"

	"mediasort/internal/faults"
	"mediasort/internal/logging"
	"mediasort/internal/statefile"
)

const formatVersion = 1

type document struct {
	Version int                  `json:"version"`
	Paths   map[string]time.Time `json:"paths"`
}

// Store is the in-memory checkpoint set with atomic persistence.
type Store struct {
	fs       afero.Fs
	path     string
	logger   *slog.Logger
	now      func() time.Time
	readOnly bool

	mu    sync.Mutex
	done  map[string]time.Time
	dirty bool
}

// Option customizes a Store.
type Option func(*Store)

// ReadOnly disables persistence: Flush becomes a no-op.
func ReadOnly() Option {
	return func(s *Store) { s.readOnly = true }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open loads the checkpoint at path. Missing or empty files start empty.
func Open(afs afero.Fs, path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		fs:     afs,
		path:   path,
		logger: logging.NewComponentLogger(logger, "checkpoint"),
		now:    time.Now,
		done:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}

	var doc document
	found, err := statefile.Load(afs, path, &doc)
	if err != nil {
		return nil, err
	}
	if found {
		if doc.Version != formatVersion {
			return nil, faults.Wrap(faults.ErrStateCorruption, "state", "checkpoint version",
				fmt.Sprintf("%s has version %d, expected %d", path, doc.Version, formatVersion), nil)
		}
		for p, ts := range doc.Paths {
			s.done[key(p)] = ts
		}
	}
	s.logger.Debug("checkpoint loaded",
		logging.String("path", path),
		logging.Int("entry_count", len(s.done)),
	)
	return s, nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// IsDone reports whether path has already been handled.
func (s *Store) IsDone(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.done[key(path)]
	return ok
}

// MarkDone records path as handled. Existing entries keep their original timestamp.
func (s *Store) MarkDone(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(path)
	if _, ok := s.done[k]; ok {
		return
	}
	s.done[k] = s.now().UTC()
	s.dirty = true
}

// Len returns the number of handled paths.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.done)
}

// Flush atomically rewrites the checkpoint file if it changed.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readOnly || !s.dirty {
		return nil
	}
	doc := document{Version: formatVersion, Paths: make(map[string]time.Time, len(s.done))}
	for p, ts := range s.done {
		doc.Paths[p] = ts
	}
	if err := statefile.Save(s.fs, s.path, doc); err != nil {
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	s.dirty = false
	return nil
}

func key(path string) string {
	return norm.NFC.String(path)
}

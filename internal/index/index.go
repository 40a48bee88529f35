package index

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"mediasort/internal/faults"
	"mediasort/internal/fingerprint"
	"mediasort/internal/logging"
	"mediasort/internal/statefile"
)

const formatVersion = 1

// Record is the canonical location of one piece of content.
type Record struct {
	Path       string    `json:"path"`
	RecordedAt time.Time `json:"recorded_at"`
}

type document struct {
	Version int               `json:"version"`
	Entries map[string]Record `json:"entries"`
}

// Verdict is the outcome of a Claim.
type Verdict int

const (
	// Unique means the claimant now owns the digest.
	Unique Verdict = iota
	// Duplicate means another existing file already owns the digest.
	Duplicate
)

func (v Verdict) String() string {
	if v == Duplicate {
		return "duplicate"
	}
	return "unique"
}

// Claim describes how a Claim call resolved.
type Claim struct {
	Verdict Verdict
	// Canonical is the owning path after the claim.
	Canonical string
	// Healed is set when a stale record pointing at a missing file was replaced.
	Healed bool
	// Previous holds the replaced record when Healed is set.
	Previous Record
	// Held is set when the claimant was already the recorded owner.
	Held bool
}

// Index holds digest records in memory and persists them on Flush.
type Index struct {
	fs       afero.Fs
	statFS   afero.Fs
	path     string
	logger   *slog.Logger
	now      func() time.Time
	readOnly bool

	mu      sync.Mutex
	entries map[fingerprint.Digest]Record
	dirty   bool
}

// Option customizes an Index.
type Option func(*Index)

// ReadOnly disables persistence: Flush becomes a no-op. Used for dry runs.
func ReadOnly() Option {
	return func(i *Index) { i.readOnly = true }
}

// WithClock overrides the timestamp source for new records.
func WithClock(now func() time.Time) Option {
	return func(i *Index) {
		if now != nil {
			i.now = now
		}
	}
}

// WithStatFS sets the filesystem used to check whether canonical files still
// exist. Defaults to the state filesystem.
func WithStatFS(statFS afero.Fs) Option {
	return func(i *Index) {
		if statFS != nil {
			i.statFS = statFS
		}
	}
}

// Open loads the index stored at path. A missing or empty file yields an
// empty index; a malformed one fails with ErrStateCorruption.
func Open(afs afero.Fs, path string, logger *slog.Logger, opts ...Option) (*Index, error) {
	idx := &Index{
		fs:      afs,
		statFS:  afs,
		path:    path,
		logger:  logging.NewComponentLogger(logger, "index"),
		now:     time.Now,
		entries: make(map[fingerprint.Digest]Record),
	}
	for _, opt := range opts {
		opt(idx)
	}

	var doc document
	found, err := statefile.Load(afs, path, &doc)
	if err != nil {
		return nil, err
	}
	if found {
		if doc.Version != formatVersion {
			return nil, faults.Wrap(faults.ErrStateCorruption, "state", "index version",
				fmt.Sprintf("%s has version %d, expected %d", path, doc.Version, formatVersion), nil)
		}
		for digest, rec := range doc.Entries {
			if err := fingerprint.Validate(digest); err != nil {
				return nil, faults.Wrap(faults.ErrStateCorruption, "state", "index entry", path, err)
			}
			if rec.Path == "" {
				return nil, faults.Wrap(faults.ErrStateCorruption, "state", "index entry",
					fmt.Sprintf("%s: digest %s has empty path", path, digest), nil)
			}
			idx.entries[fingerprint.Digest(digest)] = rec
		}
	}

	idx.logger.Debug("fingerprint index loaded",
		logging.String("path", path),
		logging.Int("entry_count", len(idx.entries)),
		logging.Bool("read_only", idx.readOnly),
	)
	return idx, nil
}

// Path returns the backing file location.
func (i *Index) Path() string {
	return i.path
}

// Lookup returns the canonical path recorded for digest.
func (i *Index) Lookup(digest fingerprint.Digest) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	rec, ok := i.entries[digest]
	return rec.Path, ok
}

// Claim atomically decides whether path is the first holder of digest.
//
// The claimant wins when the digest is unrecorded, when the recorded path is
// the claimant itself, or when the recorded file no longer exists (healing).
// Otherwise the result is Duplicate with Canonical set to the existing owner.
func (i *Index) Claim(digest fingerprint.Digest, path string) (Claim, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, ok := i.entries[digest]
	if ok && rec.Path == path {
		return Claim{Verdict: Unique, Canonical: path, Held: true}, nil
	}
	if ok {
		exists, err := i.exists(rec.Path)
		if err != nil {
			return Claim{}, err
		}
		if exists {
			return Claim{Verdict: Duplicate, Canonical: rec.Path}, nil
		}
	}

	i.entries[digest] = Record{Path: path, RecordedAt: i.now().UTC()}
	i.dirty = true

	claim := Claim{Verdict: Unique, Canonical: path}
	if ok {
		claim.Healed = true
		claim.Previous = rec
		i.logger.Info("stale index entry replaced",
			logging.String("digest", digest.Short()),
			logging.String("stale_path", rec.Path),
			logging.String("canonical", path),
			logging.String(logging.FieldEventType, "index_healed"),
		)
	}
	return claim, nil
}

// Relocate moves the record for digest from one path to another after the
// owning file has been moved. It fails if from no longer owns digest.
func (i *Index) Relocate(digest fingerprint.Digest, from, to string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, ok := i.entries[digest]
	if !ok || rec.Path != from {
		return fmt.Errorf("relocate %s: %q does not own digest", digest.Short(), from)
	}
	if from == to {
		return nil
	}
	rec.Path = to
	i.entries[digest] = rec
	i.dirty = true
	return nil
}

// Release undoes a claim by path, restoring the record it replaced if any.
// Used when routing the claimant fails so the next run can retry cleanly.
func (i *Index) Release(digest fingerprint.Digest, claim Claim) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, ok := i.entries[digest]
	if !ok || rec.Path != claim.Canonical || claim.Verdict != Unique || claim.Held {
		return
	}
	if claim.Healed {
		i.entries[digest] = claim.Previous
	} else {
		delete(i.entries, digest)
	}
	i.dirty = true
}

// Len returns the number of recorded digests.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.entries)
}

// Entry is one digest record, as returned by Entries.
type Entry struct {
	Digest fingerprint.Digest
	Record
}

// Entries returns all records sorted by canonical path.
func (i *Index) Entries() []Entry {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]Entry, 0, len(i.entries))
	for digest, rec := range i.entries {
		out = append(out, Entry{Digest: digest, Record: rec})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Path == out[b].Path {
			return out[a].Digest < out[b].Digest
		}
		return out[a].Path < out[b].Path
	})
	return out
}

// Stale returns the entries whose canonical file is missing.
func (i *Index) Stale() ([]Entry, error) {
	var stale []Entry
	for _, entry := range i.Entries() {
		exists, err := i.exists(entry.Path)
		if err != nil {
			return nil, err
		}
		if !exists {
			stale = append(stale, entry)
		}
	}
	return stale, nil
}

// Flush atomically rewrites the index file if anything changed since the last
// flush. Read-only indexes never write.
func (i *Index) Flush() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.readOnly || !i.dirty {
		return nil
	}
	doc := document{Version: formatVersion, Entries: make(map[string]Record, len(i.entries))}
	for digest, rec := range i.entries {
		doc.Entries[string(digest)] = rec
	}
	if err := statefile.Save(i.fs, i.path, doc); err != nil {
		return fmt.Errorf("flush index: %w", err)
	}
	i.dirty = false
	return nil
}

func (i *Index) exists(path string) (bool, error) {
	_, err := i.statFS.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat canonical %s: %w", path, err)
}

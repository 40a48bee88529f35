package ingest

import (
	"path/filepath"

	"mediasort/internal/faults"
)

// Options are the per-invocation switches.
type Options struct {
	InputDir  string
	OutputDir string
	// DryRun plans every action without mutating files or persisted state.
	DryRun bool
	// Delete removes duplicates instead of archiving them.
	Delete bool
	// DedupeOnly records fingerprints without moving or deleting anything.
	// It neither consults nor marks the checkpoint.
	DedupeOnly bool
	// InputList replaces the directory walk with an explicit list file.
	InputList string
	// Limit caps how many files are hashed. Zero means no limit.
	Limit int
	// Workers overrides the configured hashing pool size when positive.
	Workers int
}

// Mode names the routing behavior for logs and the run journal.
func (o Options) Mode() string {
	switch {
	case o.DedupeOnly:
		return "index"
	case o.Delete:
		return "delete"
	default:
		return "archive"
	}
}

// CheckGuardrail rejects option sets that would have the run ingest its own
// output. It must pass before any file is touched.
func CheckGuardrail(opts Options) error {
	if opts.InputDir == "" && opts.InputList == "" {
		return faults.Configuration("validate options", "an input directory or input list is required", nil)
	}
	if opts.OutputDir == "" {
		return faults.Configuration("validate options", "an output directory is required", nil)
	}
	if opts.Limit < 0 {
		return faults.Configuration("validate options", "limit must be zero or positive", nil)
	}
	if opts.DedupeOnly || opts.InputDir == "" {
		return nil
	}
	in, err := filepath.Abs(opts.InputDir)
	if err != nil {
		return faults.Configuration("resolve input dir", opts.InputDir, err)
	}
	out, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return faults.Configuration("resolve output dir", opts.OutputDir, err)
	}
	if samePath(in, out) {
		return faults.Configuration("validate options",
			"input dir equals output dir; use dedupe-only (seed) to index an existing library", nil)
	}
	return nil
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	return errA == nil && errB == nil && ra == rb
}

package router

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"mediasort/internal/dates"
	"mediasort/internal/faults"
	"mediasort/internal/fileutil"
	"mediasort/internal/logging"
)

const maxCollisionSuffix = 100000

// Action is the filesystem effect applied to a source file.
type Action string

const (
	ActionLibrary Action = "library"
	ActionArchive Action = "archive"
	ActionDelete  Action = "delete"
	// ActionInPlace means the file already sits at its library destination.
	ActionInPlace Action = "in_place"
)

// Request describes one routing decision.
type Request struct {
	Source    string
	Duplicate bool
	Bucket    dates.Bucket
}

// Result reports what Route did, or would do in dry-run mode.
type Result struct {
	Action      Action
	Destination string
	DryRun      bool
	// CrossDevice is set when the move fell back to copy-and-remove.
	CrossDevice bool
}

// Options configures destination layout and behavior.
type Options struct {
	OutputDir     string
	DuplicatesDir string
	NoDateDir     string
	Delete        bool
	DryRun        bool
}

// Router executes routing decisions against a filesystem.
type Router struct {
	fs     afero.Fs
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	reserved map[string]struct{}
}

// New builds a router. In dry-run mode planned destinations are reserved in
// memory so two planned moves never report the same target.
func New(fs afero.Fs, opts Options, logger *slog.Logger) *Router {
	return &Router{
		fs:       fs,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "router"),
		reserved: make(map[string]struct{}),
	}
}

// Options returns the router configuration.
func (r *Router) Options() Options {
	return r.opts
}

// TargetDir returns the directory a request routes into. Delete-mode
// duplicates have no target directory.
func (r *Router) TargetDir(req Request) string {
	bucket := req.Bucket.Path(r.opts.NoDateDir)
	if req.Duplicate {
		return filepath.Join(r.opts.OutputDir, r.opts.DuplicatesDir, bucket)
	}
	return filepath.Join(r.opts.OutputDir, bucket)
}

// Route applies the action for req. Failures are tagged ErrMoveFailure or
// ErrDeleteFailure and leave the source in place.
func (r *Router) Route(ctx context.Context, req Request) (Result, error) {
	logger := logging.WithContext(ctx, r.logger)

	if req.Duplicate && r.opts.Delete {
		return r.delete(logger, req)
	}

	action := ActionLibrary
	if req.Duplicate {
		action = ActionArchive
	}
	dir := r.TargetDir(req)
	base := filepath.Base(req.Source)

	if !req.Duplicate && filepath.Join(dir, base) == filepath.Clean(req.Source) {
		return Result{Action: ActionInPlace, Destination: req.Source, DryRun: r.opts.DryRun}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dest, err := r.nextFreePath(dir, base)
	if err != nil {
		return Result{}, faults.Wrap(faults.ErrMoveFailure, "route", "allocate destination", req.Source, err)
	}

	if r.opts.DryRun {
		r.reserved[dest] = struct{}{}
		logger.Info("dry run: would move file",
			logging.String("action", string(action)),
			logging.String("destination", dest),
			logging.String("bucket", req.Bucket.String()),
		)
		return Result{Action: action, Destination: dest, DryRun: true}, nil
	}

	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return Result{}, faults.Wrap(faults.ErrMoveFailure, "route", "create destination directory", dir, err)
	}

	crossDevice, err := r.move(req.Source, dest)
	if err != nil {
		return Result{}, err
	}
	logger.Debug("file moved",
		logging.String("action", string(action)),
		logging.String("destination", dest),
		logging.Bool("cross_device", crossDevice),
	)
	return Result{Action: action, Destination: dest, CrossDevice: crossDevice}, nil
}

func (r *Router) delete(logger *slog.Logger, req Request) (Result, error) {
	if r.opts.DryRun {
		logger.Info("dry run: would delete duplicate", logging.String("action", string(ActionDelete)))
		return Result{Action: ActionDelete, DryRun: true}, nil
	}
	if err := r.fs.Remove(req.Source); err != nil {
		return Result{}, faults.Wrap(faults.ErrDeleteFailure, "route", "remove duplicate", req.Source, err)
	}
	return Result{Action: ActionDelete}, nil
}

func (r *Router) move(src, dest string) (bool, error) {
	renameErr := r.fs.Rename(src, dest)
	if renameErr == nil {
		return false, nil
	}
	if !fileutil.IsCrossDevice(renameErr) {
		return false, faults.Wrap(faults.ErrMoveFailure, "route", "rename", src, renameErr)
	}
	if err := fileutil.CopyFileVerified(r.fs, src, dest); err != nil {
		return true, faults.Wrap(faults.ErrMoveFailure, "route", "copy across devices", src, err)
	}
	if err := r.fs.Remove(src); err != nil {
		// Roll back so the file lives in exactly one place.
		_ = r.fs.Remove(dest)
		return true, faults.Wrap(faults.ErrMoveFailure, "route", "remove source after copy", src, err)
	}
	return true, nil
}

// nextFreePath returns dir/base, or dir/<stem>_<n><ext> for the smallest n
// whose name is neither on disk nor reserved by an earlier dry-run plan.
func (r *Router) nextFreePath(dir, base string) (string, error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 0; n <= maxCollisionSuffix; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		candidate := filepath.Join(dir, name)
		if _, taken := r.reserved[candidate]; taken {
			continue
		}
		exists, err := fileutil.Exists(r.fs, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("exhausted collision suffixes for %s in %s", base, dir)
}

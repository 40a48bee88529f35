// Package scan enumerates candidate media files from a directory tree or an
// explicit list file.
package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"

	"mediasort/internal/faults"
	"mediasort/internal/logging"
	"mediasort/internal/media"
)

// Candidate is one file offered to the pipeline.
type Candidate struct {
	// Path is the absolute on-disk path used for all file access.
	Path string
	// Key is Path in Unicode NFC, used for checkpoint and journal identity.
	Key string
	// Excluded is set for list entries inside an excluded directory.
	Excluded bool
}

// Options selects the enumeration source.
type Options struct {
	// Root is walked recursively when ListFile is empty.
	Root string
	// ListFile holds one path per line. Blank lines and lines starting with
	// '#' are ignored. Relative entries resolve against the list file's directory.
	ListFile string
	// ExcludedNames are lower-case directory names that are never ingested.
	ExcludedNames []string
	// Prune lists absolute directories skipped during a walk, such as an
	// output root nested inside the input root.
	Prune []string
}

// Scanner walks candidates on a filesystem.
type Scanner struct {
	fs     afero.Fs
	logger *slog.Logger
}

// New returns a scanner reading through fs.
func New(fs afero.Fs, logger *slog.Logger) *Scanner {
	return &Scanner{fs: fs, logger: logging.NewComponentLogger(logger, "scan")}
}

// Each calls fn for every supported media file in lexical order. Walking stops
// early when ctx is canceled or fn returns an error, and that error is returned.
func (s *Scanner) Each(ctx context.Context, opts Options, fn func(Candidate) error) error {
	if strings.TrimSpace(opts.ListFile) != "" {
		return s.eachListed(ctx, opts, fn)
	}
	return s.walk(ctx, opts, fn)
}

func (s *Scanner) walk(ctx context.Context, opts Options, fn func(Candidate) error) error {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return faults.Configuration("resolve input dir", opts.Root, err)
	}
	info, err := s.fs.Stat(root)
	if err != nil {
		return faults.Configuration("stat input dir", root, err)
	}
	if !info.IsDir() {
		return faults.Configuration("stat input dir", root+" is not a directory", nil)
	}

	prune := make([]string, 0, len(opts.Prune))
	for _, p := range opts.Prune {
		if abs, err := filepath.Abs(p); err == nil && abs != root {
			prune = append(prune, abs)
		}
	}

	err = afero.Walk(s.fs, root, func(path string, info fs.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			logging.WarnWithContext(s.logger, "skipping unreadable path", "scan_unreadable",
				logging.String(logging.FieldSourcePath, path),
				logging.Error(walkErr),
				logging.String(logging.FieldErrorHint, "check permissions on the input tree"),
				logging.String(logging.FieldImpact, "files below this path are not ingested"),
			)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if path == root {
				return nil
			}
			if slices.Contains(opts.ExcludedNames, strings.ToLower(info.Name())) || slices.Contains(prune, path) {
				s.logger.Debug("pruned directory", logging.String("path", path))
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || !media.IsSupported(path) {
			return nil
		}
		// Directories below root are pruned above; this catches a root that
		// itself sits inside an excluded tree.
		return fn(newCandidate(path, media.IsExcluded(path, opts.ExcludedNames)))
	})
	if errors.Is(err, filepath.SkipDir) {
		return nil
	}
	return err
}

func (s *Scanner) eachListed(ctx context.Context, opts Options, fn func(Candidate) error) error {
	listPath, err := filepath.Abs(opts.ListFile)
	if err != nil {
		return faults.Configuration("resolve input list", opts.ListFile, err)
	}
	file, err := s.fs.Open(listPath)
	if err != nil {
		return faults.Configuration("open input list", listPath, err)
	}
	defer file.Close()

	baseDir := filepath.Dir(listPath)
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		path := line
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		path = filepath.Clean(path)
		if !media.IsSupported(path) {
			s.logger.Debug("list entry has unsupported extension",
				logging.String(logging.FieldSourcePath, path),
				logging.Int("line", lineNo),
			)
			continue
		}
		cand := newCandidate(path, media.IsExcluded(path, opts.ExcludedNames))
		if _, dup := seen[cand.Key]; dup {
			continue
		}
		seen[cand.Key] = struct{}{}

		if !cand.Excluded {
			info, err := s.fs.Stat(path)
			switch {
			case errors.Is(err, os.ErrNotExist):
				logging.WarnWithContext(s.logger, "list entry does not exist", "scan_missing",
					logging.String(logging.FieldSourcePath, path),
					logging.Int("line", lineNo),
					logging.String(logging.FieldImpact, "entry ignored"),
				)
				continue
			case err == nil && !info.Mode().IsRegular():
				continue
			}
		}
		if err := fn(cand); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input list: %w", err)
	}
	return nil
}

func newCandidate(path string, excluded bool) Candidate {
	return Candidate{Path: path, Key: norm.NFC.String(path), Excluded: excluded}
}

// Package statefile reads and atomically rewrites the JSON documents that hold
// mediasort's persistent state.
package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"mediasort/internal/faults"
)

// Load decodes the JSON document at path into v. It reports false when the
// file is missing or empty, leaving v untouched. Undecodable content is
// tagged ErrStateCorruption.
func Load(afs afero.Fs, path string, v any) (bool, error) {
	data, err := afero.ReadFile(afs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, faults.Wrap(faults.ErrStateCorruption, "state", "decode", path, err)
	}
	return true, nil
}

// Save replaces path with the JSON encoding of v. The document is written to a
// sibling temp file, synced, and renamed into place so a crash leaves either
// the previous or the new document, never a partial one.
func Save(afs afero.Fs, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := afs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := afero.TempFile(afs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = afs.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := afs.Chmod(tmpPath, 0o644); err != nil && !errors.Is(err, os.ErrPermission) {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := afs.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	syncDir(afs, dir)
	return nil
}

// syncDir flushes the directory entry after a rename on real filesystems.
func syncDir(afs afero.Fs, dir string) {
	if _, ok := afs.(*afero.OsFs); !ok {
		return
	}
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

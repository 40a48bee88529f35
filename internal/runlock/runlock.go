// Package runlock keeps two mediasort runs from sharing one state directory.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"mediasort/internal/faults"
)

// Lock is a held advisory lock.
type Lock struct {
	path string
	lock *flock.Flock
}

// Acquire takes the run lock at path without blocking. A lock held by another
// process fails with a configuration error naming the lock file.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, faults.Configuration("create lock directory", filepath.Dir(path), err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, faults.Configuration("acquire run lock", path, err)
	}
	if !ok {
		return nil, faults.Configuration("acquire run lock",
			fmt.Sprintf("another mediasort run holds %s", path), nil)
	}
	return &Lock{path: path, lock: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. Safe to call on nil.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

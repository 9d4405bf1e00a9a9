// Package lockfile enforces single-instance execution with a held advisory
// file lock. The lock is owned by the OS for the life of the process, so a
// crash releases it automatically; there is no stale-PID problem.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld is returned when another process already holds the lock.
var ErrHeld = errors.New("another instance is already running")

// Lock is a held advisory lock. Release it when the process is done.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the advisory lock at path without blocking. It returns
// ErrHeld when the lock is held elsewhere.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	return &Lock{fl: fl}, nil
}

// Release drops the lock. Safe to call once; the lock file itself is left
// in place for the next acquirer.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.fl.Path()
}

package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process already holds the lock.
var ErrLocked = errors.New("already locked by another process")

// Lock is a held advisory file lock. Call [Lock.Close] to release it.
//
// flock(2) is advisory and applies to an open file, not a pathname. All
// cooperating processes must take the lock for it to have effect. The
// lock file itself is left in place after release; unlinking it while
// locks may be held would defeat the inode-based locking.
type Lock struct {
	file *os.File
}

// AcquireLock takes a non-blocking exclusive flock on path, creating the
// file (and its parent directory) if needed. Returns [ErrLocked] when
// another process holds it.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}

		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &Lock{file: file}, nil
}

// Close releases the lock. Safe to call more than once.
func (l *Lock) Close() error {
	if l.file == nil {
		return nil
	}

	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("unlock: %w", err)
	}

	return closeErr
}

package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// Lock is a held advisory file lock. Call [Lock.Close] to release it.
type Lock struct {
	file *os.File
}

// Close releases the lock. Calling Close again after the lock was released
// is a no-op that returns nil.
func (l *Lock) Close() error {
	if l.file == nil {
		return nil
	}

	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil

	return err
}

const (
	lockPerms     = 0o644
	lockPollEvery = 10 * time.Millisecond
)

// Flock acquires an exclusive advisory lock on path + ".lock", polling
// until the lock is acquired or ctx is done.
//
// A statefile store is single-process by design; Flock is for callers that
// share one file between processes and need exclusion around store usage.
// The lock file is created next to the target and left in place on release;
// only the flock itself is dropped.
func Flock(ctx context.Context, path string) (*Lock, error) {
	lockPath := path + ".lock"

	err := os.MkdirAll(filepath.Dir(lockPath), 0o755)
	if err != nil {
		return nil, fmt.Errorf("create lock dir for %q: %w", lockPath, err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, lockPerms)
	if err != nil {
		return nil, fmt.Errorf("open lock file %q: %w", lockPath, err)
	}

	for {
		err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &Lock{file: file}, nil
		}

		if err != unix.EWOULDBLOCK {
			_ = file.Close()

			return nil, fmt.Errorf("flock %q: %w", lockPath, err)
		}

		select {
		case <-ctx.Done():
			_ = file.Close()

			return nil, ctx.Err()
		case <-time.After(lockPollEvery):
		}
	}
}

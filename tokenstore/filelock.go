package tokenstore

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Lock acquisition defaults. A lock file older than lockStaleAfter is assumed to be
// left behind by a crashed process and is removed.
const (
	lockAttempts   = 50
	lockRetryDelay = 100 * time.Millisecond
	lockStaleAfter = 30 * time.Second
)

// ErrLockTimeout is returned when another process holds the token file lock for
// longer than the acquisition budget.
var ErrLockTimeout = errors.New("timed out waiting for token file lock")

// fileLock is an inter-process exclusive lock backed by a sibling "<path>.lock" file.
type fileLock struct {
	f    *os.File
	path string
}

type lockOptions struct {
	attempts   int
	retryDelay time.Duration
	staleAfter time.Duration
}

func defaultLockOptions() lockOptions {
	return lockOptions{
		attempts:   lockAttempts,
		retryDelay: lockRetryDelay,
		staleAfter: lockStaleAfter,
	}
}

// acquireFileLock creates target+".lock" exclusively, waiting for other holders.
func acquireFileLock(target string, opts lockOptions) (*fileLock, error) {
	lockPath := target + ".lock"

	for i := 0; i < opts.attempts; i++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			// holder pid, for whoever has to debug a stuck lock
			fmt.Fprintf(f, "%d", os.Getpid())
			return &fileLock{f: f, path: lockPath}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file %s: %w", lockPath, err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil &&
			time.Since(info.ModTime()) > opts.staleAfter {
			if rmErr := os.Remove(lockPath); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("failed to remove stale lock file %s: %w", lockPath, rmErr)
			}
			continue
		}

		time.Sleep(opts.retryDelay)
	}

	return nil, fmt.Errorf("%w after %v", ErrLockTimeout,
		time.Duration(opts.attempts)*opts.retryDelay)
}

// release closes and removes the lock file. Releasing twice returns the
// not-exist error from the second removal.
func (l *fileLock) release() error {
	if l.f != nil {
		l.f.Close()
		l.f = nil
	}
	return os.Remove(l.path)
}

// Package lock serialises recorders that share a sample database
// using flock(2) on a sibling lock file.
//
// A Scope is obtained only by running code under Run, so holding one
// is proof the lock is held for the duration of the callback.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Suffix is appended to a database path to name its lock file.
const Suffix = ".lock"

// ErrHeld is returned by TryRun when another process holds the lock.
var ErrHeld = errors.New("lock is held by another process")

// Scope is the region in which the recorder lock is held. It cannot
// be implemented outside this package.
type Scope interface {
	// Path is the lock file.
	Path() string

	scopeMarker()
}

type scope struct {
	f *os.File
}

func (*scope) scopeMarker() {}

func (s *scope) Path() string { return s.f.Name() }

// PathFor returns the lock file guarding dbPath.
func PathFor(dbPath string) string {
	return dbPath + Suffix
}

// Run acquires the exclusive lock at lockPath, runs fn, then releases.
// Acquisition retries LOCK_EX|LOCK_NB with exponential backoff until
// ctx is done.
func Run(ctx context.Context, lockPath string, fn func(context.Context, Scope) error) error {
	f, err := acquire(ctx, lockPath, true)
	if err != nil {
		return err
	}
	defer f.Close()

	return fn(ctx, &scope{f: f})
}

// TryRun is Run without waiting: it returns ErrHeld at once if the
// lock is taken.
func TryRun(ctx context.Context, lockPath string, fn func(context.Context, Scope) error) error {
	f, err := acquire(ctx, lockPath, false)
	if err != nil {
		return err
	}
	defer f.Close()

	return fn(ctx, &scope{f: f})
}

func acquire(ctx context.Context, path string, wait bool) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	backoff := 25 * time.Millisecond
	const maxBackoff = 500 * time.Millisecond

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			f.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}
		if !wait {
			f.Close()
			return nil, fmt.Errorf("%s: %w", path, ErrHeld)
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

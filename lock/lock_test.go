package lock_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-vhoststats/lock"
)

func TestPathFor(t *testing.T) {
	assert.Equal(t, "/var/lib/vhoststats/samples.db.lock", lock.PathFor("/var/lib/vhoststats/samples.db"))
}

func TestRun_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.db.lock")
	ctx := context.Background()

	err := lock.Run(ctx, path, func(ctx context.Context, s lock.Scope) error {
		assert.Equal(t, path, s.Path())

		// flock is per open file description, so a second open in
		// this process contends like another process would.
		err := lock.TryRun(ctx, path, func(context.Context, lock.Scope) error {
			t.Fatal("acquired a held lock")
			return nil
		})
		assert.ErrorIs(t, err, lock.ErrHeld)

		waitCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
		defer cancel()
		err = lock.Run(waitCtx, path, func(context.Context, lock.Scope) error { return nil })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		return nil
	})
	require.NoError(t, err)

	// Released after Run returns.
	require.NoError(t, lock.TryRun(ctx, path, func(context.Context, lock.Scope) error { return nil }))
}

func TestRun_PropagatesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	boom := errors.New("boom")
	err := lock.Run(context.Background(), path, func(context.Context, lock.Scope) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestRun_OpenFailure(t *testing.T) {
	err := lock.Run(context.Background(), filepath.Join(t.TempDir(), "missing", "x.lock"), func(context.Context, lock.Scope) error { return nil })
	assert.ErrorContains(t, err, "open lock file")
}

package fs_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/statefile/fs"
)

func TestFlock_ExcludesSecondAcquirer(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")

	lock, err := fs.Flock(context.Background(), path)
	require.NoError(t, err, "first Flock should acquire")

	// A second acquisition must block until released; give it a short
	// deadline and expect a timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = fs.Flock(ctx, path)
	require.ErrorIs(t, err, context.DeadlineExceeded, "second Flock should time out while held")

	require.NoError(t, lock.Close(), "release should succeed")

	// Released: the lock is acquirable again.
	relock, err := fs.Flock(context.Background(), path)
	require.NoError(t, err, "Flock after release should acquire")

	_ = relock.Close()
}

func TestFlock_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	lock, err := fs.Flock(context.Background(), filepath.Join(t.TempDir(), "s"))
	require.NoError(t, err)

	require.NoError(t, lock.Close(), "first Close")
	require.NoError(t, lock.Close(), "second Close")
}

func TestFlock_LockFileIsLeftInPlace(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")

	lock, err := fs.Flock(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, lock.Close())

	exists, err := fs.NewReal().Exists(path + ".lock")
	require.NoError(t, err)
	require.True(t, exists, "lock file stays; only the flock is released")
}

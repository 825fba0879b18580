package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	token, ok, err := locker.TryLock(ctx, "txn:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "txn:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Independent keys do not contend.
	_, ok, err = locker.TryLock(ctx, "txn:2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, locker.Release(ctx, "txn:1", token))
	_, ok, err = locker.TryLock(ctx, "txn:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLockerReleaseRequiresToken(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	_, ok, err := locker.TryLock(ctx, "txn:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Wrong token leaves the lock held.
	require.NoError(t, locker.Release(ctx, "txn:1", "not-the-token"))
	_, ok, err = locker.TryLock(ctx, "txn:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLockerExpiry(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	_, ok, err := locker.TryLock(ctx, "txn:1", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	_, ok, err = locker.TryLock(ctx, "txn:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLockerValidation(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	_, _, err := locker.TryLock(ctx, "", time.Minute)
	assert.Error(t, err)

	_, _, err = locker.TryLock(ctx, "txn:1", 0)
	assert.Error(t, err)
}

package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client), mr
}

func TestLockerExclusive(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "lock:a", "one", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "lock:a", "two", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))

	_, err = locker.Acquire(ctx, "lock:a", "two", time.Minute)
	assert.NoError(t, err)
}

func TestLockerReleaseKeepsForeignToken(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "lock:b", "one", time.Minute)
	require.NoError(t, err)

	// Simulate expiry and re-acquisition by another holder.
	mr.Del("lock:b")
	_, err = locker.Acquire(ctx, "lock:b", "two", time.Minute)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	val, err := mr.Get("lock:b")
	require.NoError(t, err)
	assert.Equal(t, "two", val)
}

func TestLockerExpires(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "lock:c", "one", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = locker.Acquire(ctx, "lock:c", "two", time.Second)
	assert.NoError(t, err)
}

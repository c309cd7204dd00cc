package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/account-lifecycle/internal/application"
)

func newLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "test:"), s
}

func TestAcquireIsExclusive(t *testing.T) {
	l, _ := newLocker(t)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "lifecycle:lock:purge_deleted", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "lifecycle:lock:purge_deleted", time.Minute)
	assert.ErrorIs(t, err, application.ErrLockHeld)

	other, err := l.Acquire(ctx, "lifecycle:lock:anonymize", time.Minute)
	require.NoError(t, err, "locks are per rule")
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	again, err := l.Acquire(ctx, "lifecycle:lock:purge_deleted", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestExpiredLeaseDoesNotReleaseNewHolder(t *testing.T) {
	l, s := newLocker(t)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	s.FastForward(2 * time.Second)
	fresh, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Release(ctx), ErrLeaseLost)
	assert.True(t, s.Exists("test:k"), "the new holder keeps its lock")
	require.NoError(t, fresh.Release(ctx))
	assert.False(t, s.Exists("test:k"))
}

func TestExtendKeepsLeasePastOriginalTTL(t *testing.T) {
	l, s := newLocker(t)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "k", 3*time.Second)
	require.NoError(t, err)

	s.FastForward(2 * time.Second)
	require.NoError(t, lease.Extend(ctx, 3*time.Second))
	s.FastForward(2 * time.Second)

	assert.True(t, s.Exists("test:k"))
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, application.ErrLockHeld)
	require.NoError(t, lease.Release(ctx))
}

func TestExtendFailsOnceLeaseIsLost(t *testing.T) {
	l, s := newLocker(t)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	s.FastForward(2 * time.Second)
	fresh, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Extend(ctx, time.Hour), application.ErrLeaseLost)
	assert.Equal(t, time.Minute, s.TTL("test:k"), "the new holder's TTL is untouched")
	require.NoError(t, fresh.Release(ctx))
}

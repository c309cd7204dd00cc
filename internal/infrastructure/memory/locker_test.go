package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/account-lifecycle/internal/application"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocker()

	lease, err := l.Acquire(ctx, "a", time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "a", time.Minute)
	assert.ErrorIs(t, err, application.ErrLockHeld)
	require.NoError(t, lease.Extend(ctx, time.Minute))

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))

	lease, err = l.Acquire(ctx, "a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

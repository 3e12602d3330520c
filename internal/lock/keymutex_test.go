package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainbazaar/escrowd/internal/domain"
)

func TestKeyMutexAcquireRelease(t *testing.T) {
	km := NewKeyMutex()
	ctx := context.Background()

	unlock, err := km.Acquire(ctx, "a", time.Second)
	require.NoError(t, err)

	_, err = km.Acquire(ctx, "a", time.Second)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	// A different key is independent.
	unlockB, err := km.Acquire(ctx, "b", time.Second)
	require.NoError(t, err)
	unlockB()

	unlock()
	unlock() // double release is a no-op

	unlock2, err := km.Acquire(ctx, "a", time.Second)
	require.NoError(t, err)
	unlock2()
}

func TestKeyMutexCancelledContext(t *testing.T) {
	km := NewKeyMutex()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := km.Acquire(ctx, "a", time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

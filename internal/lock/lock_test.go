package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, ttl, zap.NewNop()), mr
}

func TestAcquireIsExclusive(t *testing.T) {
	l, _ := newTestLocker(t, 0)
	ctx := context.Background()

	ok, holder, err := l.Acquire(ctx, "2024-03-15", "job-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "job-a", holder)

	ok, holder, err = l.Acquire(ctx, "2024-03-15", "job-b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "job-a", holder)
}

func TestAcquireIsReentrantForSameOwner(t *testing.T) {
	l, _ := newTestLocker(t, 0)
	ctx := context.Background()

	ok, _, err := l.Acquire(ctx, "2024-03-15", "job-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = l.Acquire(ctx, "2024-03-15", "job-a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistinctDatesDoNotContend(t *testing.T) {
	l, _ := newTestLocker(t, 0)
	ctx := context.Background()

	ok, _, err := l.Acquire(ctx, "2024-03-15", "job-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = l.Acquire(ctx, "2024-03-16", "job-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseCountsDeletions(t *testing.T) {
	l, _ := newTestLocker(t, 0)
	ctx := context.Background()

	ok, _, err := l.Acquire(ctx, "2024-03-15", "job-a")
	require.NoError(t, err)
	require.True(t, ok)

	n, err := l.Release(ctx, "2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = l.Release(ctx, "2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestReleasedDateCanBeReacquired(t *testing.T) {
	l, _ := newTestLocker(t, 0)
	ctx := context.Background()

	ok, _, err := l.Acquire(ctx, "2024-03-15", "job-a")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = l.Release(ctx, "2024-03-15")
	require.NoError(t, err)

	ok, _, err = l.Acquire(ctx, "2024-03-15", "job-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockExpiresWithTTL(t *testing.T) {
	l, mr := newTestLocker(t, time.Minute)
	ctx := context.Background()

	ok, _, err := l.Acquire(ctx, "2024-03-15", "job-a")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, _, err = l.Acquire(ctx, "2024-03-15", "job-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

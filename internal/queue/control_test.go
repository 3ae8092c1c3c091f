package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFlags(t *testing.T) (*Flags, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewFlags(rdb), mr
}

func TestStopFlagRoundTrip(t *testing.T) {
	f, _ := newTestFlags(t)
	ctx := context.Background()

	stopped, err := f.StopRequested(ctx, "2024-03-15")
	require.NoError(t, err)
	assert.False(t, stopped)

	require.NoError(t, f.RequestStop(ctx, "2024-03-15"))

	stopped, err = f.StopRequested(ctx, "2024-03-15")
	require.NoError(t, err)
	assert.True(t, stopped)

	// The flag is per date.
	stopped, err = f.StopRequested(ctx, "2024-03-16")
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestProgressRoundTrip(t *testing.T) {
	f, _ := newTestFlags(t)
	ctx := context.Background()

	pct, err := f.Progress(ctx, "job-1")
	require.NoError(t, err)
	assert.Zero(t, pct)

	require.NoError(t, f.SetProgress(ctx, "job-1", 37.5))

	pct, err = f.Progress(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 37.5, pct)
}

func TestRequeueAddsToRetrySet(t *testing.T) {
	f, mr := newTestFlags(t)
	ctx := context.Background()

	require.NoError(t, f.Requeue(ctx, "p1"))
	require.NoError(t, f.Requeue(ctx, "p2"))
	require.NoError(t, f.Requeue(ctx, "p1"))

	members, err := mr.SMembers(RateLimitedSet)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, members)
}

func TestJobControlClampsProgress(t *testing.T) {
	f, _ := newTestFlags(t)
	ctx := context.Background()

	ctrl := &jobControl{flags: f, jobID: "job-1", date: "2024-03-15"}
	assert.Equal(t, "job-1", ctrl.JobID())

	require.NoError(t, ctrl.Progress(ctx, 40))
	require.NoError(t, ctrl.Progress(ctx, 20))

	pct, err := f.Progress(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 40.0, pct)
}

func TestJobControlReadsStopFlagForItsDate(t *testing.T) {
	f, _ := newTestFlags(t)
	ctx := context.Background()

	ctrl := &jobControl{flags: f, jobID: "job-1", date: "2024-03-15"}

	stopped, err := ctrl.Stopped(ctx)
	require.NoError(t, err)
	assert.False(t, stopped)

	require.NoError(t, f.RequestStop(ctx, "2024-03-15"))

	stopped, err = ctrl.Stopped(ctx)
	require.NoError(t, err)
	assert.True(t, stopped)
}

func TestValidDate(t *testing.T) {
	assert.True(t, ValidDate("2024-03-15"))
	assert.False(t, ValidDate("2024-3-15"))
	assert.False(t, ValidDate("20240315"))
	assert.False(t, ValidDate("2024-03-15T00:00:00Z"))
	assert.False(t, ValidDate(""))
}

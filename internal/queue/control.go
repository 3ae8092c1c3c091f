package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	stopKeyPrefix     = "stop:"
	progressKeyPrefix = "job:progress:"

	// RateLimitedSet collects record ids that hit the CDN metadata rate
	// limit, so they can be re-submitted instead of dropped.
	RateLimitedSet = "migrate:ratelimited"

	progressTTL = 14 * 24 * time.Hour
)

// Flags is the shared Redis surface for job coordination: the per-date
// cooperative stop flag, per-job progress, and the rate-limit retry
// set.
type Flags struct {
	rdb *redis.Client
}

// NewFlags creates a Flags store.
func NewFlags(rdb *redis.Client) *Flags {
	return &Flags{rdb: rdb}
}

// RequestStop sets the cooperative stop flag for a date. The running
// job observes it at its next batch boundary; the in-flight batch
// finishes.
func (f *Flags) RequestStop(ctx context.Context, date string) error {
	if err := f.rdb.Set(ctx, stopKeyPrefix+date, "1", 0).Err(); err != nil {
		return fmt.Errorf("set stop flag for %s: %w", date, err)
	}
	return nil
}

// StopRequested reads the stop flag for a date.
func (f *Flags) StopRequested(ctx context.Context, date string) (bool, error) {
	_, err := f.rdb.Get(ctx, stopKeyPrefix+date).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read stop flag for %s: %w", date, err)
	}
	return true, nil
}

// SetProgress persists a job's progress percentage.
func (f *Flags) SetProgress(ctx context.Context, jobID string, pct float64) error {
	if err := f.rdb.Set(ctx, progressKeyPrefix+jobID, pct, progressTTL).Err(); err != nil {
		return fmt.Errorf("set progress for job %s: %w", jobID, err)
	}
	return nil
}

// Progress reads a job's progress percentage; unknown jobs report 0.
func (f *Flags) Progress(ctx context.Context, jobID string) (float64, error) {
	val, err := f.rdb.Get(ctx, progressKeyPrefix+jobID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read progress for job %s: %w", jobID, err)
	}
	return strconv.ParseFloat(val, 64)
}

// Requeue adds a rate-limited record id to the retry set.
func (f *Flags) Requeue(ctx context.Context, photoID string) error {
	if err := f.rdb.SAdd(ctx, RateLimitedSet, photoID).Err(); err != nil {
		return fmt.Errorf("requeue photo %s: %w", photoID, err)
	}
	return nil
}

// jobControl adapts Flags to the engine's Control interface for one
// job. Progress is clamped monotonically non-decreasing.
type jobControl struct {
	flags *Flags
	jobID string
	date  string
	last  float64
}

func (c *jobControl) JobID() string { return c.jobID }

func (c *jobControl) Progress(ctx context.Context, pct float64) error {
	if pct < c.last {
		pct = c.last
	}
	c.last = pct
	return c.flags.SetProgress(ctx, c.jobID, pct)
}

func (c *jobControl) Stopped(ctx context.Context) (bool, error) {
	return c.flags.StopRequested(ctx, c.date)
}

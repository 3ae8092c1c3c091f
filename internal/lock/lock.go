// Package lock provides per-date mutual exclusion over the shared Redis
// store. The queue guarantees at-most-one concurrent delivery per job
// id, but nothing stops two different jobs from targeting the same date;
// this lock does.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func key(date string) string { return "lock:" + date }

// Locker acquires and releases date locks.
type Locker struct {
	rdb *redis.Client
	// TTL of zero means the lock lives until explicitly released; a
	// crashed worker then strands it until `photomigrate unlock` is
	// run. A positive TTL trades that for self-healing.
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a Locker.
func New(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Locker {
	return &Locker{rdb: rdb, ttl: ttl, logger: logger}
}

// Acquire attempts to take the lock for date with an atomic
// create-if-absent write. When the lock is already held, the current
// holder is returned for diagnostics; re-entry by the same owner is
// reported as acquired.
func (l *Locker) Acquire(ctx context.Context, date, owner string) (bool, string, error) {
	ok, err := l.rdb.SetNX(ctx, key(date), owner, l.ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("acquire lock for %s: %w", date, err)
	}
	if ok {
		return true, owner, nil
	}

	holder, err := l.rdb.Get(ctx, key(date)).Result()
	if err == redis.Nil {
		// Holder released between SETNX and GET; treat as a conflict,
		// the job will be re-submitted.
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("read lock holder for %s: %w", date, err)
	}

	if holder == owner {
		return true, holder, nil
	}
	return false, holder, nil
}

// Release deletes the lock and returns the number of keys removed.
// Anything other than exactly 1 is an invariant violation the caller
// logs; it is never fatal.
func (l *Locker) Release(ctx context.Context, date string) (int64, error) {
	n, err := l.rdb.Del(ctx, key(date)).Result()
	if err != nil {
		return 0, fmt.Errorf("release lock for %s: %w", date, err)
	}
	return n, nil
}

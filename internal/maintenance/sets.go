// Package maintenance holds the one-shot workers that run after the
// bulk migration: archiving legacy CDN assets to cold storage and
// purging them from the CDN. Work items are public ids held in Redis
// sets, drained in batches so the workers can be killed and resumed.
package maintenance

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis set names for the archive and purge pipelines. Ids move from
// the pending set to done or error as they are processed.
const (
	ArchivePendingSet = "archive:pending"
	ArchiveDoneSet    = "archive:done"
	ArchiveErrorSet   = "archive:error"

	PurgePendingSet = "purge:pending"
	PurgeDoneSet    = "purge:done"
	PurgeErrorSet   = "purge:error"
)

// workSets drains a pending set and records outcomes in sibling sets.
type workSets struct {
	rdb     *redis.Client
	pending string
	done    string
	errored string
}

// nextBatch pops up to n ids from the pending set. An empty slice
// means the set is drained.
func (w *workSets) nextBatch(ctx context.Context, n int) ([]string, error) {
	ids, err := w.rdb.SPopN(ctx, w.pending, int64(n)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("pop from %s: %w", w.pending, err)
	}
	return ids, nil
}

func (w *workSets) markDone(ctx context.Context, id string) error {
	return w.rdb.SAdd(ctx, w.done, id).Err()
}

func (w *workSets) markError(ctx context.Context, id string) error {
	return w.rdb.SAdd(ctx, w.errored, id).Err()
}

// requeue puts an id back on the pending set for a later run.
func (w *workSets) requeue(ctx context.Context, id string) error {
	return w.rdb.SAdd(ctx, w.pending, id).Err()
}

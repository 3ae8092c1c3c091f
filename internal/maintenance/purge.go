package maintenance

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"photomigrate/internal/cdn"
)

// Destroyer removes CDN-hosted assets by public id.
type Destroyer interface {
	Destroy(ctx context.Context, publicID string) (cdn.DestroyResult, error)
}

// Purger deletes already-archived assets from the CDN. Rate-limited ids
// go back on the pending set for the next run.
type Purger struct {
	sets      workSets
	cdn       Destroyer
	batchSize int
	maxItems  int
	logger    *zap.Logger
}

// NewPurger creates a Purger draining the purge pending set.
func NewPurger(rdb *redis.Client, cdn Destroyer, batchSize, maxItems int, logger *zap.Logger) *Purger {
	return &Purger{
		sets: workSets{
			rdb:     rdb,
			pending: PurgePendingSet,
			done:    PurgeDoneSet,
			errored: PurgeErrorSet,
		},
		cdn:       cdn,
		batchSize: batchSize,
		maxItems:  maxItems,
		logger:    logger,
	}
}

// Run drains the pending set until empty, maxItems is reached, the CDN
// rate limit trips, or the context ends. Hitting the rate limit stops
// the run outright: the remaining ids stay pending and the daily budget
// resets before the next run.
func (p *Purger) Run(ctx context.Context) (purged, failed int, err error) {
	for purged+failed < p.maxItems {
		if err := ctx.Err(); err != nil {
			return purged, failed, err
		}

		n := p.batchSize
		if remaining := p.maxItems - purged - failed; remaining < n {
			n = remaining
		}
		ids, err := p.sets.nextBatch(ctx, n)
		if err != nil {
			return purged, failed, err
		}
		if len(ids) == 0 {
			break
		}

		for i, id := range ids {
			result, err := p.cdn.Destroy(ctx, id)
			if err != nil {
				p.logger.Error("failed to purge asset", zap.String("public_id", id), zap.Error(err))
				if serr := p.sets.markError(ctx, id); serr != nil {
					return purged, failed, serr
				}
				failed++
				continue
			}

			switch result {
			case cdn.DestroyOK, cdn.DestroyNotFound:
				// Already gone counts as purged.
				if serr := p.sets.markDone(ctx, id); serr != nil {
					return purged, failed, serr
				}
				purged++
			case cdn.DestroyRateLimited:
				p.logger.Warn("purge rate limited, requeueing remainder",
					zap.Int("remaining", len(ids)-i))
				for _, rest := range ids[i:] {
					if serr := p.sets.requeue(ctx, rest); serr != nil {
						return purged, failed, serr
					}
				}
				p.logger.Info("purge run finished early", zap.Int("purged", purged), zap.Int("failed", failed))
				return purged, failed, nil
			default:
				if serr := p.sets.markError(ctx, id); serr != nil {
					return purged, failed, serr
				}
				failed++
			}
		}
	}

	p.logger.Info("purge run finished", zap.Int("purged", purged), zap.Int("failed", failed))
	return purged, failed, nil
}

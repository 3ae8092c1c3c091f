package maintenance

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"photomigrate/internal/storage"
)

// Fetcher downloads a CDN-hosted asset by public id.
type Fetcher interface {
	UploadURL(publicID string) string
	Download(ctx context.Context, rawURL string) (io.ReadCloser, int64, string, error)
}

// Archiver copies legacy CDN assets into the cold-storage bucket.
type Archiver struct {
	sets      workSets
	cdn       Fetcher
	store     storage.Client
	bucket    string
	batchSize int
	maxItems  int
	logger    *zap.Logger
}

// NewArchiver creates an Archiver draining the archive pending set.
func NewArchiver(rdb *redis.Client, cdn Fetcher, store storage.Client, bucket string, batchSize, maxItems int, logger *zap.Logger) *Archiver {
	return &Archiver{
		sets: workSets{
			rdb:     rdb,
			pending: ArchivePendingSet,
			done:    ArchiveDoneSet,
			errored: ArchiveErrorSet,
		},
		cdn:       cdn,
		store:     store,
		bucket:    bucket,
		batchSize: batchSize,
		maxItems:  maxItems,
		logger:    logger,
	}
}

// Run drains the pending set until it is empty, maxItems is reached, or
// the context ends. Each id is archived independently; a failed id goes
// to the error set and the run continues.
func (a *Archiver) Run(ctx context.Context) (archived, failed int, err error) {
	for archived+failed < a.maxItems {
		if err := ctx.Err(); err != nil {
			return archived, failed, err
		}

		n := a.batchSize
		if remaining := a.maxItems - archived - failed; remaining < n {
			n = remaining
		}
		ids, err := a.sets.nextBatch(ctx, n)
		if err != nil {
			return archived, failed, err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if err := a.archiveOne(ctx, id); err != nil {
				a.logger.Error("failed to archive asset", zap.String("public_id", id), zap.Error(err))
				if serr := a.sets.markError(ctx, id); serr != nil {
					return archived, failed, serr
				}
				failed++
				continue
			}
			if serr := a.sets.markDone(ctx, id); serr != nil {
				return archived, failed, serr
			}
			archived++
		}
	}

	a.logger.Info("archive run finished", zap.Int("archived", archived), zap.Int("failed", failed))
	return archived, failed, nil
}

func (a *Archiver) archiveOne(ctx context.Context, publicID string) error {
	body, size, contentType, err := a.cdn.Download(ctx, a.cdn.UploadURL(publicID))
	if err != nil {
		return err
	}
	defer body.Close()

	if _, err := a.store.Upload(ctx, a.bucket, publicID, body, size, contentType); err != nil {
		return fmt.Errorf("upload %s to archive: %w", publicID, err)
	}
	return nil
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"photomigrate/internal/cdn"
	"photomigrate/internal/config"
	"photomigrate/internal/db"
	"photomigrate/internal/filestack"
	"photomigrate/internal/lock"
	"photomigrate/internal/metrics"
	"photomigrate/internal/migrate"
	"photomigrate/internal/storage"
	"photomigrate/internal/transform"
)

// Runner executes date jobs pulled from the queue: lock the date,
// migrate it batch by batch, release the lock on every exit path. The
// document-database connection is dialed per job and closed the same
// way.
type Runner struct {
	cfg     *config.Config
	flags   *Flags
	locker  *lock.Locker
	store   storage.Client
	cdn     *cdn.Client
	index   *filestack.Index
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(
	cfg *config.Config,
	rdb *redis.Client,
	store storage.Client,
	cdnClient *cdn.Client,
	index *filestack.Index,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		cfg:     cfg,
		flags:   NewFlags(rdb),
		locker:  lock.New(rdb, cfg.Migration.LockTTL, logger),
		store:   store,
		cdn:     cdnClient,
		index:   index,
		metrics: collector,
		logger:  logger,
	}
}

// ProcessTask handles one date job. Returning an error marks the job
// failed; with MaxRetry(0) there is no second attempt.
func (r *Runner) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload MigratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID := t.ResultWriter().TaskID()
	logger := r.logger.With(zap.String("date", payload.Date), zap.String("job_id", jobID))
	logger.Info("running date job")

	r.metrics.JobStarted()
	defer r.metrics.JobFinished()

	if err := r.flags.SetProgress(ctx, jobID, 0); err != nil {
		logger.Error("failed to reset progress", zap.Error(err))
	}

	photoStore, err := db.Connect(ctx, r.cfg.Mongo.URI, r.cfg.Mongo.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := photoStore.Close(context.Background()); err != nil {
			logger.Error("failed to close photo store", zap.Error(err))
		}
	}()
	logger.Info("connected to document database")

	acquired, holder, err := r.locker.Acquire(ctx, payload.Date, jobID)
	if err != nil {
		return err
	}
	if !acquired {
		err := migrate.LockConflict(payload.Date, holder)
		logger.Error("date lock conflict", zap.String("holder", holder))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	// Release on every exit path. The job may already be torn down, so
	// the release uses a fresh context.
	defer func() {
		n, err := r.locker.Release(context.Background(), payload.Date)
		if err != nil {
			logger.Error("failed to release date lock", zap.Error(err))
			return
		}
		if n != 1 {
			logger.Error("lock release count mismatch", zap.Int64("deleted", n))
		}
	}()

	engine := &migrate.Engine{
		Photos:  photoStore,
		Audit:   photoStore,
		Mover:   migrate.NewMover(r.cdn, r.store, r.cfg.Migration.DryRun, logger),
		Deriver: &transform.Deriver{AllowedClouds: r.cfg.CDN.AllowedClouds, Resolver: r.cdn},
		Index:   r.index,
		Store:   r.store,
		Retry:   r.flags,
		Metrics: r.metrics,
		Buckets: migrate.Buckets{
			Transformed: r.cfg.Storage.TransformedBucket,
			Filestack:   r.cfg.Storage.FilestackBucket,
		},
		BatchSize:  r.cfg.Migration.BatchSize,
		MaxRecords: r.cfg.Migration.MaxRecordsPerDay,
		DryRun:     r.cfg.Migration.DryRun,
		Logger:     r.logger,
	}

	res, err := engine.MigrateDate(ctx, payload.Date, &jobControl{
		flags: r.flags,
		jobID: jobID,
		date:  payload.Date,
	})
	if err != nil {
		return err
	}

	logger.Info("date job finished",
		zap.String("status", string(res.Status)),
		zap.Int("records_queried", res.RecordsQueried),
		zap.Int("records_migrated", res.RecordsMigrated))

	if result, err := json.Marshal(res); err == nil {
		if _, err := t.ResultWriter().Write(result); err != nil {
			logger.Error("failed to write job result", zap.Error(err))
		}
	}

	return nil
}

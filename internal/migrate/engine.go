package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"photomigrate/internal/classify"
	"photomigrate/internal/filestack"
	"photomigrate/internal/metrics"
	"photomigrate/internal/photo"
	"photomigrate/internal/storage"
	"photomigrate/internal/transform"
)

// DateLayout is the calendar-date partition format.
const DateLayout = "2006-01-02"

// Status is the terminal state of one date migration.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
)

// Result reports one date migration.
type Result struct {
	Status          Status `json:"status"`
	RecordsQueried  int    `json:"recordsQueried"`
	RecordsMigrated int    `json:"recordsMigrated"`
	Date            string `json:"date"`
}

// PhotoStore is the document-database surface the engine needs.
type PhotoStore interface {
	PhotosForDate(ctx context.Context, date time.Time, limit int64) ([]photo.Photo, error)
	UpdatePhoto(ctx context.Context, id string, after map[string]string) error
}

// AuditLog appends immutable migration log entries.
type AuditLog interface {
	Append(ctx context.Context, entry *photo.LogEntry) error
}

// Control is the job-scoped coordination surface: progress reporting
// and the cooperative stop flag, both evaluated at batch boundaries
// only.
type Control interface {
	JobID() string
	Progress(ctx context.Context, pct float64) error
	Stopped(ctx context.Context) (bool, error)
}

// RetrySink receives records that hit the CDN metadata rate limit so
// they can be re-submitted instead of silently dropped.
type RetrySink interface {
	Requeue(ctx context.Context, photoID string) error
}

// Buckets names the destination buckets.
type Buckets struct {
	Transformed string
	Filestack   string
}

// Engine migrates the records of one calendar date: classification,
// rewriting, object moves, audit entries and document updates, in
// bounded parallel batches with sequential batch order.
type Engine struct {
	Photos  PhotoStore
	Audit   AuditLog
	Mover   ObjectMover
	Deriver *transform.Deriver
	Index   *filestack.Index
	Store   storage.Client
	Retry   RetrySink
	Metrics *metrics.Collector

	Buckets    Buckets
	BatchSize  int
	MaxRecords int64
	DryRun     bool
	Logger     *zap.Logger
}

// MigrateDate processes one date end to end. The caller must already
// hold the date lock.
func (e *Engine) MigrateDate(ctx context.Context, dateStr string, ctrl Control) (Result, error) {
	res := Result{Status: StatusCompleted, Date: dateStr}

	date, err := time.Parse(DateLayout, dateStr)
	if err != nil {
		return res, ShapeViolation("invalid date %q: %v", dateStr, err)
	}

	logger := e.Logger.With(zap.String("date", dateStr), zap.String("job_id", ctrl.JobID()))

	photos, err := e.Photos.PhotosForDate(ctx, date, e.MaxRecords)
	if err != nil {
		return res, fmt.Errorf("query photos for %s: %w", dateStr, err)
	}
	res.RecordsQueried = len(photos)
	logger.Info("found photos to migrate", zap.Int("count", len(photos)))

	if len(photos) == 0 {
		e.reportProgress(ctx, ctrl, 100, logger)
		return res, nil
	}

	for start := 0; start < len(photos); start += e.BatchSize {
		end := start + e.BatchSize
		if end > len(photos) {
			end = len(photos)
		}
		batch := photos[start:end]

		batchStart := time.Now()
		counts := make([]int, len(batch))
		var wg sync.WaitGroup
		for i := range batch {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				counts[i] = e.processRecord(ctx, dateStr, ctrl.JobID(), &batch[i], logger)
			}(i)
		}
		wg.Wait()
		e.Metrics.ObserveBatch(time.Since(batchStart))

		for _, n := range counts {
			res.RecordsMigrated += n
		}

		e.reportProgress(ctx, ctrl, float64(end)/float64(len(photos))*100, logger)

		if err := ctx.Err(); err != nil {
			res.Status = StatusStopped
			return res, err
		}
		stopped, err := ctrl.Stopped(ctx)
		if err != nil {
			logger.Error("failed to read stop flag", zap.Error(err))
		}
		if stopped {
			logger.Info("stop requested, ending date early",
				zap.Int("records_migrated", res.RecordsMigrated))
			res.Status = StatusStopped
			return res, nil
		}
	}

	return res, nil
}

func (e *Engine) reportProgress(ctx context.Context, ctrl Control, pct float64, logger *zap.Logger) {
	if err := ctrl.Progress(ctx, pct); err != nil {
		logger.Error("failed to report progress", zap.Error(err))
	}
}

// processRecord classifies and migrates one record, returning 1 when it
// was migrated and 0 otherwise. Failures never propagate: every record
// resolves to a logged outcome and the batch continues.
func (e *Engine) processRecord(ctx context.Context, date, jobID string, p *photo.Photo, logger *zap.Logger) int {
	logger = logger.With(zap.String("photo_id", p.ID))
	logger.Info("start migrating")

	cls := classify.Classify(p)
	switch cls.Kind {
	case classify.SkipAlreadyMigrated:
		logger.Info("already migrated, skipping")
		e.Metrics.IncRecord("skipped")
		return 0
	case classify.Invalid:
		logger.Error("record failed classification", zap.String("reason", cls.Reason))
		e.recordFailure(ctx, date, jobID, p, ShapeViolation("%s", cls.Reason), logger)
		e.Metrics.IncRecord("invalid")
		return 0
	}
	logger.Info("classified", zap.Stringer("kind", cls.Kind))

	before := p.References()
	out, err := e.buildOutcome(ctx, cls.Kind, p, logger)
	if err != nil {
		switch KindOf(err) {
		case KindRateLimited:
			logger.Warn("metadata lookup rate limited, requeueing record", zap.Error(err))
			if e.Retry != nil {
				if rqErr := e.Retry.Requeue(ctx, p.ID); rqErr != nil {
					logger.Error("failed to requeue rate-limited record", zap.Error(rqErr))
				}
			}
			e.Metrics.IncRecord("rate_limited")
		case KindShapeViolation:
			e.Metrics.IncRecord("invalid")
		default:
			e.Metrics.IncRecord("failed")
		}
		logger.Error("record migration failed", zap.Error(err))
		e.recordFailure(ctx, date, jobID, p, err, logger)
		return 0
	}
	e.Metrics.IncMovedFiles(len(out.moved))

	if e.DryRun {
		logger.Info("dry run, not updating",
			zap.Any("before", before),
			zap.Any("after", out.after),
			zap.Any("migrated_files", out.moved))
		e.Metrics.IncRecord("migrated")
		return 1
	}

	// Audit first: a record only counts as processed once its entry is
	// durable, so a crash between the two writes is distinguishable
	// from "never touched".
	entry := &photo.LogEntry{
		JobID:          jobID,
		Date:           date,
		PhotoID:        p.ID,
		PhotoCreatedAt: p.CreatedAt,
		Before:         before,
		After:          out.after,
		MovedFiles:     out.moved,
	}
	if err := e.Audit.Append(ctx, entry); err != nil {
		logger.Error("failed to append migration log", zap.Error(err))
		e.Metrics.IncRecord("failed")
		return 0
	}

	if err := e.Photos.UpdatePhoto(ctx, p.ID, out.after); err != nil {
		logger.Error("failed to update photo", zap.Error(err))
		e.recordFailure(ctx, date, jobID, p, err, logger)
		e.Metrics.IncRecord("failed")
		return 0
	}

	logger.Info("done migrating")
	e.Metrics.IncRecord("migrated")
	return 1
}

// recordFailure writes an audit entry carrying only the error, so an
// attempted-and-failed record is distinguishable from an untouched one.
func (e *Engine) recordFailure(ctx context.Context, date, jobID string, p *photo.Photo, cause error, logger *zap.Logger) {
	if e.DryRun {
		return
	}
	entry := &photo.LogEntry{
		JobID:          jobID,
		Date:           date,
		PhotoID:        p.ID,
		PhotoCreatedAt: p.CreatedAt,
		Error:          cause.Error(),
	}
	if err := e.Audit.Append(ctx, entry); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("failed to append failure entry", zap.Error(err))
	}
}

// Package backfill tops up the queue: it walks the migration backwards
// in time by enqueueing the days preceding the earliest date already
// queued, keeping a bounded number of jobs in flight.
package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"photomigrate/internal/migrate"
	"photomigrate/internal/queue"
)

const listPageSize = 100

// Enqueuer submits date jobs.
type Enqueuer interface {
	EnqueueDate(ctx context.Context, date string) (string, error)
}

// Inspector is the queue-introspection surface the scheduler needs.
type Inspector interface {
	GetQueueInfo(qname string) (*asynq.QueueInfo, error)
	ListActiveTasks(qname string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListPendingTasks(qname string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListScheduledTasks(qname string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// Scheduler inspects the queue and submits new date jobs.
type Scheduler struct {
	inspector Inspector
	client    Enqueuer
	maxActive int
	logger    *zap.Logger
}

// New creates a Scheduler from a Redis URL.
func New(redisURL string, client Enqueuer, maxActive int, logger *zap.Logger) (*Scheduler, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewWithInspector(asynq.NewInspector(opt), client, maxActive, logger), nil
}

// NewWithInspector creates a Scheduler over an existing inspector.
func NewWithInspector(inspector Inspector, client Enqueuer, maxActive int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		inspector: inspector,
		client:    client,
		maxActive: maxActive,
		logger:    logger,
	}
}

// Run fills the queue up to the active-job cap. New jobs cover the days
// immediately preceding the earliest date currently known to the queue,
// so the migration sweeps backwards without gaps. Returns the dates it
// enqueued.
func (s *Scheduler) Run(ctx context.Context) ([]string, error) {
	active, earliest, err := s.inventory()
	if err != nil {
		return nil, err
	}

	if earliest.IsZero() {
		s.logger.Info("no dates in queue, nothing to extend from")
		return nil, nil
	}
	if active >= s.maxActive {
		s.logger.Info("queue at capacity", zap.Int("active", active), zap.Int("max", s.maxActive))
		return nil, nil
	}

	var enqueued []string
	for day := earliest.AddDate(0, 0, -1); active < s.maxActive; day = day.AddDate(0, 0, -1) {
		date := day.Format(migrate.DateLayout)
		id, err := s.client.EnqueueDate(ctx, date)
		if err != nil {
			return enqueued, fmt.Errorf("enqueue %s: %w", date, err)
		}
		s.logger.Info("backfilled date job", zap.String("date", date), zap.String("job_id", id))
		enqueued = append(enqueued, date)
		active++
	}

	return enqueued, nil
}

// Close releases the inspector's Redis connection.
func (s *Scheduler) Close() error {
	return s.inspector.Close()
}

// inventory counts in-flight jobs and finds the earliest date among
// them. The count comes from the queue's own counters so it is exact
// regardless of queue depth; the lists are paged only to read payload
// dates. Completed and archived jobs are out of scope: they no longer
// occupy a slot, and the backfill only extends past dates still queued.
func (s *Scheduler) inventory() (int, time.Time, error) {
	info, err := s.inspector.GetQueueInfo(queue.QueueName)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("read queue info: %w", err)
	}
	active := info.Active + info.Pending + info.Scheduled

	var earliest time.Time
	lists := []func(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error){
		s.inspector.ListActiveTasks,
		s.inspector.ListPendingTasks,
		s.inspector.ListScheduledTasks,
	}
	for _, list := range lists {
		for page := 1; ; page++ {
			tasks, err := list(queue.QueueName, asynq.PageSize(listPageSize), asynq.Page(page))
			if errors.Is(err, asynq.ErrQueueNotFound) {
				break
			}
			if err != nil {
				return 0, time.Time{}, fmt.Errorf("list queue tasks: %w", err)
			}
			for _, t := range tasks {
				var payload queue.MigratePayload
				if err := json.Unmarshal(t.Payload, &payload); err != nil {
					continue
				}
				day, err := time.Parse(migrate.DateLayout, payload.Date)
				if err != nil {
					continue
				}
				if earliest.IsZero() || day.Before(earliest) {
					earliest = day
				}
			}
			if len(tasks) < listPageSize {
				break
			}
		}
	}

	return active, earliest, nil
}

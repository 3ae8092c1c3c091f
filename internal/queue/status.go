package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"

	"photomigrate/internal/migrate"
)

// JobStatus is the externally visible state of one date job.
type JobStatus struct {
	ID       string  `json:"id"`
	Date     string  `json:"date"`
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
	Reason   string  `json:"reason,omitempty"`
}

// StatusReader resolves job ids to their current state.
type StatusReader struct {
	inspector *asynq.Inspector
	flags     *Flags
}

// NewStatusReader creates a StatusReader against the given Redis URI.
func NewStatusReader(redisURL string, flags *Flags) (*StatusReader, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}
	return &StatusReader{
		inspector: asynq.NewInspector(opt),
		flags:     flags,
	}, nil
}

// Status looks up one job. Returns ErrJobNotFound for unknown ids and
// for ids already past their retention window.
func (r *StatusReader) Status(ctx context.Context, id string) (JobStatus, error) {
	info, err := r.inspector.GetTaskInfo(QueueName, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return JobStatus{}, ErrJobNotFound
		}
		return JobStatus{}, err
	}

	status := JobStatus{ID: id}

	var payload MigratePayload
	if err := json.Unmarshal(info.Payload, &payload); err == nil {
		status.Date = payload.Date
	}

	switch info.State {
	case asynq.TaskStateActive:
		status.State = "active"
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry, asynq.TaskStateAggregating:
		status.State = "queued"
	case asynq.TaskStateArchived:
		status.State = "failed"
		status.Reason = info.LastErr
	case asynq.TaskStateCompleted:
		status.State = "completed"
		var res migrate.Result
		if err := json.Unmarshal(info.Result, &res); err == nil && res.Status == migrate.StatusStopped {
			status.State = "stopped"
		}
	default:
		status.State = "unknown"
	}

	if pct, err := r.flags.Progress(ctx, id); err == nil {
		status.Progress = pct
	}
	if status.State == "completed" {
		status.Progress = 100
	}

	return status, nil
}

// Close releases the inspector's Redis connection.
func (r *StatusReader) Close() error {
	return r.inspector.Close()
}

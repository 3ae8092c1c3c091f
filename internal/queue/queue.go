// Package queue wraps the Redis-backed durable job queue: enqueueing
// date jobs, running them in a worker pool, and exposing their state to
// the job API. Jobs are single-attempt; a failed date is re-submitted
// manually or by the backfill scheduler.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// TypeMigrateDate is the task type for one date partition.
	TypeMigrateDate = "migrate:date"

	// QueueName is the queue all migration jobs flow through.
	QueueName = "migrate"

	// resultRetention keeps finished tasks inspectable by the job API.
	resultRetention = 14 * 24 * time.Hour
)

// ErrJobNotFound is returned when a job id is unknown to the queue.
var ErrJobNotFound = errors.New("queue: job not found")

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidDate reports whether a date matches the strict YYYY-MM-DD form.
func ValidDate(date string) bool { return datePattern.MatchString(date) }

// MigratePayload is the payload of one date job.
type MigratePayload struct {
	Date string `json:"date"`
}

// Client enqueues date jobs.
type Client struct {
	client *asynq.Client
}

// NewClient creates a queue client from a Redis URL.
func NewClient(redisURL string) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Client{client: asynq.NewClient(opt)}, nil
}

// EnqueueDate submits one date job and returns its id. Jobs get exactly
// one attempt: the queue never retries a failed date on its own.
func (c *Client) EnqueueDate(ctx context.Context, date string) (string, error) {
	if !ValidDate(date) {
		return "", fmt.Errorf("invalid date %q", date)
	}

	payload, err := json.Marshal(MigratePayload{Date: date})
	if err != nil {
		return "", err
	}

	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(TypeMigrateDate, payload),
		asynq.TaskID(uuid.NewString()),
		asynq.Queue(QueueName),
		asynq.MaxRetry(0),
		asynq.Retention(resultRetention),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue date %s: %w", date, err)
	}

	return info.ID, nil
}

// Close releases the queue connection.
func (c *Client) Close() error {
	return c.client.Close()
}

package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGrantIntegrityScan re-checks stored role state against the
	// grant tables and reports drift.
	TaskGrantIntegrityScan = "authz:integrity_scan"
)

// GrantIntegrityScanPayload parameterises an integrity scan run.
type GrantIntegrityScanPayload struct {
	// RequestedAt records when the scan was scheduled, for log correlation.
	RequestedAt time.Time `json:"requested_at"`
}

// NewGrantIntegrityScanTask constructs an Asynq task.
func NewGrantIntegrityScanTask(payload GrantIntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGrantIntegrityScan, data), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueGrantIntegrityScan enqueues an integrity scan run.
func (c *Client) EnqueueGrantIntegrityScan(ctx context.Context) error {
	task, err := NewGrantIntegrityScanTask(GrantIntegrityScanPayload{RequestedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

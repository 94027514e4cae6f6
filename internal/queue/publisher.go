package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/zerodha/logf"
)

// Publisher enqueues jobs and publishes ticket events
type Publisher struct {
	rdb *redis.Client
	log logf.Logger
}

// NewPublisher creates a new publisher
func NewPublisher(rdb *redis.Client, log logf.Logger) *Publisher {
	return &Publisher{rdb: rdb, log: log}
}

// Enqueue appends a job to the notification list.
func (p *Publisher) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := p.rdb.RPush(ctx, JobsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	p.log.Debug("Enqueued notification job", "job_id", job.ID, "type", job.Type, "ticket_id", job.Ticket.ID)
	return nil
}

// PublishTicketEvent broadcasts a ticket event to every subscribed server.
func (p *Publisher) PublishTicketEvent(ctx context.Context, event *TicketEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Depth returns the number of pending jobs.
func (p *Publisher) Depth(ctx context.Context) (int64, error) {
	return p.rdb.LLen(ctx, JobsKey).Result()
}

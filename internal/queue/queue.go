// Package queue carries notification jobs and realtime ticket events over
// redis. Jobs go through a list so any worker can drain them; events go
// through pub/sub so every server instance sees them.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/models"
)

const (
	// JobsKey is the redis list holding pending notification jobs.
	JobsKey = "queuebot:notifications"
	// DeadKey holds jobs that exhausted their attempts.
	DeadKey = "queuebot:notifications:dead"
	// EventsChannel is the pub/sub channel for ticket events.
	EventsChannel = "queuebot:events"

	// DefaultMaxAttempts before a job is dead-lettered.
	DefaultMaxAttempts = 3
)

// JobType identifies what a notification job announces.
type JobType string

const (
	JobTicketIssued    JobType = "ticket_issued"
	JobTicketCancelled JobType = "ticket_cancelled"
	JobTicketCalled    JobType = "ticket_called"
)

// Job is one ticket notification. It carries a snapshot of the ticket so
// delivery does not depend on the ticket row.
type Job struct {
	ID         uuid.UUID            `json:"id"`
	Type       JobType              `json:"type"`
	Ticket     models.TicketDetails `json:"ticket"`
	Position   int                  `json:"position,omitempty"`
	Attempts   int                  `json:"attempts"`
	EnqueuedAt time.Time            `json:"enqueued_at"`
}

// NewJob creates a job for ticket.
func NewJob(jobType JobType, ticket *models.TicketDetails, position int) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		Ticket:     *ticket,
		Position:   position,
		EnqueuedAt: time.Now().UTC(),
	}
}

// JobHandler processes notification jobs
type JobHandler interface {
	HandleNotificationJob(ctx context.Context, job *Job) error
}

// Event types broadcast to dashboards
const (
	EventTicketCreated   = "ticket.created"
	EventTicketCancelled = "ticket.cancelled"
	EventTicketCalled    = "ticket.called"
)

// TicketEvent is a realtime update for an organization's dashboards.
type TicketEvent struct {
	Type           string               `json:"type"`
	OrganizationID uuid.UUID            `json:"organization_id"`
	Ticket         models.TicketDetails `json:"ticket"`
	Position       int                  `json:"position,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
}

// Package notify delivers ticket events outside the conversation: WhatsApp
// texts for called and upcoming customers, push endpoints, organization
// webhooks and realtime dashboard events.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shridarpatil/queuebot/internal/config"
	"github.com/shridarpatil/queuebot/internal/metrics"
	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/shridarpatil/queuebot/internal/queue"
	"github.com/shridarpatil/queuebot/internal/store"
	"github.com/shridarpatil/queuebot/internal/templates"
	"github.com/shridarpatil/queuebot/pkg/whatsapp"
	"github.com/zerodha/logf"
	"gorm.io/gorm"
)

// Sender sends WhatsApp text messages.
type Sender interface {
	SendTextMessage(ctx context.Context, account *whatsapp.Account, to, body string) (string, error)
}

// Accounts finds the business number an organization sends from.
type Accounts interface {
	OrganizationNumber(ctx context.Context, orgID uuid.UUID) (*models.BusinessNumber, error)
}

// Subscribers lists push endpoints and webhooks for an event.
type Subscribers interface {
	PushSubscriptions(ctx context.Context, orgID, ticketID uuid.UUID, phone string) ([]models.PushSubscription, error)
	Webhooks(ctx context.Context, orgID uuid.UUID, event string) ([]models.Webhook, error)
}

// Upcoming lists the next waiting tickets of a service.
type Upcoming interface {
	UpcomingTickets(ctx context.Context, serviceID uuid.UUID, limit int) ([]store.Upcoming, error)
}

// Templates renders an organization's message for key.
type Templates interface {
	Render(ctx context.Context, orgID uuid.UUID, key string, vars map[string]interface{}) string
}

// Enqueuer hands jobs to a worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// EventPublisher broadcasts ticket events to dashboards.
type EventPublisher interface {
	PublishTicketEvent(ctx context.Context, event *queue.TicketEvent) error
}

// Dispatcher fans ticket events out to every channel. Calls never block on
// delivery: jobs go to Queue when set, otherwise to a goroutine.
type Dispatcher struct {
	WhatsApp    Sender
	Accounts    Accounts
	Subscribers Subscribers
	Tickets     Upcoming
	Templates   Templates
	Queue       Enqueuer
	Events      EventPublisher
	HTTPClient  *http.Client
	Metrics     *metrics.Metrics
	Log         logf.Logger

	// DefaultAccount supplies provider credentials business numbers do not override.
	DefaultAccount whatsapp.Account
	PushSecret     string
	Timeout        time.Duration

	// UpcomingAlertPositions is how many waiting customers are alerted when
	// a ticket is called.
	UpcomingAlertPositions int
	WebhookRetries         int
	RetryBackoff           time.Duration
}

// TicketIssued announces a new ticket.
func (d *Dispatcher) TicketIssued(ctx context.Context, ticket *models.TicketDetails, position int) {
	d.dispatch(ctx, queue.NewJob(queue.JobTicketIssued, ticket, position))
}

// TicketCancelled announces a cancelled ticket.
func (d *Dispatcher) TicketCancelled(ctx context.Context, ticket *models.TicketDetails) {
	d.dispatch(ctx, queue.NewJob(queue.JobTicketCancelled, ticket, 0))
}

// TicketCalled tells the customer it is their turn and alerts the next ones.
func (d *Dispatcher) TicketCalled(ctx context.Context, ticket *models.TicketDetails) {
	d.dispatch(ctx, queue.NewJob(queue.JobTicketCalled, ticket, 1))
}

func (d *Dispatcher) dispatch(ctx context.Context, job *queue.Job) {
	if d.Queue != nil {
		enqueueCtx, cancel := context.WithTimeout(ctx, d.timeout())
		err := d.Queue.Enqueue(enqueueCtx, job)
		cancel()
		if err == nil {
			return
		}
		d.Log.Warn("Failed to enqueue notification, delivering inline", "error", err, "job_id", job.ID, "type", job.Type)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.Log.Error("Recovered from panic in notification delivery", "error", r, "job_id", job.ID)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		defer cancel()
		if err := d.Deliver(ctx, job); err != nil {
			d.Log.Error("Notification delivery failed", "error", err, "job_id", job.ID, "type", job.Type)
		}
	}()
}

// HandleNotificationJob delivers a job drained from the queue.
func (d *Dispatcher) HandleNotificationJob(ctx context.Context, job *queue.Job) error {
	return d.Deliver(ctx, job)
}

// Deliver sends a job on every channel. Only a failed WhatsApp text is
// returned as an error; retried jobs skip the other channels.
func (d *Dispatcher) Deliver(ctx context.Context, job *queue.Job) error {
	var event string
	switch job.Type {
	case queue.JobTicketIssued:
		event = queue.EventTicketCreated
	case queue.JobTicketCancelled:
		event = queue.EventTicketCancelled
	case queue.JobTicketCalled:
		event = queue.EventTicketCalled
	default:
		return fmt.Errorf("unknown notification job type %q", job.Type)
	}

	ticket := &job.Ticket
	if job.Attempts == 0 {
		d.publish(ctx, event, ticket, job.Position)
		d.sendWebhooks(ctx, event, ticket, job.Position)
		d.sendPush(ctx, event, ticket, job.Position)
	}

	if job.Type != queue.JobTicketCalled {
		return nil
	}

	var errs []error
	if job.Attempts == 0 {
		d.alertUpcoming(ctx, ticket)
	}
	if ticket.Channel == "whatsapp" && ticket.CustomerPhone != "" {
		body := d.render(ctx, ticket.OrganizationID, templates.KeyTicketCalled, ticketVars(ticket, 0))
		if err := d.sendText(ctx, ticket.OrganizationID, ticket.CustomerPhone, body); err != nil {
			errs = append(errs, fmt.Errorf("failed to notify called customer: %w", err))
		}
	}
	return errors.Join(errs...)
}

// alertUpcoming tells the next waiting customers to get ready.
func (d *Dispatcher) alertUpcoming(ctx context.Context, called *models.TicketDetails) {
	if d.Tickets == nil || d.UpcomingAlertPositions <= 0 {
		return
	}
	upcoming, err := d.Tickets.UpcomingTickets(ctx, called.ServiceID, d.UpcomingAlertPositions)
	if err != nil {
		d.Log.Error("Failed to list upcoming tickets", "error", err, "service_id", called.ServiceID)
		return
	}

	for _, u := range upcoming {
		t := u.Ticket
		if t.Channel == "whatsapp" && t.CustomerPhone != "" {
			body := d.render(ctx, t.OrganizationID, templates.KeyTicketUpcoming, ticketVars(&t, u.Position))
			if err := d.sendText(ctx, t.OrganizationID, t.CustomerPhone, body); err != nil {
				d.Log.Warn("Failed to alert upcoming customer", "error", err, "ticket_id", t.ID)
			}
		}
		d.sendPush(ctx, "ticket.upcoming", &t, u.Position)
	}
}

func (d *Dispatcher) sendText(ctx context.Context, orgID uuid.UUID, to, body string) error {
	if d.WhatsApp == nil {
		return nil
	}
	_, err := d.WhatsApp.SendTextMessage(ctx, d.account(ctx, orgID), to, body)
	d.Metrics.ObserveNotification("whatsapp", err)
	return err
}

// account resolves the credentials for an organization's first business
// number, falling back to the default account.
func (d *Dispatcher) account(ctx context.Context, orgID uuid.UUID) *whatsapp.Account {
	acc := d.DefaultAccount
	if d.Accounts == nil {
		return &acc
	}
	bn, err := d.Accounts.OrganizationNumber(ctx, orgID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			d.Log.Warn("Failed to load business number", "error", err, "organization_id", orgID)
		}
		return &acc
	}
	acc = acc.Override(bn.InstanceID, bn.Token)
	return &acc
}

func (d *Dispatcher) publish(ctx context.Context, event string, ticket *models.TicketDetails, position int) {
	if d.Events == nil {
		return
	}
	err := d.Events.PublishTicketEvent(ctx, &queue.TicketEvent{
		Type:           event,
		OrganizationID: ticket.OrganizationID,
		Ticket:         *ticket,
		Position:       position,
		Timestamp:      time.Now().UTC(),
	})
	d.Metrics.ObserveNotification("realtime", err)
	if err != nil {
		d.Log.Warn("Failed to publish ticket event", "error", err, "event", event, "ticket_id", ticket.ID)
	}
}

func (d *Dispatcher) render(ctx context.Context, orgID uuid.UUID, key string, vars map[string]interface{}) string {
	if d.Templates == nil {
		return templates.Render(templates.Defaults[key], vars)
	}
	return d.Templates.Render(ctx, orgID, key, vars)
}

func (d *Dispatcher) timeout() time.Duration {
	if d.Timeout <= 0 {
		return 5 * time.Second
	}
	return d.Timeout
}

func (d *Dispatcher) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: d.timeout()}
}

func ticketVars(t *models.TicketDetails, position int) map[string]interface{} {
	vars := map[string]interface{}{
		"ticket_number":   t.TicketNumber,
		"service_name":    t.ServiceName,
		"department_name": t.DepartmentName,
		"branch_name":     t.BranchName,
	}
	if position > 0 {
		vars["queue_position"] = position
	}
	return vars
}

// NewDispatcher wires a dispatcher to the database-backed stores. Jobs are
// queued on redis when notifications.use_queue is set.
func NewDispatcher(cfg *config.Config, db *gorm.DB, rdb *redis.Client, wa Sender, m *metrics.Metrics, log logf.Logger) *Dispatcher {
	publisher := queue.NewPublisher(rdb, log)
	d := &Dispatcher{
		WhatsApp:    wa,
		Accounts:    store.NewDirectory(db, rdb, log),
		Subscribers: store.NewSubscribers(db),
		Tickets:     store.NewTickets(db),
		Templates:   templates.NewResolver(store.NewTemplates(db), rdb, time.Duration(cfg.Conversation.TemplateCacheTTL)*time.Second, log),
		Events:      publisher,
		Metrics:     m,
		Log:         log,
		DefaultAccount: whatsapp.Account{
			BaseURL:    cfg.WhatsApp.BaseURL,
			InstanceID: cfg.WhatsApp.InstanceID,
			Token:      cfg.WhatsApp.Token,
			Priority:   cfg.WhatsApp.Priority,
		},
		PushSecret:             cfg.Notifications.PushSecret,
		Timeout:                time.Duration(cfg.Notifications.TimeoutSecs) * time.Second,
		UpcomingAlertPositions: cfg.Notifications.UpcomingAlertPositions,
	}
	if cfg.Notifications.UseQueue {
		d.Queue = publisher
	}
	return d
}

package notify_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/shridarpatil/queuebot/internal/notify"
	"github.com/shridarpatil/queuebot/internal/queue"
	"github.com/shridarpatil/queuebot/internal/store"
	"github.com/shridarpatil/queuebot/pkg/whatsapp"
	"github.com/shridarpatil/queuebot/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscribers struct {
	push     []models.PushSubscription
	webhooks []models.Webhook
	err      error
}

func (f *fakeSubscribers) PushSubscriptions(_ context.Context, _, _ uuid.UUID, _ string) ([]models.PushSubscription, error) {
	return f.push, f.err
}

func (f *fakeSubscribers) Webhooks(_ context.Context, _ uuid.UUID, event string) ([]models.Webhook, error) {
	var out []models.Webhook
	for _, w := range f.webhooks {
		if w.Events.Contains(event) {
			out = append(out, w)
		}
	}
	return out, f.err
}

type fakeAccounts struct {
	number *models.BusinessNumber
}

func (f *fakeAccounts) OrganizationNumber(_ context.Context, _ uuid.UUID) (*models.BusinessNumber, error) {
	if f.number == nil {
		return nil, store.ErrNotFound
	}
	return f.number, nil
}

type fakeUpcoming struct {
	tickets []store.Upcoming
	limit   int
}

func (f *fakeUpcoming) UpcomingTickets(_ context.Context, _ uuid.UUID, limit int) ([]store.Upcoming, error) {
	f.limit = limit
	return f.tickets, nil
}

// endpoint records requests to a test HTTP server.
type endpoint struct {
	mu       sync.Mutex
	bodies   [][]byte
	headers  []http.Header
	failures int32
	server   *httptest.Server
}

func newEndpoint(t *testing.T, failures int32) *endpoint {
	e := &endpoint{failures: failures}
	e.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		e.mu.Lock()
		e.bodies = append(e.bodies, body)
		e.headers = append(e.headers, r.Header.Clone())
		e.mu.Unlock()
		if atomic.AddInt32(&e.failures, -1) >= 0 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(e.server.Close)
	return e
}

func (e *endpoint) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.bodies)
}

func sampleTicket() *models.TicketDetails {
	return &models.TicketDetails{
		Ticket: models.Ticket{
			BaseModel:      models.BaseModel{ID: uuid.New()},
			OrganizationID: uuid.New(),
			ServiceID:      uuid.New(),
			TicketNumber:   "BAN-007",
			CustomerPhone:  "2348012345678",
			Status:         models.TicketServing,
			Channel:        "whatsapp",
		},
		ServiceName:    "Banking",
		DepartmentName: "Cards",
		BranchName:     "Ikeja",
	}
}

func newDispatcher() (*notify.Dispatcher, *testutil.MockWhatsAppClient, *testutil.MockEventPublisher) {
	wa := testutil.NewMockWhatsAppClient()
	events := &testutil.MockEventPublisher{}
	return &notify.Dispatcher{
		WhatsApp:       wa,
		Events:         events,
		Log:            testutil.NopLogger(),
		DefaultAccount: whatsapp.Account{BaseURL: "https://provider.test", InstanceID: "default", Token: "default-token"},
		Timeout:        2 * time.Second,
		RetryBackoff:   time.Millisecond,
	}, wa, events
}

func TestDeliver_TicketCalled(t *testing.T) {
	t.Parallel()

	d, wa, events := newDispatcher()
	d.Accounts = &fakeAccounts{number: &models.BusinessNumber{InstanceID: "instance9", Token: "org-token"}}

	next := sampleTicket()
	next.TicketNumber = "BAN-008"
	next.CustomerPhone = "15550000001"
	next.Status = models.TicketWaiting
	webNext := sampleTicket()
	webNext.Channel = "web"
	upcoming := &fakeUpcoming{tickets: []store.Upcoming{
		{Ticket: *next, Position: 2},
		{Ticket: *webNext, Position: 3},
	}}
	d.Tickets = upcoming
	d.UpcomingAlertPositions = 2

	ticket := sampleTicket()
	err := d.Deliver(testutil.TestContext(t), queue.NewJob(queue.JobTicketCalled, ticket, 1))
	require.NoError(t, err)

	called := wa.GetMessagesSentTo("2348012345678")
	require.Len(t, called, 1)
	assert.Contains(t, called[0].Content, "It's your turn! Ticket *BAN-007*")
	assert.Contains(t, called[0].Content, "at Cards")
	assert.Equal(t, "instance9", called[0].Account.InstanceID)
	assert.Equal(t, "org-token", called[0].Account.Token)
	assert.Equal(t, "https://provider.test", called[0].Account.BaseURL)

	alerted := wa.GetMessagesSentTo("15550000001")
	require.Len(t, alerted, 1)
	assert.Contains(t, alerted[0].Content, "BAN-008* is number 2")
	assert.Equal(t, 2, upcoming.limit)
	assert.Equal(t, 2, wa.MessageCount())

	assert.Equal(t, []string{queue.EventTicketCalled}, events.EventTypes())
}

func TestDeliver_CalledSendFailure(t *testing.T) {
	t.Parallel()

	d, wa, events := newDispatcher()
	wa.Error = errors.New("instance offline")

	job := queue.NewJob(queue.JobTicketCalled, sampleTicket(), 1)
	err := d.Deliver(testutil.TestContext(t), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance offline")
	assert.Len(t, events.Events, 1)

	// a retried job only resends the text
	job.Attempts = 1
	wa.Error = nil
	require.NoError(t, d.Deliver(testutil.TestContext(t), job))
	assert.Equal(t, 1, wa.MessageCount())
	assert.Len(t, events.Events, 1)
}

func TestDeliver_IssuedSendsNoText(t *testing.T) {
	t.Parallel()

	d, wa, events := newDispatcher()
	ticket := sampleTicket()
	ticket.Status = models.TicketWaiting

	require.NoError(t, d.Deliver(testutil.TestContext(t), queue.NewJob(queue.JobTicketIssued, ticket, 4)))
	require.NoError(t, d.Deliver(testutil.TestContext(t), queue.NewJob(queue.JobTicketCancelled, ticket, 0)))

	assert.Zero(t, wa.MessageCount())
	assert.Equal(t, []string{queue.EventTicketCreated, queue.EventTicketCancelled}, events.EventTypes())
	assert.Equal(t, 4, events.Events[0].Position)
	assert.Equal(t, ticket.OrganizationID, events.Events[0].OrganizationID)
}

func TestDeliver_UnknownJob(t *testing.T) {
	t.Parallel()

	d, _, _ := newDispatcher()
	err := d.Deliver(testutil.TestContext(t), &queue.Job{Type: "ticket_teleported"})
	require.Error(t, err)
}

func TestDeliver_WebhooksSignedAndRetried(t *testing.T) {
	t.Parallel()

	signed := newEndpoint(t, 1)
	other := newEndpoint(t, 0)

	d, _, _ := newDispatcher()
	d.Subscribers = &fakeSubscribers{webhooks: []models.Webhook{
		{
			BaseModel: models.BaseModel{ID: uuid.New()},
			URL:       signed.server.URL,
			Events:    models.StringArray{queue.EventTicketCreated},
			Headers:   models.JSONB{"X-Tenant": "acme"},
			Secret:    "s3cret",
		},
		{
			BaseModel: models.BaseModel{ID: uuid.New()},
			URL:       other.server.URL,
			Events:    models.StringArray{queue.EventTicketCalled},
		},
	}}

	ticket := sampleTicket()
	require.NoError(t, d.Deliver(testutil.TestContext(t), queue.NewJob(queue.JobTicketIssued, ticket, 2)))

	require.Equal(t, 2, signed.count())
	assert.Zero(t, other.count())

	body := signed.bodies[1]
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(body)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), signed.headers[1].Get("X-Webhook-Signature"))
	assert.Equal(t, "acme", signed.headers[1].Get("X-Tenant"))
	assert.Equal(t, "application/json", signed.headers[1].Get("Content-Type"))

	var payload struct {
		Event string                 `json:"event"`
		Data  notify.TicketEventData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, queue.EventTicketCreated, payload.Event)
	assert.Equal(t, "BAN-007", payload.Data.TicketNumber)
	assert.Equal(t, ticket.ID.String(), payload.Data.TicketID)
	assert.Equal(t, 2, payload.Data.QueuePosition)
}

func TestDeliver_WebhookGivesUp(t *testing.T) {
	t.Parallel()

	down := newEndpoint(t, 100)
	d, _, _ := newDispatcher()
	d.WebhookRetries = 3
	d.Subscribers = &fakeSubscribers{webhooks: []models.Webhook{{
		URL:    down.server.URL,
		Events: models.StringArray{queue.EventTicketCancelled},
	}}}

	require.NoError(t, d.Deliver(testutil.TestContext(t), queue.NewJob(queue.JobTicketCancelled, sampleTicket(), 0)))
	assert.Equal(t, 3, down.count())
}

func TestDeliver_Push(t *testing.T) {
	t.Parallel()

	ep := newEndpoint(t, 0)
	d, _, _ := newDispatcher()
	d.PushSecret = "push-secret"
	d.Subscribers = &fakeSubscribers{push: []models.PushSubscription{
		{Endpoint: ep.server.URL, Keys: models.JSONB{"auth": "abc"}},
		{Endpoint: "://bad url"},
	}}

	require.NoError(t, d.Deliver(testutil.TestContext(t), queue.NewJob(queue.JobTicketIssued, sampleTicket(), 1)))

	require.Equal(t, 1, ep.count())
	var payload notify.PushPayload
	require.NoError(t, json.Unmarshal(ep.bodies[0], &payload))
	assert.Equal(t, queue.EventTicketCreated, payload.Event)
	assert.Equal(t, "BAN-007", payload.Ticket.TicketNumber)
	assert.Equal(t, "abc", payload.Keys["auth"])

	mac := hmac.New(sha256.New, []byte("push-secret"))
	mac.Write(ep.bodies[0])
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), ep.headers[0].Get("X-Push-Signature"))
}

func TestDispatcher_UsesQueue(t *testing.T) {
	t.Parallel()

	d, wa, _ := newDispatcher()
	q := testutil.NewMockQueue()
	d.Queue = q
	ticket := sampleTicket()

	d.TicketIssued(testutil.TestContext(t), ticket, 3)
	d.TicketCancelled(testutil.TestContext(t), ticket)
	d.TicketCalled(testutil.TestContext(t), ticket)

	jobs := q.GetJobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, queue.JobTicketIssued, jobs[0].Type)
	assert.Equal(t, 3, jobs[0].Position)
	assert.Equal(t, queue.JobTicketCancelled, jobs[1].Type)
	assert.Equal(t, queue.JobTicketCalled, jobs[2].Type)
	assert.Equal(t, "BAN-007", jobs[2].Ticket.TicketNumber)
	assert.Zero(t, wa.MessageCount())
}

func TestDispatcher_InlineWhenQueueFails(t *testing.T) {
	t.Parallel()

	d, wa, _ := newDispatcher()
	q := testutil.NewMockQueue()
	q.Error = errors.New("redis down")
	d.Queue = q

	d.TicketCalled(context.Background(), sampleTicket())

	testutil.AssertEventually(t, func() bool { return wa.MessageCount() == 1 }, 2*time.Second, "called text not sent")
}

// stalledQueue blocks until the caller gives up.
type stalledQueue struct{}

func (stalledQueue) Enqueue(ctx context.Context, _ *queue.Job) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatcher_EnqueueBoundedByTimeout(t *testing.T) {
	t.Parallel()

	d, wa, _ := newDispatcher()
	d.Queue = stalledQueue{}
	d.Timeout = 50 * time.Millisecond

	start := time.Now()
	d.TicketCalled(context.Background(), sampleTicket())
	assert.Less(t, time.Since(start), time.Second)

	testutil.AssertEventually(t, func() bool { return wa.MessageCount() == 1 }, 2*time.Second, "called text not sent")
}

func TestDispatcher_InlineWithoutQueue(t *testing.T) {
	t.Parallel()

	d, _, events := newDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	d.TicketIssued(ctx, sampleTicket(), 1)
	// delivery outlives the caller's context
	cancel()

	testutil.AssertEventually(t, func() bool { return len(events.EventTypes()) == 1 }, 2*time.Second, "event not published")
}

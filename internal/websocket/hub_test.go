package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shridarpatil/queuebot/internal/metrics"
	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/shridarpatil/queuebot/internal/queue"
	"github.com/shridarpatil/queuebot/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *prometheus.Registry, context.CancelFunc) {
	t.Helper()
	reg := prometheus.NewRegistry()
	hub := NewHub(testutil.NopLogger(), metrics.New(reg))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub, reg, cancel
}

func ticketEvent(orgID, serviceID uuid.UUID, eventType string) *queue.TicketEvent {
	return &queue.TicketEvent{
		Type:           eventType,
		OrganizationID: orgID,
		Ticket: models.TicketDetails{Ticket: models.Ticket{
			OrganizationID: orgID,
			ServiceID:      serviceID,
			TicketNumber:   "BAN-001",
		}},
		Timestamp: time.Now(),
	}
}

func receive(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return WSMessage{}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastScopedToOrganization(t *testing.T) {
	t.Parallel()

	hub, reg, _ := startHub(t)
	orgID, otherOrg, serviceID := uuid.New(), uuid.New(), uuid.New()

	a := NewClient(hub, nil, uuid.New(), orgID)
	b := NewClient(hub, nil, uuid.New(), orgID)
	other := NewClient(hub, nil, uuid.New(), otherOrg)
	hub.Register(a)
	hub.Register(b)
	hub.Register(other)

	testutil.AssertEventually(t, func() bool { return hub.ClientCount(orgID) == 2 }, time.Second, "clients not registered")

	hub.BroadcastTicketEvent(ticketEvent(orgID, serviceID, queue.EventTicketCalled))

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		assert.Equal(t, TypeTicketCalled, msg.Type)
		payload, ok := msg.Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, queue.EventTicketCalled, payload["type"])
	}
	assertNothing(t, other)

	assert.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(`
# HELP queuebot_realtime_clients Connected dashboard websocket clients
# TYPE queuebot_realtime_clients gauge
queuebot_realtime_clients 3
`), "queuebot_realtime_clients"))
}

func TestHub_ServiceFilter(t *testing.T) {
	t.Parallel()

	hub, _, _ := startHub(t)
	orgID, followed, ignored := uuid.New(), uuid.New(), uuid.New()

	c := NewClient(hub, nil, uuid.New(), orgID)
	hub.Register(c)
	testutil.AssertEventually(t, func() bool { return hub.ClientCount(orgID) == 1 }, time.Second, "client not registered")

	c.handleMessage([]byte(`{"type":"set_service","payload":{"service_id":"` + followed.String() + `"}}`))

	hub.BroadcastTicketEvent(ticketEvent(orgID, ignored, queue.EventTicketCreated))
	hub.BroadcastTicketEvent(ticketEvent(orgID, followed, queue.EventTicketCreated))
	assert.Equal(t, TypeTicketCreated, receive(t, c).Type)
	assertNothing(t, c)

	c.handleMessage([]byte(`{"type":"set_service","payload":{"service_id":""}}`))
	hub.BroadcastTicketEvent(ticketEvent(orgID, ignored, queue.EventTicketCancelled))
	assert.Equal(t, TypeTicketCancelled, receive(t, c).Type)
}

func TestHub_UnknownEventIgnored(t *testing.T) {
	t.Parallel()

	hub, _, _ := startHub(t)
	orgID := uuid.New()
	c := NewClient(hub, nil, uuid.New(), orgID)
	hub.Register(c)
	testutil.AssertEventually(t, func() bool { return hub.ClientCount(orgID) == 1 }, time.Second, "client not registered")

	hub.BroadcastTicketEvent(ticketEvent(orgID, uuid.New(), "ticket.teleported"))
	assertNothing(t, c)
}

func TestHub_UnregisterAndShutdown(t *testing.T) {
	t.Parallel()

	hub, _, cancel := startHub(t)
	orgID := uuid.New()
	a := NewClient(hub, nil, uuid.New(), orgID)
	b := NewClient(hub, nil, uuid.New(), orgID)
	hub.Register(a)
	hub.Register(b)
	testutil.AssertEventually(t, func() bool { return hub.ClientCount(orgID) == 2 }, time.Second, "clients not registered")

	hub.Unregister(a)
	testutil.AssertEventually(t, func() bool { return hub.ClientCount(orgID) == 1 }, time.Second, "client not removed")
	_, ok := <-a.send
	assert.False(t, ok)

	cancel()
	select {
	case _, ok := <-b.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("client not closed on shutdown")
	}

	// calls after shutdown do not block
	hub.Unregister(b)
	late := NewClient(hub, nil, uuid.New(), orgID)
	hub.Register(late)
	_, ok = <-late.send
	assert.False(t, ok)
}

func TestClient_Ping(t *testing.T) {
	t.Parallel()

	hub := NewHub(testutil.NopLogger(), nil)
	c := NewClient(hub, nil, uuid.New(), uuid.New())

	c.handleMessage([]byte(`{"type":"ping"}`))
	assert.Equal(t, TypePong, receive(t, c).Type)

	// malformed messages are ignored
	c.handleMessage([]byte(`{`))
	c.handleMessage([]byte(`{"type":"set_service","payload":{"service_id":"nope"}}`))
	assert.True(t, c.wants(uuid.New()))
}

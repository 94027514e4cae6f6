package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/metrics"
	"github.com/shridarpatil/queuebot/internal/queue"
	"github.com/zerodha/logf"
)

// eventTypes maps ticket events to dashboard message types.
var eventTypes = map[string]string{
	queue.EventTicketCreated:   TypeTicketCreated,
	queue.EventTicketCancelled: TypeTicketCancelled,
	queue.EventTicketCalled:    TypeTicketCalled,
}

// broadcast is a message for the clients of one organization.
type broadcast struct {
	orgID     uuid.UUID
	serviceID uuid.UUID
	data      []byte
}

// Hub maintains the set of dashboard clients per organization
type Hub struct {
	clients map[uuid.UUID]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcast
	done       chan struct{}

	log     logf.Logger
	metrics *metrics.Metrics
}

// NewHub creates a new Hub
func NewHub(log logf.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcast, 256),
		done:       make(chan struct{}),
		log:        log,
		metrics:    m,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.organizationID] == nil {
				h.clients[client.organizationID] = make(map[*Client]bool)
			}
			h.clients[client.organizationID][client] = true
			h.mu.Unlock()
			h.reportClients()
			h.log.Debug("WebSocket client registered", "subscriber_id", client.subscriberID, "organization_id", client.organizationID)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// BroadcastTicketEvent sends a ticket event to the organization's dashboards
func (h *Hub) BroadcastTicketEvent(event *queue.TicketEvent) {
	msgType, ok := eventTypes[event.Type]
	if !ok {
		h.log.Warn("Ignoring unknown ticket event", "type", event.Type)
		return
	}
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: event})
	if err != nil {
		h.log.Error("Failed to marshal ticket event", "error", err)
		return
	}

	select {
	case h.broadcast <- broadcast{orgID: event.OrganizationID, serviceID: event.Ticket.ServiceID, data: data}:
	default:
		h.log.Warn("Broadcast channel full, dropping ticket event", "organization_id", event.OrganizationID)
	}
}

// ClientCount returns the number of clients connected for an organization
func (h *Hub) ClientCount(orgID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[orgID])
}

func (h *Hub) deliver(msg broadcast) {
	h.mu.RLock()
	var slow []*Client
	for client := range h.clients[msg.orgID] {
		if !client.wants(msg.serviceID) {
			continue
		}
		select {
		case client.send <- msg.data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.log.Warn("Dropping slow WebSocket client", "subscriber_id", client.subscriberID)
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	clients := h.clients[client.organizationID]
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.send)
		if len(clients) == 0 {
			delete(h.clients, client.organizationID)
		}
	}
	h.mu.Unlock()
	h.reportClients()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for orgID, clients := range h.clients {
		for client := range clients {
			close(client.send)
		}
		delete(h.clients, orgID)
	}
	h.mu.Unlock()
	h.reportClients()
}

func (h *Hub) reportClients() {
	h.mu.RLock()
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	h.mu.RUnlock()
	h.metrics.SetRealtimeClients(n)
}

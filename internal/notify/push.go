package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shridarpatil/queuebot/internal/models"
)

// PushPayload is posted to a customer's push endpoint.
type PushPayload struct {
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Ticket    TicketEventData `json:"ticket"`
	Keys      models.JSONB    `json:"keys,omitempty"`
}

// sendPush posts the event to the push endpoints registered for the ticket.
// Endpoints are tried once; a dead endpoint should not hold up the others.
func (d *Dispatcher) sendPush(ctx context.Context, event string, ticket *models.TicketDetails, position int) {
	if d.Subscribers == nil {
		return
	}
	subs, err := d.Subscribers.PushSubscriptions(ctx, ticket.OrganizationID, ticket.ID, ticket.CustomerPhone)
	if err != nil {
		d.Log.Error("Failed to load push subscriptions", "error", err, "ticket_id", ticket.ID)
		return
	}

	for _, sub := range subs {
		body, err := json.Marshal(PushPayload{
			Event:     event,
			Timestamp: time.Now().UTC(),
			Ticket:    ticketEventData(ticket, position),
			Keys:      sub.Keys,
		})
		if err != nil {
			d.Log.Error("Failed to marshal push payload", "error", err)
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
		if err != nil {
			d.Log.Warn("Invalid push endpoint", "error", err, "subscription_id", sub.ID)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		if d.PushSecret != "" {
			req.Header.Set("X-Push-Signature", computeHMACSignature(body, d.PushSecret))
		}

		err = d.do(req)
		d.Metrics.ObserveNotification("push", err)
		if err != nil {
			d.Log.Warn("Push delivery failed", "error", err, "subscription_id", sub.ID, "event", event)
		}
	}
}

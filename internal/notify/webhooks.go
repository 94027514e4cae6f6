package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shridarpatil/queuebot/internal/models"
)

// OutboundWebhookPayload represents the structure sent to external webhook endpoints
type OutboundWebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// TicketEventData represents data for ticket events
type TicketEventData struct {
	TicketID       string `json:"ticket_id"`
	TicketNumber   string `json:"ticket_number"`
	Status         string `json:"status"`
	ServiceID      string `json:"service_id"`
	ServiceName    string `json:"service_name"`
	DepartmentName string `json:"department_name"`
	BranchName     string `json:"branch_name,omitempty"`
	CustomerPhone  string `json:"customer_phone"`
	Channel        string `json:"channel"`
	QueuePosition  int    `json:"queue_position,omitempty"`
}

func ticketEventData(t *models.TicketDetails, position int) TicketEventData {
	return TicketEventData{
		TicketID:       t.ID.String(),
		TicketNumber:   t.TicketNumber,
		Status:         string(t.Status),
		ServiceID:      t.ServiceID.String(),
		ServiceName:    t.ServiceName,
		DepartmentName: t.DepartmentName,
		BranchName:     t.BranchName,
		CustomerPhone:  t.CustomerPhone,
		Channel:        t.Channel,
		QueuePosition:  position,
	}
}

// sendWebhooks posts the event to every organization webhook subscribed to it.
func (d *Dispatcher) sendWebhooks(ctx context.Context, event string, ticket *models.TicketDetails, position int) {
	if d.Subscribers == nil {
		return
	}
	hooks, err := d.Subscribers.Webhooks(ctx, ticket.OrganizationID, event)
	if err != nil {
		d.Log.Error("failed to fetch webhooks", "error", err, "organization_id", ticket.OrganizationID)
		return
	}
	if len(hooks) == 0 {
		return
	}

	jsonData, err := json.Marshal(OutboundWebhookPayload{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      ticketEventData(ticket, position),
	})
	if err != nil {
		d.Log.Error("failed to marshal webhook payload", "error", err, "event", event)
		return
	}

	for _, hook := range hooks {
		err := d.sendWebhook(ctx, hook, event, jsonData)
		d.Metrics.ObserveNotification("webhook", err)
	}
}

func (d *Dispatcher) sendWebhook(ctx context.Context, webhook models.Webhook, event string, jsonData []byte) error {
	maxRetries := d.WebhookRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoff := d.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1x, 2x, 4x
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff << (attempt - 1)):
			}
		}

		if err = d.sendWebhookRequest(ctx, webhook, jsonData); err != nil {
			d.Log.Warn("webhook delivery failed",
				"error", err,
				"webhook_id", webhook.ID,
				"attempt", attempt+1,
				"max_retries", maxRetries,
			)
			continue
		}

		d.Log.Debug("webhook delivered", "webhook_id", webhook.ID, "event", event, "url", webhook.URL)
		return nil
	}

	d.Log.Error("webhook delivery failed after all retries",
		"webhook_id", webhook.ID,
		"event", event,
		"url", webhook.URL,
	)
	return err
}

func (d *Dispatcher) sendWebhookRequest(ctx context.Context, webhook models.Webhook, jsonData []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Queuebot-Webhook/1.0")

	for key, value := range webhook.Headers {
		if strValue, ok := value.(string); ok {
			req.Header.Set(key, strValue)
		}
	}

	if webhook.Secret != "" {
		req.Header.Set("X-Webhook-Signature", computeHMACSignature(jsonData, webhook.Secret))
	}

	return d.do(req)
}

func (d *Dispatcher) do(req *http.Request) error {
	resp, err := d.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{StatusCode: resp.StatusCode}
	}
	return nil
}

func computeHMACSignature(data []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// DeliveryError is a non-2xx reply from a webhook or push endpoint
type DeliveryError struct {
	StatusCode int
}

func (e *DeliveryError) Error() string {
	return "endpoint returned non-2xx status: " + http.StatusText(e.StatusCode)
}

package handlers

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/conversation"
	"github.com/shridarpatil/queuebot/internal/store"
	"github.com/shridarpatil/queuebot/internal/templates"
	"github.com/shridarpatil/queuebot/pkg/whatsapp"
	"github.com/zerodha/fastglue"
)

const (
	webhookTimeout = 30 * time.Second
	dedupeKey      = "queuebot:inbound:"
)

// Webhook outcomes, also the values of the webhook metric.
const (
	WebhookProcessed       = "processed"
	WebhookIgnored         = "ignored"
	WebhookDuplicate       = "duplicate"
	WebhookInvalid         = "invalid"
	WebhookUnknownBusiness = "unknown_business"
	WebhookLookupFailed    = "lookup_failed"
	WebhookReplyFailed     = "reply_failed"
)

// qrRefPattern matches the location reference a QR link pre-fills.
var qrRefPattern = regexp.MustCompile(`\[(branch|department):([0-9a-fA-F-]{36})\]`)

// ExtractQRContext pulls QR references out of a message body.
func ExtractQRContext(body string) (string, conversation.QRContext) {
	var qr conversation.QRContext
	for _, m := range qrRefPattern.FindAllStringSubmatch(body, -1) {
		id, err := uuid.Parse(m[2])
		if err != nil {
			continue
		}
		if m[1] == "branch" {
			qr.BranchID = &id
		} else {
			qr.DepartmentID = &id
		}
	}
	if !qr.Present() {
		return body, qr
	}
	return strings.TrimSpace(qrRefPattern.ReplaceAllString(body, "")), qr
}

// QRRef is the reference ExtractQRContext recognizes.
func QRRef(kind string, id uuid.UUID) string {
	return "[" + kind + ":" + id.String() + "]"
}

// WebhookHandler receives provider chat events. It always answers 200 so
// the provider does not redeliver.
func (a *App) WebhookHandler(r *fastglue.Request) error {
	result := a.handleWebhook(r)
	a.Metrics.ObserveWebhook(result)
	return r.SendEnvelope(map[string]string{"status": result})
}

func (a *App) handleWebhook(r *fastglue.Request) string {
	var payload whatsapp.WebhookPayload
	if err := r.Decode(&payload, "json"); err != nil {
		a.Log.Warn("Failed to decode webhook payload", "error", err)
		return WebhookInvalid
	}

	if !whatsapp.IsChatEvent(payload.EventType) || payload.Data == nil {
		return WebhookIgnored
	}
	msg := payload.Data
	if msg.FromMe || msg.Type != whatsapp.MessageTypeChat {
		return WebhookIgnored
	}

	from := whatsapp.NormalizeNumber(msg.From)
	to := whatsapp.NormalizeNumber(msg.To)
	if from == "" || to == "" {
		return WebhookIgnored
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	if a.seen(ctx, msg.ID) {
		a.Log.Debug("Dropping redelivered message", "message_id", msg.ID, "from", from)
		return WebhookDuplicate
	}

	number, err := a.Numbers.ResolveBusinessNumber(ctx, to)
	if err != nil {
		key, result := templates.KeyUnknownBusiness, WebhookUnknownBusiness
		if errors.Is(err, store.ErrNotFound) {
			a.Log.Warn("Message for unregistered business number", "to", to, "from", from)
		} else {
			a.Log.Error("Failed to resolve business number", "error", err, "to", to)
			key, result = templates.KeyGenericError, WebhookLookupFailed
			a.forget(ctx, msg.ID)
		}
		acc := a.defaultAccount()
		reply := templates.Render(templates.Defaults[key], nil)
		if _, err := a.WhatsApp.SendTextMessage(ctx, &acc, from, reply); err != nil {
			a.Log.Error("Failed to send registry reply", "error", err, "to", from)
		}
		return result
	}

	body, qr := ExtractQRContext(msg.Body)
	if qr.Present() {
		// a scanned code always starts over at the scanned location
		body = "start"
	}

	reply := a.Engine.ProcessMessage(ctx, from, body, number.OrganizationID, qr)
	if reply == "" {
		return WebhookProcessed
	}

	acc := a.defaultAccount().Override(number.InstanceID, number.Token)
	if _, err := a.WhatsApp.SendTextMessage(ctx, &acc, from, reply); err != nil {
		a.Log.Error("Failed to send reply", "error", err, "to", from, "organization_id", number.OrganizationID)
		a.forget(ctx, msg.ID)
		return WebhookReplyFailed
	}
	return WebhookProcessed
}

// seen records a provider message id and reports whether it was already
// recorded within the dedupe window. Dedupe is off when the window is 0.
func (a *App) seen(ctx context.Context, messageID string) bool {
	window := a.Config.WhatsApp.DedupeWindowSecs
	if window <= 0 || messageID == "" || a.Redis == nil {
		return false
	}
	ok, err := a.Redis.SetNX(ctx, dedupeKey+messageID, 1, time.Duration(window)*time.Second).Result()
	if err != nil {
		a.Log.Warn("Inbound dedupe unavailable", "error", err)
		return false
	}
	return !ok
}

// forget drops the dedupe marker of a message that was not answered, so the
// provider's redelivery is processed.
func (a *App) forget(ctx context.Context, messageID string) {
	if a.Config.WhatsApp.DedupeWindowSecs <= 0 || messageID == "" || a.Redis == nil {
		return
	}
	if err := a.Redis.Del(ctx, dedupeKey+messageID).Err(); err != nil {
		a.Log.Warn("Failed to clear inbound dedupe marker", "error", err, "message_id", messageID)
	}
}

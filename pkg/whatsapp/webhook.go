package whatsapp

import "strings"

// Event types the provider sends for chat traffic
const (
	EventMessageCreate   = "message_create"
	EventMessageReceived = "message_received"
)

// MessageTypeChat is a plain text message
const MessageTypeChat = "chat"

// WebhookPayload is an inbound provider webhook
type WebhookPayload struct {
	EventType  string          `json:"event_type"`
	InstanceID string          `json:"instanceId"`
	Data       *WebhookMessage `json:"data"`
}

// WebhookMessage is the message carried by a webhook
type WebhookMessage struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Body   string `json:"body"`
	Type   string `json:"type"`
	FromMe bool   `json:"fromMe"`
}

// IsChatEvent reports whether the event type carries chat messages.
func IsChatEvent(eventType string) bool {
	return eventType == EventMessageCreate || eventType == EventMessageReceived
}

// NormalizeNumber strips the provider suffix ("@c.us") and a leading "+".
func NormalizeNumber(number string) string {
	if i := strings.IndexByte(number, '@'); i != -1 {
		number = number[:i]
	}
	return strings.TrimPrefix(strings.TrimSpace(number), "+")
}

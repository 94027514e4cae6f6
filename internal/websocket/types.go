package websocket

// Message types
const (
	// Client to server
	TypeSetService = "set_service"
	TypePing       = "ping"

	// Server to client
	TypePong            = "pong"
	TypeTicketCreated   = "ticket_created"
	TypeTicketCancelled = "ticket_cancelled"
	TypeTicketCalled    = "ticket_called"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// SetServicePayload narrows a dashboard to one service. An empty id clears
// the filter.
type SetServicePayload struct {
	ServiceID string `json:"service_id"`
}

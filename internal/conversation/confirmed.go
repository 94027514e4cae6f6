package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/shridarpatil/queuebot/internal/store"
	"github.com/shridarpatil/queuebot/internal/templates"
)

// handleTicketConfirmed answers the commands available once a ticket exists.
func (e *Engine) handleTicketConfirmed(ctx context.Context, conv *models.Conversation, text string) (string, error) {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "status") || strings.Contains(lower, "position"):
		return e.ticketStatus(ctx, conv)
	case strings.Contains(lower, "cancel"):
		return e.cancelTicket(ctx, conv)
	case wantsNewTicket(lower):
		return e.render(ctx, conv.OrganizationID, templates.KeyNewTicketHint, nil), nil
	default:
		return e.render(ctx, conv.OrganizationID, templates.KeyConfirmedReminder, map[string]interface{}{
			"ticket_number": e.ticketNumber(ctx, conv),
		}), nil
	}
}

// ticketNumber reads the number snapshot on the conversation, falling back
// to the ticket row for conversations written before the snapshot existed.
func (e *Engine) ticketNumber(ctx context.Context, conv *models.Conversation) string {
	if n := conv.ContextData.String("ticket_number"); n != "" {
		return n
	}
	if conv.TicketID == nil {
		return ""
	}
	ticket, err := e.Tickets.GetTicket(ctx, *conv.TicketID)
	if err != nil {
		e.Log.Warn("Failed to load ticket for reminder", "error", err, "ticket_id", *conv.TicketID)
		return ""
	}
	return ticket.TicketNumber
}

func wantsNewTicket(lower string) bool {
	if strings.Contains(lower, "another ticket") || strings.Contains(lower, "start over") {
		return true
	}
	for _, word := range strings.Fields(lower) {
		switch strings.Trim(word, ".,!?") {
		case "new", "restart", "another":
			return true
		}
	}
	return false
}

func (e *Engine) ticketStatus(ctx context.Context, conv *models.Conversation) (string, error) {
	ticket, reply, err := e.loadTicket(ctx, conv)
	if ticket == nil {
		return reply, err
	}

	if !ticket.Status.Open() {
		return e.render(ctx, conv.OrganizationID, templates.KeyTicketClosed, ticketVars(ticket)), nil
	}

	position := e.queuePosition(ctx, ticket)
	vars := ticketVars(ticket)
	vars["queue_position"] = position
	vars["estimated_wait"] = e.waitAhead(ctx, ticket, position)
	return e.render(ctx, conv.OrganizationID, templates.KeyTicketStatus, vars), nil
}

func (e *Engine) cancelTicket(ctx context.Context, conv *models.Conversation) (string, error) {
	if conv.TicketID == nil {
		return e.render(ctx, conv.OrganizationID, templates.KeyTicketNotFound, nil), nil
	}

	ticket, err := e.Tickets.CancelTicket(ctx, *conv.TicketID)
	switch {
	case errors.Is(err, store.ErrTicketClosed) && ticket != nil:
		return e.render(ctx, conv.OrganizationID, templates.KeyTicketClosed, ticketVars(ticket)), nil
	case errors.Is(err, store.ErrNotFound):
		return e.render(ctx, conv.OrganizationID, templates.KeyTicketNotFound, nil), nil
	case err != nil:
		return "", err
	}

	e.Metrics.TicketCancelled()
	e.Log.Info("Ticket cancelled by customer", "ticket_number", ticket.TicketNumber, "ticket_id", ticket.ID)
	e.notifyCancelled(ctx, ticket)

	return e.render(ctx, conv.OrganizationID, templates.KeyTicketCancelled, ticketVars(ticket)), nil
}

// loadTicket returns the conversation's ticket, or a reply to send instead.
func (e *Engine) loadTicket(ctx context.Context, conv *models.Conversation) (*models.TicketDetails, string, error) {
	if conv.TicketID == nil {
		return nil, e.render(ctx, conv.OrganizationID, templates.KeyTicketNotFound, nil), nil
	}
	ticket, err := e.Tickets.GetTicket(ctx, *conv.TicketID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, e.render(ctx, conv.OrganizationID, templates.KeyTicketNotFound, nil), nil
	}
	if err != nil {
		return nil, "", err
	}
	return ticket, "", nil
}

// statusLabels are the customer-facing names of ticket statuses.
var statusLabels = map[models.TicketStatus]string{
	models.TicketWaiting:   "Waiting",
	models.TicketServing:   "Being served",
	models.TicketCompleted: "completed",
	models.TicketCancelled: "cancelled",
}

func ticketVars(t *models.TicketDetails) map[string]interface{} {
	label, ok := statusLabels[t.Status]
	if !ok {
		label = string(t.Status)
	}
	return map[string]interface{}{
		"ticket_number":   t.TicketNumber,
		"ticket_status":   label,
		"service_name":    t.ServiceName,
		"department_name": t.DepartmentName,
		"branch_name":     t.BranchName,
		"customer_phone":  t.CustomerPhone,
	}
}

package conversation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/shridarpatil/queuebot/internal/templates"
)

// confirmation renders the ticket_confirmation message for a new ticket.
func (e *Engine) confirmation(ctx context.Context, orgID uuid.UUID, ticket *models.TicketDetails, position int) string {
	vars := ticketVars(ticket)
	vars["queue_position"] = position
	vars["estimated_wait"] = e.waitAhead(ctx, ticket, position)
	vars["organization_name"] = e.organizationName(ctx, orgID)
	return e.render(ctx, orgID, templates.KeyTicketConfirmation, vars)
}

// queuePosition falls back to 1 when the position cannot be computed; the
// reply is still sent.
func (e *Engine) queuePosition(ctx context.Context, ticket *models.TicketDetails) int {
	position, err := e.Tickets.QueuePosition(ctx, &ticket.Ticket)
	if err != nil {
		e.Log.Error("Failed to compute queue position", "error", err, "ticket_id", ticket.ID)
		return 1
	}
	return position
}

func (e *Engine) notifyIssued(ctx context.Context, ticket *models.TicketDetails, position int) {
	if e.Notifier == nil {
		return
	}
	defer e.recoverNotify("ticket_issued", ticket)
	e.Notifier.TicketIssued(ctx, ticket, position)
}

func (e *Engine) notifyCancelled(ctx context.Context, ticket *models.TicketDetails) {
	if e.Notifier == nil {
		return
	}
	defer e.recoverNotify("ticket_cancelled", ticket)
	e.Notifier.TicketCancelled(ctx, ticket)
}

func (e *Engine) recoverNotify(event string, ticket *models.TicketDetails) {
	if r := recover(); r != nil {
		e.Log.Error("Recovered from panic in notifier", "error", r, "event", event, "ticket_id", ticket.ID)
	}
}

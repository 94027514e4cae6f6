package conversation

import (
	"context"

	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/shridarpatil/queuebot/internal/templates"
)

func (e *Engine) handleBranchSelection(ctx context.Context, conv *models.Conversation, text string) (string, error) {
	n, ok := ParseSelection(text)
	if !ok {
		return e.render(ctx, conv.OrganizationID, templates.KeyInvalidNumber, nil), nil
	}

	branches, err := e.Directory.Branches(ctx, conv.OrganizationID)
	if err != nil {
		e.Log.Error("Failed to list branches", "error", err, "organization_id", conv.OrganizationID)
		return e.render(ctx, conv.OrganizationID, templates.KeyDirectoryError, nil), nil
	}
	if len(branches) == 0 {
		return e.render(ctx, conv.OrganizationID, templates.KeyNoBranches, nil), nil
	}
	if n < 1 || n > len(branches) {
		return e.invalidSelection(ctx, conv.OrganizationID, "branch", len(branches)), nil
	}

	branch := branches[n-1]
	if err := e.update(ctx, conv, models.ConversationUpdate{BranchID: &branch.ID}); err != nil {
		return "", err
	}
	return e.showDepartmentMenu(ctx, conv, branch.ID)
}

func (e *Engine) handleDepartmentSelection(ctx context.Context, conv *models.Conversation, text string) (string, error) {
	if conv.BranchID == nil {
		return e.render(ctx, conv.OrganizationID, templates.KeyMissingBranch, nil), nil
	}

	n, ok := ParseSelection(text)
	if !ok {
		return e.render(ctx, conv.OrganizationID, templates.KeyInvalidNumber, nil), nil
	}

	depts, err := e.Directory.Departments(ctx, conv.OrganizationID, *conv.BranchID)
	if err != nil {
		e.Log.Error("Failed to list departments", "error", err, "branch_id", *conv.BranchID)
		return e.render(ctx, conv.OrganizationID, templates.KeyDirectoryError, nil), nil
	}
	if len(depts) == 0 {
		return e.render(ctx, conv.OrganizationID, templates.KeyNoDepartments, nil), nil
	}
	if n < 1 || n > len(depts) {
		return e.invalidSelection(ctx, conv.OrganizationID, "department", len(depts)), nil
	}

	dept := depts[n-1]
	if err := e.update(ctx, conv, models.ConversationUpdate{DepartmentID: &dept.ID}); err != nil {
		return "", err
	}
	return e.showServiceMenu(ctx, conv, dept.ID)
}

func (e *Engine) handleServiceSelection(ctx context.Context, conv *models.Conversation, text string) (string, error) {
	if conv.DepartmentID == nil {
		return e.render(ctx, conv.OrganizationID, templates.KeyMissingDepartment, nil), nil
	}
	deptID := *conv.DepartmentID

	n, ok := ParseSelection(text)
	if !ok {
		return e.render(ctx, conv.OrganizationID, templates.KeyInvalidNumber, nil), nil
	}

	services, err := e.Directory.Services(ctx, conv.OrganizationID, deptID)
	if err != nil {
		e.Log.Error("Failed to list services", "error", err, "department_id", deptID)
		return e.render(ctx, conv.OrganizationID, templates.KeyDirectoryError, nil), nil
	}
	if len(services) == 0 {
		return e.render(ctx, conv.OrganizationID, templates.KeyNoServices, nil), nil
	}
	if n < 1 || n > len(services) {
		return e.invalidSelection(ctx, conv.OrganizationID, "service", len(services)), nil
	}

	svc := services[n-1]
	ticket, err := e.Tickets.CreateTicket(ctx, models.NewTicket{
		OrganizationID: conv.OrganizationID,
		ServiceID:      svc.ID,
		DepartmentID:   deptID,
		CustomerPhone:  conv.PhoneNumber,
		Channel:        "whatsapp",
	})
	if err != nil {
		e.Log.Error("Failed to create ticket", "error", err, "service_id", svc.ID, "phone", conv.PhoneNumber)
		return e.render(ctx, conv.OrganizationID, templates.KeyTicketCreateFailed, nil), nil
	}
	e.Metrics.TicketIssued()
	e.Log.Info("Ticket issued", "ticket_number", ticket.TicketNumber, "service_id", svc.ID, "organization_id", conv.OrganizationID)

	// From here on the ticket exists, so every failure is logged and the
	// confirmation is still sent.
	contextData := models.JSONB{}
	for k, v := range conv.ContextData {
		contextData[k] = v
	}
	contextData["customer_phone"] = conv.PhoneNumber
	contextData["ticket_number"] = ticket.TicketNumber

	if err := e.update(ctx, conv, models.ConversationUpdate{
		State:             statePtr(models.StateTicketConfirmed),
		SelectedServiceID: &svc.ID,
		TicketID:          &ticket.ID,
		ContextData:       contextData,
	}); err != nil {
		e.Log.Error("Failed to record ticket on conversation", "error", err, "ticket_id", ticket.ID)
	}

	position := e.queuePosition(ctx, ticket)
	e.notifyIssued(ctx, ticket, position)

	return e.confirmation(ctx, conv.OrganizationID, ticket, position), nil
}

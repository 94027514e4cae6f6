// Package conversation implements the WhatsApp dialogue that walks a
// customer from branch to department to service and issues a ticket.
//
// The engine keeps no state of its own. Every message re-reads the latest
// conversation row, so any number of instances may serve the same customer.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/metrics"
	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/shridarpatil/queuebot/internal/templates"
	"github.com/zerodha/logf"
)

// ConversationStore persists conversation rows.
type ConversationStore interface {
	// Latest returns nil and no error when the customer has no conversation.
	Latest(ctx context.Context, phone string, orgID uuid.UUID) (*models.Conversation, error)
	Create(ctx context.Context, conv *models.Conversation) error
	Update(ctx context.Context, id uuid.UUID, update models.ConversationUpdate) error
	DeleteAll(ctx context.Context, phone string, orgID uuid.UUID) error
}

// Directory reads the organization hierarchy. List methods return rows in
// menu order.
type Directory interface {
	Organization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	Branch(ctx context.Context, id uuid.UUID) (*models.Branch, error)
	Department(ctx context.Context, id uuid.UUID) (*models.Department, error)
	Branches(ctx context.Context, orgID uuid.UUID) ([]models.Branch, error)
	Departments(ctx context.Context, orgID, branchID uuid.UUID) ([]models.Department, error)
	Services(ctx context.Context, orgID, deptID uuid.UUID) ([]models.Service, error)
}

// TicketIssuer creates and manages tickets.
type TicketIssuer interface {
	CreateTicket(ctx context.Context, in models.NewTicket) (*models.TicketDetails, error)
	GetTicket(ctx context.Context, id uuid.UUID) (*models.TicketDetails, error)
	QueuePosition(ctx context.Context, t *models.Ticket) (int, error)
	CancelTicket(ctx context.Context, id uuid.UUID) (*models.TicketDetails, error)
}

// Analytics reads aggregated service figures. It returns nil and no error
// when there is no recent figure.
type Analytics interface {
	ServiceAverage(ctx context.Context, serviceID uuid.UUID, deptID *uuid.UUID) (*models.ServiceAnalytics, error)
}

// Templates renders an organization's message for key.
type Templates interface {
	Render(ctx context.Context, orgID uuid.UUID, key string, vars map[string]interface{}) string
}

// Notifier delivers ticket events outside the conversation. Calls must not
// block on delivery and must not fail the caller.
type Notifier interface {
	TicketIssued(ctx context.Context, ticket *models.TicketDetails, position int)
	TicketCancelled(ctx context.Context, ticket *models.TicketDetails)
}

// QRContext carries the ids a location QR code supplied.
type QRContext struct {
	BranchID     *uuid.UUID
	DepartmentID *uuid.UUID
}

// Present reports whether the QR code supplied any id.
func (q QRContext) Present() bool {
	return q.BranchID != nil || q.DepartmentID != nil
}

// Engine is the conversation state machine.
type Engine struct {
	Conversations ConversationStore
	Directory     Directory
	Tickets       TicketIssuer
	Analytics     Analytics
	Templates     Templates
	Notifier      Notifier
	Metrics       *metrics.Metrics
	Log           logf.Logger

	// SupportContact is quoted in apologies when set.
	SupportContact string
}

var restartKeywords = map[string]bool{
	"hello":   true,
	"start":   true,
	"restart": true,
	"new":     true,
}

// IsRestart reports whether body is one of the restart keywords.
func IsRestart(body string) bool {
	return restartKeywords[strings.ToLower(strings.TrimSpace(body))]
}

// ProcessMessage consumes one inbound message and returns the reply. It
// never fails: errors and panics become a generic apology.
func (e *Engine) ProcessMessage(ctx context.Context, phone, body string, orgID uuid.UUID, qr QRContext) (reply string) {
	start := time.Now()
	state := "unknown"

	defer func() {
		if r := recover(); r != nil {
			e.Log.Error("Recovered from panic in conversation engine", "error", r, "phone", phone, "organization_id", orgID)
			e.Metrics.ObserveFailure()
			reply = templates.Render(templates.Defaults[templates.KeyGenericError], nil)
		}
		e.Metrics.ObserveMessage(state, time.Since(start).Seconds())
	}()

	reply, state, err := e.process(ctx, phone, body, orgID, qr)
	if err != nil {
		e.Log.Error("Failed to process message", "error", err, "phone", phone, "organization_id", orgID, "state", state)
		e.Metrics.ObserveFailure()
		return e.render(ctx, orgID, templates.KeyGenericError, nil)
	}
	return reply
}

func (e *Engine) process(ctx context.Context, phone, body string, orgID uuid.UUID, qr QRContext) (string, string, error) {
	text := strings.TrimSpace(body)

	if IsRestart(text) {
		if err := e.Conversations.DeleteAll(ctx, phone, orgID); err != nil {
			return "", "restart", err
		}
		conv, err := e.newConversation(ctx, phone, orgID, qr)
		if err != nil {
			return "", "restart", err
		}
		reply, err := e.handleInitialContact(ctx, conv)
		return reply, string(models.StateInitialContact), err
	}

	conv, err := e.Conversations.Latest(ctx, phone, orgID)
	if err != nil {
		return "", "load", err
	}
	if conv == nil {
		if conv, err = e.newConversation(ctx, phone, orgID, qr); err != nil {
			return "", "create", err
		}
	}

	state := string(conv.ConversationState)
	var reply string

	switch conv.ConversationState {
	case models.StateInitialContact:
		reply, err = e.handleInitialContact(ctx, conv)
	case models.StateAwaitingBranchSelection:
		reply, err = e.handleBranchSelection(ctx, conv, text)
	case models.StateAwaitingDepartmentSelection:
		reply, err = e.handleDepartmentSelection(ctx, conv, text)
	case models.StateAwaitingServiceSelection:
		reply, err = e.handleServiceSelection(ctx, conv, text)
	case models.StateAwaitingPhoneNumber:
		reply = e.render(ctx, orgID, templates.KeyPhoneNumberStep, nil)
	case models.StateTicketConfirmed:
		reply, err = e.handleTicketConfirmed(ctx, conv, text)
	default:
		e.Log.Warn("Conversation in unknown state", "state", state, "conversation_id", conv.ID)
		reply = e.render(ctx, orgID, templates.KeyUnknownState, nil)
	}

	return reply, state, err
}

func (e *Engine) newConversation(ctx context.Context, phone string, orgID uuid.UUID, qr QRContext) (*models.Conversation, error) {
	conv := &models.Conversation{
		PhoneNumber:       phone,
		OrganizationID:    orgID,
		BranchID:          qr.BranchID,
		DepartmentID:      qr.DepartmentID,
		ConversationState: models.StateInitialContact,
		ContextData:       models.JSONB{},
	}
	if err := e.Conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// handleInitialContact picks the first menu from the QR context: a
// department skips to services, a branch skips to departments.
func (e *Engine) handleInitialContact(ctx context.Context, conv *models.Conversation) (string, error) {
	switch {
	case conv.DepartmentID != nil:
		return e.showServiceMenu(ctx, conv, *conv.DepartmentID)
	case conv.BranchID != nil:
		return e.showDepartmentMenu(ctx, conv, *conv.BranchID)
	default:
		return e.showBranchMenu(ctx, conv)
	}
}

// update persists a partial update and mirrors it onto conv.
func (e *Engine) update(ctx context.Context, conv *models.Conversation, update models.ConversationUpdate) error {
	if err := e.Conversations.Update(ctx, conv.ID, update); err != nil {
		return fmt.Errorf("failed to update conversation %s: %w", conv.ID, err)
	}
	update.Apply(conv)
	return nil
}

// render renders a customer message, adding the support contact.
func (e *Engine) render(ctx context.Context, orgID uuid.UUID, key string, vars map[string]interface{}) string {
	if vars == nil {
		vars = make(map[string]interface{})
	}
	if _, ok := vars["support_contact"]; !ok && e.SupportContact != "" {
		vars["support_contact"] = e.SupportContact
	}
	if e.Templates == nil {
		return templates.Render(templates.Defaults[key], vars)
	}
	return e.Templates.Render(ctx, orgID, key, vars)
}

// organizationName returns "" when the organization cannot be loaded.
func (e *Engine) organizationName(ctx context.Context, orgID uuid.UUID) string {
	org, err := e.Directory.Organization(ctx, orgID)
	if err != nil {
		e.Log.Warn("Failed to load organization", "error", err, "organization_id", orgID)
		return ""
	}
	return org.Name
}

func statePtr(s models.ConversationState) *models.ConversationState {
	return &s
}

package models

import (
	"github.com/google/uuid"
)

// ConversationState is the position of a customer in the selection funnel
type ConversationState string

const (
	StateInitialContact              ConversationState = "INITIAL_CONTACT"
	StateAwaitingBranchSelection     ConversationState = "AWAITING_BRANCH_SELECTION"
	StateAwaitingDepartmentSelection ConversationState = "AWAITING_DEPARTMENT_SELECTION"
	StateAwaitingServiceSelection    ConversationState = "AWAITING_SERVICE_SELECTION"
	// Deprecated: no transition leads here any more. Kept so rows written
	// by the earlier phone-entry flow still load.
	StateAwaitingPhoneNumber ConversationState = "AWAITING_PHONE_NUMBER"
	StateTicketConfirmed     ConversationState = "TICKET_CONFIRMED"
)

// Valid reports whether s is a known state.
func (s ConversationState) Valid() bool {
	switch s {
	case StateInitialContact, StateAwaitingBranchSelection, StateAwaitingDepartmentSelection,
		StateAwaitingServiceSelection, StateAwaitingPhoneNumber, StateTicketConfirmed:
		return true
	}
	return false
}

// Conversation tracks one customer's dialogue with an organization.
// Several historical rows may exist per (phone, organization); the most
// recently created one is canonical.
type Conversation struct {
	BaseModel
	PhoneNumber       string            `gorm:"size:50;not null" json:"phone_number"`
	OrganizationID    uuid.UUID         `gorm:"type:uuid;not null" json:"organization_id"`
	BranchID          *uuid.UUID        `gorm:"type:uuid" json:"branch_id,omitempty"`
	DepartmentID      *uuid.UUID        `gorm:"type:uuid" json:"department_id,omitempty"`
	ConversationState ConversationState `gorm:"size:50;not null;default:'INITIAL_CONTACT'" json:"conversation_state"`
	SelectedServiceID *uuid.UUID        `gorm:"type:uuid" json:"selected_service_id,omitempty"`
	TicketID          *uuid.UUID        `gorm:"type:uuid" json:"ticket_id,omitempty"`
	CustomerName      string            `gorm:"size:255" json:"customer_name,omitempty"`
	ContextData       JSONB             `gorm:"type:jsonb;default:'{}'" json:"context_data"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationUpdate is a partial update; nil fields are left untouched.
type ConversationUpdate struct {
	State             *ConversationState
	BranchID          *uuid.UUID
	DepartmentID      *uuid.UUID
	SelectedServiceID *uuid.UUID
	TicketID          *uuid.UUID
	CustomerName      *string
	ContextData       JSONB
}

// Columns converts the update into a gorm column map.
func (u ConversationUpdate) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if u.State != nil {
		cols["conversation_state"] = *u.State
	}
	if u.BranchID != nil {
		cols["branch_id"] = *u.BranchID
	}
	if u.DepartmentID != nil {
		cols["department_id"] = *u.DepartmentID
	}
	if u.SelectedServiceID != nil {
		cols["selected_service_id"] = *u.SelectedServiceID
	}
	if u.TicketID != nil {
		cols["ticket_id"] = *u.TicketID
	}
	if u.CustomerName != nil {
		cols["customer_name"] = *u.CustomerName
	}
	if u.ContextData != nil {
		cols["context_data"] = u.ContextData
	}
	return cols
}

// Apply copies the set fields onto c.
func (u ConversationUpdate) Apply(c *Conversation) {
	if u.State != nil {
		c.ConversationState = *u.State
	}
	if u.BranchID != nil {
		id := *u.BranchID
		c.BranchID = &id
	}
	if u.DepartmentID != nil {
		id := *u.DepartmentID
		c.DepartmentID = &id
	}
	if u.SelectedServiceID != nil {
		id := *u.SelectedServiceID
		c.SelectedServiceID = &id
	}
	if u.TicketID != nil {
		id := *u.TicketID
		c.TicketID = &id
	}
	if u.CustomerName != nil {
		c.CustomerName = *u.CustomerName
	}
	if u.ContextData != nil {
		c.ContextData = u.ContextData
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the lifecycle status of a ticket
type TicketStatus string

const (
	TicketWaiting   TicketStatus = "waiting"
	TicketServing   TicketStatus = "serving"
	TicketCompleted TicketStatus = "completed"
	TicketCancelled TicketStatus = "cancelled"
)

// Open reports whether the ticket still occupies a place in the queue.
func (s TicketStatus) Open() bool {
	return s == TicketWaiting || s == TicketServing
}

// Ticket is one queue entry
type Ticket struct {
	BaseModel
	OrganizationID uuid.UUID    `gorm:"type:uuid;index;not null" json:"organization_id"`
	ServiceID      uuid.UUID    `gorm:"type:uuid;not null" json:"service_id"`
	DepartmentID   uuid.UUID    `gorm:"type:uuid;index;not null" json:"department_id"`
	TicketNumber   string       `gorm:"size:20;not null" json:"ticket_number"`
	CustomerPhone  string       `gorm:"size:50;index" json:"customer_phone"`
	Status         TicketStatus `gorm:"size:20;not null;default:'waiting'" json:"status"`
	Channel        string       `gorm:"size:20;default:'whatsapp'" json:"channel"` // whatsapp, web
	CalledAt       *time.Time   `json:"called_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	CancelledAt    *time.Time   `json:"cancelled_at,omitempty"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// TicketSequence holds the last allocated number per service
type TicketSequence struct {
	ServiceID  uuid.UUID `gorm:"type:uuid;primary_key" json:"service_id"`
	LastNumber int       `gorm:"not null;default:0" json:"last_number"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TicketSequence) TableName() string {
	return "ticket_sequences"
}

// NewTicket is the input for issuing a ticket
type NewTicket struct {
	OrganizationID uuid.UUID
	ServiceID      uuid.UUID
	DepartmentID   uuid.UUID
	CustomerPhone  string
	Channel        string
}

// TicketDetails is a ticket joined with the names shown to customers
type TicketDetails struct {
	Ticket
	ServiceName              string    `json:"service_name"`
	DepartmentName           string    `json:"department_name"`
	BranchName               string    `json:"branch_name"`
	BranchID                 uuid.UUID `json:"branch_id"`
	EstimatedDurationMinutes int       `json:"estimated_duration_minutes"`
}

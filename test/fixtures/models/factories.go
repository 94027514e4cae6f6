// Package models provides factory functions for creating test data.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// OrganizationBuilder provides a fluent interface for creating test organizations.
type OrganizationBuilder struct {
	org models.Organization
}

// NewOrganization creates a new organization builder with default values.
func NewOrganization() *OrganizationBuilder {
	id := uuid.New()
	return &OrganizationBuilder{
		org: models.Organization{
			BaseModel: models.BaseModel{ID: id},
			Name:      "Test Organization",
			Slug:      "test-org-" + id.String()[:8],
			Settings:  models.JSONB{},
		},
	}
}

// WithName sets the organization name.
func (b *OrganizationBuilder) WithName(name string) *OrganizationBuilder {
	b.org.Name = name
	return b
}

// Build returns the built organization.
func (b *OrganizationBuilder) Build() models.Organization {
	return b.org
}

// BranchBuilder provides a fluent interface for creating test branches.
type BranchBuilder struct {
	branch models.Branch
}

// NewBranch creates a new branch builder with default values.
func NewBranch(orgID uuid.UUID) *BranchBuilder {
	return &BranchBuilder{
		branch: models.Branch{
			BaseModel:      models.BaseModel{ID: uuid.New()},
			OrganizationID: orgID,
			Name:           "Main Branch",
			IsActive:       true,
		},
	}
}

// WithName sets the branch name.
func (b *BranchBuilder) WithName(name string) *BranchBuilder {
	b.branch.Name = name
	return b
}

// Build returns the built branch.
func (b *BranchBuilder) Build() models.Branch {
	return b.branch
}

// DepartmentBuilder provides a fluent interface for creating test departments.
type DepartmentBuilder struct {
	dept models.Department
}

// NewDepartment creates a new department builder with default values.
func NewDepartment(orgID, branchID uuid.UUID) *DepartmentBuilder {
	return &DepartmentBuilder{
		dept: models.Department{
			BaseModel:      models.BaseModel{ID: uuid.New()},
			OrganizationID: orgID,
			BranchID:       branchID,
			Name:           "General",
			IsActive:       true,
		},
	}
}

// WithName sets the department name.
func (b *DepartmentBuilder) WithName(name string) *DepartmentBuilder {
	b.dept.Name = name
	return b
}

// Build returns the built department.
func (b *DepartmentBuilder) Build() models.Department {
	return b.dept
}

// ServiceBuilder provides a fluent interface for creating test services.
type ServiceBuilder struct {
	svc models.Service
}

// NewService creates a new service builder with default values.
func NewService(orgID, deptID uuid.UUID) *ServiceBuilder {
	return &ServiceBuilder{
		svc: models.Service{
			BaseModel:                models.BaseModel{ID: uuid.New()},
			OrganizationID:           orgID,
			DepartmentID:             deptID,
			Name:                     "Banking",
			EstimatedDurationMinutes: 10,
			IsActive:                 true,
		},
	}
}

// WithName sets the service name.
func (b *ServiceBuilder) WithName(name string) *ServiceBuilder {
	b.svc.Name = name
	return b
}

// Build returns the built service.
func (b *ServiceBuilder) Build() models.Service {
	return b.svc
}

// NewBusinessNumber creates a business number routed to orgID.
func NewBusinessNumber(orgID uuid.UUID, phone string) models.BusinessNumber {
	return models.BusinessNumber{
		BaseModel:      models.BaseModel{ID: uuid.New()},
		OrganizationID: orgID,
		PhoneNumber:    phone,
		IsActive:       true,
	}
}

// TicketBuilder provides a fluent interface for creating test tickets.
type TicketBuilder struct {
	ticket models.Ticket
}

// NewTicket creates a waiting ticket for svc.
func NewTicket(svc models.Service, number string) *TicketBuilder {
	return &TicketBuilder{
		ticket: models.Ticket{
			BaseModel:      models.BaseModel{ID: uuid.New(), CreatedAt: time.Now()},
			OrganizationID: svc.OrganizationID,
			ServiceID:      svc.ID,
			DepartmentID:   svc.DepartmentID,
			TicketNumber:   number,
			CustomerPhone:  "15550000000",
			Status:         models.TicketWaiting,
			Channel:        "whatsapp",
		},
	}
}

// WithStatus sets the ticket status.
func (b *TicketBuilder) WithStatus(status models.TicketStatus) *TicketBuilder {
	b.ticket.Status = status
	return b
}

// CreatedAt sets the creation time.
func (b *TicketBuilder) CreatedAt(at time.Time) *TicketBuilder {
	b.ticket.CreatedAt = at
	return b
}

// Build returns the built ticket.
func (b *TicketBuilder) Build() models.Ticket {
	return b.ticket
}

// NewAPIKey returns an active key record for plain, hashed with bcrypt.
func NewAPIKey(orgID uuid.UUID, plain, role string) models.APIKey {
	hash, _ := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	return models.APIKey{
		BaseModel:      models.BaseModel{ID: uuid.New()},
		OrganizationID: orgID,
		Name:           "test key",
		Role:           role,
		KeyPrefix:      plain[4:12],
		KeyHash:        string(hash),
		IsActive:       true,
	}
}

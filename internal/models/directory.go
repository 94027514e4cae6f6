package models

import (
	"time"

	"github.com/google/uuid"
)

// Branch is a physical location of an organization
type Branch struct {
	BaseModel
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Address        string    `gorm:"type:text" json:"address"`
	QRTemplate     string    `gorm:"type:text" json:"qr_template"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`

	// Relations
	Departments []Department `gorm:"foreignKey:BranchID" json:"departments,omitempty"`
}

func (Branch) TableName() string {
	return "branches"
}

// Department belongs to a branch
type Department struct {
	BaseModel
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	BranchID       uuid.UUID `gorm:"type:uuid;index;not null" json:"branch_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Description    string    `gorm:"type:text" json:"description"`
	QRTemplate     string    `gorm:"type:text" json:"qr_template"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`

	// Relations
	Branch   *Branch   `gorm:"foreignKey:BranchID" json:"branch,omitempty"`
	Services []Service `gorm:"foreignKey:DepartmentID" json:"services,omitempty"`
}

func (Department) TableName() string {
	return "departments"
}

// Service is a queue customers take tickets for
type Service struct {
	BaseModel
	OrganizationID           uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	DepartmentID             uuid.UUID `gorm:"type:uuid;index;not null" json:"department_id"`
	Name                     string    `gorm:"size:255;not null" json:"name"`
	Description              string    `gorm:"type:text" json:"description"`
	EstimatedDurationMinutes int       `gorm:"default:10" json:"estimated_duration_minutes"`
	IsActive                 bool      `gorm:"default:true" json:"is_active"`

	// Relations
	Department *Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
}

func (Service) TableName() string {
	return "services"
}

// ServiceAnalytics holds aggregated figures per service and day. Rows written
// by older aggregators populate different average columns, so all are kept.
type ServiceAnalytics struct {
	ID                        uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ServiceID                 uuid.UUID  `gorm:"type:uuid;index;not null" json:"service_id"`
	DepartmentID              *uuid.UUID `gorm:"type:uuid;index" json:"department_id,omitempty"`
	Date                      time.Time  `gorm:"type:date;index;not null" json:"date"`
	TicketsIssued             int        `json:"tickets_issued"`
	TicketsCompleted          int        `json:"tickets_completed"`
	AvgServiceTime            *float64   `gorm:"column:avg_service_time" json:"avg_service_time,omitempty"`
	AverageServiceTimeMinutes *float64   `gorm:"column:average_service_time_minutes" json:"average_service_time_minutes,omitempty"`
	AvgWaitTime               *float64   `gorm:"column:avg_wait_time" json:"avg_wait_time,omitempty"`
	CreatedAt                 time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (ServiceAnalytics) TableName() string {
	return "service_analytics"
}

// AverageMinutes returns the first positive average among the column
// variants, newest naming first.
func (a *ServiceAnalytics) AverageMinutes() (float64, bool) {
	if a == nil {
		return 0, false
	}
	for _, v := range []*float64{a.AverageServiceTimeMinutes, a.AvgServiceTime, a.AvgWaitTime} {
		if v != nil && *v > 0 {
			return *v, true
		}
	}
	return 0, false
}

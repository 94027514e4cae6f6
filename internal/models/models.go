package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// String returns the value under key when it is a string.
func (j JSONB) String(key string) string {
	if j == nil {
		return ""
	}
	s, _ := j[key].(string)
	return s
}

// StringArray is a custom type for string lists stored as JSONB
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, s)
}

// Contains reports whether v is in the list.
func (s StringArray) Contains(v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

// BaseModel contains common fields for all models
type BaseModel struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// Organization represents a tenant in the multi-tenant system
type Organization struct {
	BaseModel
	Name     string `gorm:"size:255;not null" json:"name"`
	Slug     string `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Settings JSONB  `gorm:"type:jsonb;default:'{}'" json:"settings"`

	// Relations
	Branches        []Branch         `gorm:"foreignKey:OrganizationID" json:"branches,omitempty"`
	BusinessNumbers []BusinessNumber `gorm:"foreignKey:OrganizationID" json:"business_numbers,omitempty"`
}

func (Organization) TableName() string {
	return "organizations"
}

// BusinessNumber routes an inbound WhatsApp number to its organization.
// InstanceID and Token override the global provider credentials when set.
type BusinessNumber struct {
	BaseModel
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	PhoneNumber    string    `gorm:"size:50;uniqueIndex;not null" json:"phone_number"` // digits only
	Label          string    `gorm:"size:255" json:"label"`
	InstanceID     string    `gorm:"size:100" json:"instance_id"`
	Token          string    `gorm:"size:255" json:"-"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`

	// Relations
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

func (BusinessNumber) TableName() string {
	return "business_numbers"
}

// APIKey represents an organization API key for the admin API
type APIKey struct {
	BaseModel
	OrganizationID uuid.UUID  `gorm:"type:uuid;index;not null" json:"organization_id"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	Role           string     `gorm:"size:50;default:'operator'" json:"role"` // admin, operator
	KeyPrefix      string     `gorm:"size:8;index" json:"key_prefix"`         // First 8 chars for identification
	KeyHash        string     `gorm:"size:255;not null" json:"-"`             // bcrypt hash of full key
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"` // null = never expires
	IsActive       bool       `gorm:"default:true" json:"is_active"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

// Webhook is an organization endpoint subscribed to ticket events
type Webhook struct {
	BaseModel
	OrganizationID uuid.UUID   `gorm:"type:uuid;index;not null" json:"organization_id"`
	Name           string      `gorm:"size:255;not null" json:"name"`
	URL            string      `gorm:"type:text;not null" json:"url"`
	Events         StringArray `gorm:"type:jsonb;default:'[]'" json:"events"` // ["ticket.created", "ticket.called"]
	Headers        JSONB       `gorm:"type:jsonb;default:'{}'" json:"headers"`
	Secret         string      `gorm:"size:255" json:"-"` // For HMAC signature
	IsActive       bool        `gorm:"default:true" json:"is_active"`
}

func (Webhook) TableName() string {
	return "webhooks"
}

// MessageTemplate overrides a customer-facing message for one organization
type MessageTemplate struct {
	BaseModel
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	Key            string    `gorm:"size:100;not null" json:"key"` // branch_selection, ticket_confirmation, ...
	Content        string    `gorm:"type:text;not null" json:"content"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
}

func (MessageTemplate) TableName() string {
	return "message_templates"
}

// PushSubscription is a customer's push endpoint registered by the web form
type PushSubscription struct {
	BaseModel
	OrganizationID uuid.UUID  `gorm:"type:uuid;index;not null" json:"organization_id"`
	TicketID       *uuid.UUID `gorm:"type:uuid;index" json:"ticket_id,omitempty"`
	CustomerPhone  string     `gorm:"size:50;index" json:"customer_phone"`
	Endpoint       string     `gorm:"type:text;not null" json:"endpoint"`
	Keys           JSONB      `gorm:"type:jsonb;default:'{}'" json:"keys"`
	IsActive       bool       `gorm:"default:true" json:"is_active"`
}

func (PushSubscription) TableName() string {
	return "push_subscriptions"
}

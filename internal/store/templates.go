package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/models"
	"gorm.io/gorm"
)

// Templates reads organization message overrides.
type Templates struct {
	db *gorm.DB
}

// NewTemplates creates a template store.
func NewTemplates(db *gorm.DB) *Templates {
	return &Templates{db: db}
}

// TemplateContent returns the active override for key, or "" when the
// organization has none.
func (s *Templates) TemplateContent(ctx context.Context, orgID uuid.UUID, key string) (string, error) {
	var rows []models.MessageTemplate
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND key = ? AND is_active = ?", orgID, key, true).
		Order("updated_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return "", fmt.Errorf("failed to load message template: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].Content, nil
}

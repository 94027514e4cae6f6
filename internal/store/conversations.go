package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/models"
	"gorm.io/gorm"
)

// Conversations persists conversation rows.
type Conversations struct {
	db *gorm.DB
}

// NewConversations creates a conversation store.
func NewConversations(db *gorm.DB) *Conversations {
	return &Conversations{db: db}
}

// Latest returns the most recently created conversation for (phone, org),
// or nil when there is none.
func (s *Conversations) Latest(ctx context.Context, phone string, orgID uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("phone_number = ? AND organization_id = ?", phone, orgID).
		Order("created_at DESC").
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return &conv, nil
}

// Create inserts conv. A zero id is assigned and the state defaults to
// INITIAL_CONTACT.
func (s *Conversations) Create(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.ConversationState == "" {
		conv.ConversationState = models.StateInitialContact
	}
	if conv.ContextData == nil {
		conv.ContextData = models.JSONB{}
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// Update applies a partial update to one conversation.
func (s *Conversations) Update(ctx context.Context, id uuid.UUID, update models.ConversationUpdate) error {
	cols := update.Columns()
	if len(cols) == 0 {
		return nil
	}
	result := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return fmt.Errorf("failed to update conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll hard-deletes every conversation for (phone, org).
func (s *Conversations) DeleteAll(ctx context.Context, phone string, orgID uuid.UUID) error {
	err := s.db.WithContext(ctx).Unscoped().
		Where("phone_number = ? AND organization_id = ?", phone, orgID).
		Delete(&models.Conversation{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete conversations: %w", err)
	}
	return nil
}

// List returns the conversations for a phone number, newest first.
func (s *Conversations) List(ctx context.Context, phone string, orgID uuid.UUID) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Where("phone_number = ? AND organization_id = ?", phone, orgID).
		Order("created_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/models"
	"gorm.io/gorm"
)

// Subscribers reads who wants to hear about ticket events.
type Subscribers struct {
	db *gorm.DB
}

// NewSubscribers creates a subscriber store.
func NewSubscribers(db *gorm.DB) *Subscribers {
	return &Subscribers{db: db}
}

// PushSubscriptions returns the active push endpoints registered for a ticket
// or, failing that, for the customer's phone.
func (s *Subscribers) PushSubscriptions(ctx context.Context, orgID, ticketID uuid.UUID, phone string) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND is_active = ?", orgID, true).
		Where("ticket_id = ? OR (ticket_id IS NULL AND customer_phone = ?)", ticketID, phone).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load push subscriptions: %w", err)
	}
	return subs, nil
}

// Webhooks returns the organization's active webhooks subscribed to event.
func (s *Subscribers) Webhooks(ctx context.Context, orgID uuid.UUID, event string) ([]models.Webhook, error) {
	var hooks []models.Webhook
	if err := s.db.WithContext(ctx).
		Where("organization_id = ? AND is_active = ?", orgID, true).
		Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("failed to load webhooks: %w", err)
	}

	matched := hooks[:0]
	for _, h := range hooks {
		if h.Events.Contains(event) {
			matched = append(matched, h)
		}
	}
	return matched, nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/models"
	"gorm.io/gorm"
)

// analyticsWindow bounds how old a figure may be to count as recent.
const analyticsWindow = 30 * 24 * time.Hour

// Analytics reads aggregated service figures.
type Analytics struct {
	db *gorm.DB
}

// NewAnalytics creates an analytics reader.
func NewAnalytics(db *gorm.DB) *Analytics {
	return &Analytics{db: db}
}

// ServiceAverage returns the most recent analytics row of a service that
// carries a positive average in any column variant, or nil when none exists
// within the window. Rows bound to another department are ignored when
// deptID is given.
func (a *Analytics) ServiceAverage(ctx context.Context, serviceID uuid.UUID, deptID *uuid.UUID) (*models.ServiceAnalytics, error) {
	q := a.db.WithContext(ctx).
		Where("service_id = ? AND date >= ?", serviceID, time.Now().Add(-analyticsWindow).Format("2006-01-02")).
		Where("(average_service_time_minutes > 0 OR avg_service_time > 0 OR avg_wait_time > 0)")
	if deptID != nil {
		q = q.Where("(department_id = ? OR department_id IS NULL)", *deptID)
	}

	var rows []models.ServiceAnalytics
	if err := q.Order("date DESC, created_at DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load service analytics: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

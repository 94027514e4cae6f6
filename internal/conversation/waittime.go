package conversation

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/models"
)

// EstimateWait returns the formatted per-customer service time of a service:
// the recent analytics average when positive, else fallbackMinutes.
func (e *Engine) EstimateWait(ctx context.Context, serviceID uuid.UUID, deptID *uuid.UUID, fallbackMinutes int) string {
	return FormatWait(e.minutesPerTicket(ctx, serviceID, deptID, fallbackMinutes))
}

func (e *Engine) minutesPerTicket(ctx context.Context, serviceID uuid.UUID, deptID *uuid.UUID, fallbackMinutes int) float64 {
	if e.Analytics != nil {
		stats, err := e.Analytics.ServiceAverage(ctx, serviceID, deptID)
		if err != nil {
			e.Log.Warn("Failed to load service analytics", "error", err, "service_id", serviceID)
		} else if minutes, ok := stats.AverageMinutes(); ok {
			return minutes
		}
	}
	return float64(fallbackMinutes)
}

// waitAhead estimates the wait of a ticket from the people ahead of it.
func (e *Engine) waitAhead(ctx context.Context, ticket *models.TicketDetails, position int) string {
	deptID := ticket.DepartmentID
	perTicket := e.minutesPerTicket(ctx, ticket.ServiceID, &deptID, ticket.EstimatedDurationMinutes)
	ahead := position - 1
	if ahead < 0 {
		ahead = 0
	}
	return FormatWait(perTicket * float64(ahead))
}

// FormatWait renders minutes as "Nm", "Hh" or "Hh Mm".
func FormatWait(minutes float64) string {
	m := int(math.Round(minutes))
	if m < 0 {
		m = 0
	}
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	h, rem := m/60, m%60
	if rem == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, rem)
}

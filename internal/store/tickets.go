package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ticketPrefixLen    = 3
	ticketPrefixFiller = 'X'
)

// nextNumberSQL allocates the next number of a service's sequence. The row
// lock taken by the upsert serializes concurrent issuers of one service.
const nextNumberSQL = `
	INSERT INTO ticket_sequences (service_id, last_number, updated_at)
	VALUES (?, 1, NOW())
	ON CONFLICT (service_id)
	DO UPDATE SET last_number = ticket_sequences.last_number + 1, updated_at = NOW()
	RETURNING last_number`

// detailsColumns joins a ticket with the names shown to customers.
const detailsColumns = `tickets.*,
	services.name AS service_name,
	services.estimated_duration_minutes AS estimated_duration_minutes,
	departments.name AS department_name,
	departments.branch_id AS branch_id,
	COALESCE(branches.name, '') AS branch_name`

// Tickets issues and advances queue tickets.
type Tickets struct {
	db *gorm.DB
}

// NewTickets creates a ticket store.
func NewTickets(db *gorm.DB) *Tickets {
	return &Tickets{db: db}
}

// ServicePrefix derives the ticket prefix from a service name: the first
// three ASCII letters, uppercased, padded with X.
func ServicePrefix(name string) string {
	var b strings.Builder
	for _, r := range name {
		if b.Len() == ticketPrefixLen {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	for b.Len() < ticketPrefixLen {
		b.WriteRune(ticketPrefixFiller)
	}
	return strings.ToUpper(b.String())
}

// FormatTicketNumber renders a sequence number as PREFIX-NNN.
func FormatTicketNumber(prefix string, n int) string {
	return fmt.Sprintf("%s-%03d", prefix, n)
}

// CreateTicket allocates the next number of the service and inserts the
// ticket in one transaction.
func (s *Tickets) CreateTicket(ctx context.Context, in models.NewTicket) (*models.TicketDetails, error) {
	var ticket models.Ticket

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var svc models.Service
		if err := tx.Where("id = ? AND organization_id = ?", in.ServiceID, in.OrganizationID).First(&svc).Error; err != nil {
			return notFound(err)
		}
		if !svc.IsActive {
			return ErrServiceInactive
		}

		var next int
		if err := tx.Raw(nextNumberSQL, svc.ID).Scan(&next).Error; err != nil {
			return fmt.Errorf("failed to allocate ticket number: %w", err)
		}

		deptID := in.DepartmentID
		if deptID == uuid.Nil {
			deptID = svc.DepartmentID
		}
		channel := in.Channel
		if channel == "" {
			channel = "whatsapp"
		}

		ticket = models.Ticket{
			BaseModel:      models.BaseModel{ID: uuid.New()},
			OrganizationID: in.OrganizationID,
			ServiceID:      svc.ID,
			DepartmentID:   deptID,
			TicketNumber:   FormatTicketNumber(ServicePrefix(svc.Name), next),
			CustomerPhone:  in.CustomerPhone,
			Status:         models.TicketWaiting,
			Channel:        channel,
		}
		if err := tx.Create(&ticket).Error; err != nil {
			return fmt.Errorf("failed to insert ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetTicket(ctx, ticket.ID)
}

// GetTicket loads a ticket with its service, department and branch names.
func (s *Tickets) GetTicket(ctx context.Context, id uuid.UUID) (*models.TicketDetails, error) {
	var details models.TicketDetails
	result := s.details(ctx).Where("tickets.id = ?", id).Limit(1).Scan(&details)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load ticket: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &details, nil
}

// QueuePosition counts the open tickets of the service created before t,
// plus one.
func (s *Tickets) QueuePosition(ctx context.Context, t *models.Ticket) (int, error) {
	var ahead int64
	err := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("service_id = ? AND status IN ? AND created_at < ?",
			t.ServiceID, []models.TicketStatus{models.TicketWaiting, models.TicketServing}, t.CreatedAt).
		Count(&ahead).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute queue position: %w", err)
	}
	return int(ahead) + 1, nil
}

// CancelTicket cancels a waiting or serving ticket. A ticket that is already
// closed is returned together with ErrTicketClosed.
func (s *Tickets) CancelTicket(ctx context.Context, id uuid.UUID) (*models.TicketDetails, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ticket models.Ticket
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&ticket).Error; err != nil {
			return notFound(err)
		}
		if !ticket.Status.Open() {
			return ErrTicketClosed
		}
		now := time.Now()
		return tx.Model(&ticket).Updates(map[string]interface{}{
			"status":       models.TicketCancelled,
			"cancelled_at": now,
		}).Error
	})
	if err != nil && !errors.Is(err, ErrTicketClosed) {
		return nil, err
	}

	details, getErr := s.GetTicket(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return details, err
}

// CallResult is the outcome of calling the next ticket of a service.
type CallResult struct {
	Completed []uuid.UUID
	Called    *models.TicketDetails
}

// CallNext completes the tickets being served for a service and moves the
// earliest waiting ticket to serving. ErrQueueEmpty is returned when nobody
// is waiting; completions are kept in that case.
func (s *Tickets) CallNext(ctx context.Context, orgID, serviceID uuid.UUID) (*CallResult, error) {
	res := &CallResult{}
	var calledID uuid.UUID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var svc models.Service
		if err := tx.Where("id = ? AND organization_id = ?", serviceID, orgID).First(&svc).Error; err != nil {
			return notFound(err)
		}

		now := time.Now()

		var serving []models.Ticket
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("service_id = ? AND status = ?", serviceID, models.TicketServing).
			Find(&serving).Error; err != nil {
			return fmt.Errorf("failed to load serving tickets: %w", err)
		}
		for _, t := range serving {
			res.Completed = append(res.Completed, t.ID)
		}
		if len(res.Completed) > 0 {
			if err := tx.Model(&models.Ticket{}).Where("id IN ?", res.Completed).Updates(map[string]interface{}{
				"status":       models.TicketCompleted,
				"completed_at": now,
			}).Error; err != nil {
				return fmt.Errorf("failed to complete tickets: %w", err)
			}
		}

		var next models.Ticket
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("service_id = ? AND status = ?", serviceID, models.TicketWaiting).
			Order("created_at ASC").
			First(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load next ticket: %w", err)
		}

		if err := tx.Model(&next).Updates(map[string]interface{}{
			"status":    models.TicketServing,
			"called_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to call ticket: %w", err)
		}
		calledID = next.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if calledID == uuid.Nil {
		return res, ErrQueueEmpty
	}

	res.Called, err = s.GetTicket(ctx, calledID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Upcoming is a waiting ticket and its position in the queue.
type Upcoming struct {
	Ticket   models.TicketDetails
	Position int
}

// UpcomingTickets returns the first limit waiting tickets of a service with
// their queue positions.
func (s *Tickets) UpcomingTickets(ctx context.Context, serviceID uuid.UUID, limit int) ([]Upcoming, error) {
	if limit <= 0 {
		return nil, nil
	}

	var serving int64
	if err := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("service_id = ? AND status = ?", serviceID, models.TicketServing).
		Count(&serving).Error; err != nil {
		return nil, fmt.Errorf("failed to count serving tickets: %w", err)
	}

	var waiting []models.TicketDetails
	if err := s.details(ctx).
		Where("tickets.service_id = ? AND tickets.status = ?", serviceID, models.TicketWaiting).
		Order("tickets.created_at ASC").
		Limit(limit).
		Scan(&waiting).Error; err != nil {
		return nil, fmt.Errorf("failed to list waiting tickets: %w", err)
	}

	out := make([]Upcoming, 0, len(waiting))
	for i, t := range waiting {
		out = append(out, Upcoming{Ticket: t, Position: int(serving) + i + 1})
	}
	return out, nil
}

func (s *Tickets) details(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table("tickets").
		Select(detailsColumns).
		Joins("JOIN services ON services.id = tickets.service_id").
		Joins("JOIN departments ON departments.id = tickets.department_id").
		Joins("LEFT JOIN branches ON branches.id = departments.branch_id").
		Where("tickets.deleted_at IS NULL")
}

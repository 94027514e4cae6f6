package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/zerodha/logf"
	"gorm.io/gorm"
)

const (
	businessNumberCacheKey = "queuebot:business_number:%s"
	businessNumberCacheTTL = 5 * time.Minute
)

// Directory reads the organization hierarchy and the business-number
// registry. Menus are ordered by name and list active rows only.
type Directory struct {
	db    *gorm.DB
	cache *redis.Client
	log   logf.Logger
}

// NewDirectory creates a directory. cache may be nil.
func NewDirectory(db *gorm.DB, cache *redis.Client, log logf.Logger) *Directory {
	return &Directory{db: db, cache: cache, log: log}
}

func (d *Directory) Organization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, notFound(err)
	}
	return &org, nil
}

func (d *Directory) Branch(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	var branch models.Branch
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&branch).Error; err != nil {
		return nil, notFound(err)
	}
	return &branch, nil
}

func (d *Directory) Department(ctx context.Context, id uuid.UUID) (*models.Department, error) {
	var dept models.Department
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&dept).Error; err != nil {
		return nil, notFound(err)
	}
	return &dept, nil
}

func (d *Directory) Service(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var svc models.Service
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&svc).Error; err != nil {
		return nil, notFound(err)
	}
	return &svc, nil
}

// Branches lists the organization's branches.
func (d *Directory) Branches(ctx context.Context, orgID uuid.UUID) ([]models.Branch, error) {
	var branches []models.Branch
	err := d.db.WithContext(ctx).
		Where("organization_id = ? AND is_active = ?", orgID, true).
		Order("name ASC, created_at ASC").
		Find(&branches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return branches, nil
}

// Departments lists the departments of one branch.
func (d *Directory) Departments(ctx context.Context, orgID, branchID uuid.UUID) ([]models.Department, error) {
	var depts []models.Department
	err := d.db.WithContext(ctx).
		Where("organization_id = ? AND branch_id = ? AND is_active = ?", orgID, branchID, true).
		Order("name ASC, created_at ASC").
		Find(&depts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	return depts, nil
}

// Services lists the active services of one department.
func (d *Directory) Services(ctx context.Context, orgID, deptID uuid.UUID) ([]models.Service, error) {
	var services []models.Service
	err := d.db.WithContext(ctx).
		Where("organization_id = ? AND department_id = ? AND is_active = ?", orgID, deptID, true).
		Order("name ASC, created_at ASC").
		Find(&services).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}

// cachedNumber is the cached form of a registry entry. The token is kept
// because BusinessNumber hides it from JSON.
type cachedNumber struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	PhoneNumber    string    `json:"phone_number"`
	InstanceID     string    `json:"instance_id"`
	Token          string    `json:"token"`
}

// ResolveBusinessNumber finds the active registry entry for a business phone
// number (digits only).
func (d *Directory) ResolveBusinessNumber(ctx context.Context, phone string) (*models.BusinessNumber, error) {
	key := fmt.Sprintf(businessNumberCacheKey, phone)
	if d.cache != nil {
		if data, err := d.cache.Get(ctx, key).Bytes(); err == nil {
			var c cachedNumber
			if err := json.Unmarshal(data, &c); err == nil {
				return &models.BusinessNumber{
					BaseModel:      models.BaseModel{ID: c.ID},
					OrganizationID: c.OrganizationID,
					PhoneNumber:    c.PhoneNumber,
					InstanceID:     c.InstanceID,
					Token:          c.Token,
					IsActive:       true,
				}, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			d.log.Warn("Business number cache read failed", "error", err)
		}
	}

	var number models.BusinessNumber
	err := d.db.WithContext(ctx).
		Where("phone_number IN ? AND is_active = ?", []string{phone, "+" + phone}, true).
		First(&number).Error
	if err != nil {
		return nil, notFound(err)
	}

	if d.cache != nil {
		data, _ := json.Marshal(cachedNumber{
			ID:             number.ID,
			OrganizationID: number.OrganizationID,
			PhoneNumber:    number.PhoneNumber,
			InstanceID:     number.InstanceID,
			Token:          number.Token,
		})
		if err := d.cache.Set(ctx, key, data, businessNumberCacheTTL).Err(); err != nil {
			d.log.Warn("Business number cache write failed", "error", err)
		}
	}

	return &number, nil
}

// OrganizationNumber returns the first active business number of an
// organization, used to build QR deep links.
func (d *Directory) OrganizationNumber(ctx context.Context, orgID uuid.UUID) (*models.BusinessNumber, error) {
	var number models.BusinessNumber
	err := d.db.WithContext(ctx).
		Where("organization_id = ? AND is_active = ?", orgID, true).
		Order("created_at ASC").
		First(&number).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &number, nil
}

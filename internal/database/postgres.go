package database

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/config"
	"github.com/shridarpatil/queuebot/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// APIKeyPrefix starts every organization API key.
const APIKeyPrefix = "qbk_"

// NewPostgres creates a new PostgreSQL connection
func NewPostgres(cfg *config.DatabaseConfig, debug bool) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	return db, nil
}

// Models lists every table owned by the service, parents first.
func Models() []interface{} {
	return []interface{}{
		// Directory
		&models.Organization{},
		&models.BusinessNumber{},
		&models.Branch{},
		&models.Department{},
		&models.Service{},
		&models.ServiceAnalytics{},

		// Queue
		&models.TicketSequence{},
		&models.Ticket{},
		&models.Conversation{},

		// Messaging & access
		&models.MessageTemplate{},
		&models.PushSubscription{},
		&models.Webhook{},
		&models.APIKey{},
	}
}

// AutoMigrate runs auto migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// CreateIndexes creates additional indexes not handled by GORM tags
func CreateIndexes(db *gorm.DB) error {
	indexes := []string{
		// Ticket numbers never repeat within a service
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_service_number ON tickets(service_id, ticket_number)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_service_status_created ON tickets(service_id, status, created_at)`,

		// Latest conversation lookup
		`CREATE INDEX IF NOT EXISTS idx_conversations_phone_org_created ON conversations(phone_number, organization_id, created_at DESC)`,

		// Directory menus
		`CREATE INDEX IF NOT EXISTS idx_branches_org_name ON branches(organization_id, name)`,
		`CREATE INDEX IF NOT EXISTS idx_departments_branch_name ON departments(branch_id, name)`,
		`CREATE INDEX IF NOT EXISTS idx_services_department_active ON services(department_id, is_active, name)`,

		// Analytics lookup
		`CREATE INDEX IF NOT EXISTS idx_service_analytics_service_date ON service_analytics(service_id, date DESC)`,

		// Templates
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_message_templates_org_key ON message_templates(organization_id, key) WHERE deleted_at IS NULL`,

		// Webhooks
		`CREATE INDEX IF NOT EXISTS idx_webhooks_org_active ON webhooks(organization_id, is_active)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// GenerateAPIKey returns a new plaintext key, its lookup prefix and its bcrypt hash.
func GenerateAPIKey() (key, prefix, hash string, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("failed to generate key: %w", err)
	}
	key = APIKeyPrefix + hex.EncodeToString(buf)

	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash key: %w", err)
	}
	return key, key[len(APIKeyPrefix) : len(APIKeyPrefix)+8], string(hashed), nil
}

// CreateDefaultOrganization creates a default organization with an admin API
// key if no organization exists yet. The plaintext key is returned once; an
// empty key means nothing was created.
func CreateDefaultOrganization(db *gorm.DB) (string, error) {
	var count int64
	if err := db.Model(&models.Organization{}).Count(&count).Error; err != nil {
		return "", fmt.Errorf("failed to count organizations: %w", err)
	}
	if count > 0 {
		return "", nil
	}

	org := models.Organization{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Name:      "Default Organization",
		Slug:      "default",
		Settings:  models.JSONB{},
	}
	if err := db.Create(&org).Error; err != nil {
		return "", fmt.Errorf("failed to create default organization: %w", err)
	}

	key, prefix, hash, err := GenerateAPIKey()
	if err != nil {
		return "", err
	}

	apiKey := models.APIKey{
		BaseModel:      models.BaseModel{ID: uuid.New()},
		OrganizationID: org.ID,
		Name:           "bootstrap",
		Role:           "admin",
		KeyPrefix:      prefix,
		KeyHash:        hash,
		IsActive:       true,
	}
	if err := db.Create(&apiKey).Error; err != nil {
		return "", fmt.Errorf("failed to create bootstrap API key: %w", err)
	}

	return key, nil
}

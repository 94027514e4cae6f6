// Package handlers serves the provider webhook, the admin API and the
// dashboard websocket.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shridarpatil/queuebot/internal/config"
	"github.com/shridarpatil/queuebot/internal/conversation"
	"github.com/shridarpatil/queuebot/internal/metrics"
	"github.com/shridarpatil/queuebot/internal/middleware"
	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/shridarpatil/queuebot/internal/notify"
	"github.com/shridarpatil/queuebot/internal/store"
	"github.com/shridarpatil/queuebot/internal/templates"
	"github.com/shridarpatil/queuebot/internal/websocket"
	"github.com/shridarpatil/queuebot/pkg/whatsapp"
	"github.com/zerodha/fastglue"
	"github.com/zerodha/logf"
	"gorm.io/gorm"
)

// MessageProcessor turns one customer message into a reply.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, phone, body string, orgID uuid.UUID, qr conversation.QRContext) string
}

// BusinessNumbers is the registry of WhatsApp numbers.
type BusinessNumbers interface {
	ResolveBusinessNumber(ctx context.Context, phone string) (*models.BusinessNumber, error)
	OrganizationNumber(ctx context.Context, orgID uuid.UUID) (*models.BusinessNumber, error)
}

// Locations loads the entities a QR code can point at.
type Locations interface {
	Branch(ctx context.Context, id uuid.UUID) (*models.Branch, error)
	Department(ctx context.Context, id uuid.UUID) (*models.Department, error)
}

// TicketCaller advances a service queue.
type TicketCaller interface {
	CallNext(ctx context.Context, orgID, serviceID uuid.UUID) (*store.CallResult, error)
}

// ConversationLister lists a customer's conversation rows, newest first.
type ConversationLister interface {
	List(ctx context.Context, phone string, orgID uuid.UUID) ([]models.Conversation, error)
}

// CallNotifier tells a customer their ticket was called.
type CallNotifier interface {
	TicketCalled(ctx context.Context, ticket *models.TicketDetails)
}

// Templates renders an organization's message for key.
type Templates interface {
	Render(ctx context.Context, orgID uuid.UUID, key string, vars map[string]interface{}) string
}

// App holds the dependencies of every handler
type App struct {
	Config        *config.Config
	DB            *gorm.DB
	Redis         *redis.Client
	Log           logf.Logger
	WhatsApp      notify.Sender
	Engine        MessageProcessor
	Numbers       BusinessNumbers
	Locations     Locations
	Tickets       TicketCaller
	Conversations ConversationLister
	Notifier      CallNotifier
	Templates     Templates
	Metrics       *metrics.Metrics
	WSHub         *websocket.Hub
	Gatherer      prometheus.Gatherer
}

// NewApp wires the handlers to the database-backed stores.
func NewApp(cfg *config.Config, db *gorm.DB, rdb *redis.Client, wa notify.Sender, m *metrics.Metrics,
	hub *websocket.Hub, gatherer prometheus.Gatherer, log logf.Logger) *App {
	directory := store.NewDirectory(db, rdb, log)
	tickets := store.NewTickets(db)
	conversations := store.NewConversations(db)
	resolver := templates.NewResolver(store.NewTemplates(db), rdb,
		time.Duration(cfg.Conversation.TemplateCacheTTL)*time.Second, log)
	dispatcher := notify.NewDispatcher(cfg, db, rdb, wa, m, log)

	return &App{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Log:      log,
		WhatsApp: wa,
		Engine: &conversation.Engine{
			Conversations:  conversations,
			Directory:      directory,
			Tickets:        tickets,
			Analytics:      store.NewAnalytics(db),
			Templates:      resolver,
			Notifier:       dispatcher,
			Metrics:        m,
			Log:            log,
			SupportContact: cfg.Conversation.SupportContact,
		},
		Numbers:       directory,
		Locations:     directory,
		Tickets:       tickets,
		Conversations: conversations,
		Notifier:      dispatcher,
		Templates:     resolver,
		Metrics:       m,
		WSHub:         hub,
		Gatherer:      gatherer,
	}
}

// defaultAccount is the provider account from config.
func (a *App) defaultAccount() whatsapp.Account {
	return whatsapp.Account{
		BaseURL:    a.Config.WhatsApp.BaseURL,
		InstanceID: a.Config.WhatsApp.InstanceID,
		Token:      a.Config.WhatsApp.Token,
		Priority:   a.Config.WhatsApp.Priority,
	}
}

func getOrganizationID(r *fastglue.Request) (uuid.UUID, error) {
	if orgID, ok := middleware.GetOrganizationID(r); ok {
		return orgID, nil
	}
	return uuid.Nil, fmt.Errorf("organization_id not found in context")
}

// pathID parses the {id} path parameter.
func pathID(r *fastglue.Request) (uuid.UUID, error) {
	s, _ := r.RequestCtx.UserValue("id").(string)
	return uuid.Parse(s)
}

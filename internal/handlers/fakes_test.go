package handlers_test

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/conversation"
	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/shridarpatil/queuebot/internal/store"
	"github.com/shridarpatil/queuebot/internal/templates"
)

type engineCall struct {
	Phone string
	Body  string
	OrgID uuid.UUID
	QR    conversation.QRContext
}

type fakeEngine struct {
	mu    sync.Mutex
	reply string
	calls []engineCall
}

func (f *fakeEngine) ProcessMessage(_ context.Context, phone, body string, orgID uuid.UUID, qr conversation.QRContext) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, engineCall{Phone: phone, Body: body, OrgID: orgID, QR: qr})
	return f.reply
}

func (f *fakeEngine) Calls() []engineCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engineCall(nil), f.calls...)
}

type fakeNumbers struct {
	byPhone map[string]*models.BusinessNumber
	byOrg   map[uuid.UUID]*models.BusinessNumber
	err     error
}

func (f *fakeNumbers) ResolveBusinessNumber(_ context.Context, phone string) (*models.BusinessNumber, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n, ok := f.byPhone[phone]; ok {
		return n, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeNumbers) OrganizationNumber(_ context.Context, orgID uuid.UUID) (*models.BusinessNumber, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n, ok := f.byOrg[orgID]; ok {
		return n, nil
	}
	return nil, store.ErrNotFound
}

type fakeLocations struct {
	branches    map[uuid.UUID]*models.Branch
	departments map[uuid.UUID]*models.Department
}

func (f *fakeLocations) Branch(_ context.Context, id uuid.UUID) (*models.Branch, error) {
	if b, ok := f.branches[id]; ok {
		return b, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeLocations) Department(_ context.Context, id uuid.UUID) (*models.Department, error) {
	if d, ok := f.departments[id]; ok {
		return d, nil
	}
	return nil, store.ErrNotFound
}

type fakeCaller struct {
	res *store.CallResult
	err error
}

func (f *fakeCaller) CallNext(_ context.Context, _, _ uuid.UUID) (*store.CallResult, error) {
	return f.res, f.err
}

type fakeConversations struct {
	rows map[string][]models.Conversation
	err  error
}

func (f *fakeConversations) List(_ context.Context, phone string, orgID uuid.UUID) ([]models.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[orgID.String()+"/"+phone], nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	called []*models.TicketDetails
}

func (f *fakeNotifier) TicketCalled(_ context.Context, ticket *models.TicketDetails) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = append(f.called, ticket)
}

type defaultTemplates struct{}

func (defaultTemplates) Render(_ context.Context, _ uuid.UUID, key string, vars map[string]interface{}) string {
	return templates.Render(templates.Defaults[key], vars)
}

package conversation_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/conversation"
	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/shridarpatil/queuebot/internal/store"
	"github.com/shridarpatil/queuebot/internal/templates"
	"github.com/shridarpatil/queuebot/test/testutil"
)

var errBoom = errors.New("boom")

// memConversations keeps conversations in creation order.
type memConversations struct {
	mu        sync.Mutex
	rows      []*models.Conversation
	failLoad  error
	failWrite error
	// failUpdateWhen fails updates that set this state
	failUpdateWhen models.ConversationState
}

func (m *memConversations) Latest(_ context.Context, phone string, orgID uuid.UUID) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad != nil {
		return nil, m.failLoad
	}
	for i := len(m.rows) - 1; i >= 0; i-- {
		c := m.rows[i]
		if c.PhoneNumber == phone && c.OrganizationID == orgID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memConversations) Create(_ context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	conv.CreatedAt = time.Now()
	cp := *conv
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memConversations) Update(_ context.Context, id uuid.UUID, update models.ConversationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	if update.State != nil && *update.State == m.failUpdateWhen {
		return errBoom
	}
	for _, c := range m.rows {
		if c.ID == id {
			update.Apply(c)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memConversations) DeleteAll(_ context.Context, phone string, orgID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, c := range m.rows {
		if c.PhoneNumber != phone || c.OrganizationID != orgID {
			kept = append(kept, c)
		}
	}
	m.rows = kept
	return nil
}

func (m *memConversations) count(phone string, orgID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.rows {
		if c.PhoneNumber == phone && c.OrganizationID == orgID {
			n++
		}
	}
	return n
}

// memDirectory is an in-memory organization hierarchy.
type memDirectory struct {
	orgs     map[uuid.UUID]models.Organization
	branches []models.Branch
	depts    []models.Department
	services []models.Service
	err      error
	panics   bool
}

func newMemDirectory() *memDirectory {
	return &memDirectory{orgs: map[uuid.UUID]models.Organization{}}
}

func (d *memDirectory) Organization(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	if org, ok := d.orgs[id]; ok {
		return &org, nil
	}
	return nil, store.ErrNotFound
}

func (d *memDirectory) Branch(_ context.Context, id uuid.UUID) (*models.Branch, error) {
	for _, b := range d.branches {
		if b.ID == id {
			b := b
			return &b, nil
		}
	}
	return nil, store.ErrNotFound
}

func (d *memDirectory) Department(_ context.Context, id uuid.UUID) (*models.Department, error) {
	for _, dept := range d.depts {
		if dept.ID == id {
			dept := dept
			return &dept, nil
		}
	}
	return nil, store.ErrNotFound
}

func (d *memDirectory) Branches(_ context.Context, orgID uuid.UUID) ([]models.Branch, error) {
	if d.panics {
		panic("directory exploded")
	}
	if d.err != nil {
		return nil, d.err
	}
	var out []models.Branch
	for _, b := range d.branches {
		if b.OrganizationID == orgID {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *memDirectory) Departments(_ context.Context, orgID, branchID uuid.UUID) ([]models.Department, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []models.Department
	for _, dept := range d.depts {
		if dept.OrganizationID == orgID && dept.BranchID == branchID {
			out = append(out, dept)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *memDirectory) Services(_ context.Context, orgID, deptID uuid.UUID) ([]models.Service, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []models.Service
	for _, s := range d.services {
		if s.OrganizationID == orgID && s.DepartmentID == deptID && s.IsActive {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// memTickets numbers tickets per service like the real issuer.
type memTickets struct {
	mu         sync.Mutex
	dir        *memDirectory
	sequences  map[uuid.UUID]int
	tickets    map[uuid.UUID]*models.TicketDetails
	order      []uuid.UUID
	failCreate error
	failPos    error
}

func newMemTickets(dir *memDirectory) *memTickets {
	return &memTickets{
		dir:       dir,
		sequences: map[uuid.UUID]int{},
		tickets:   map[uuid.UUID]*models.TicketDetails{},
	}
}

func (m *memTickets) CreateTicket(ctx context.Context, in models.NewTicket) (*models.TicketDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return nil, m.failCreate
	}

	var svc *models.Service
	for i := range m.dir.services {
		if m.dir.services[i].ID == in.ServiceID {
			svc = &m.dir.services[i]
		}
	}
	if svc == nil {
		return nil, store.ErrNotFound
	}
	dept, err := m.dir.Department(ctx, in.DepartmentID)
	if err != nil {
		return nil, err
	}
	branch, err := m.dir.Branch(ctx, dept.BranchID)
	if err != nil {
		return nil, err
	}

	m.sequences[svc.ID]++
	t := &models.TicketDetails{
		Ticket: models.Ticket{
			BaseModel:      models.BaseModel{ID: uuid.New(), CreatedAt: time.Now()},
			OrganizationID: in.OrganizationID,
			ServiceID:      svc.ID,
			DepartmentID:   in.DepartmentID,
			TicketNumber:   store.FormatTicketNumber(store.ServicePrefix(svc.Name), m.sequences[svc.ID]),
			CustomerPhone:  in.CustomerPhone,
			Status:         models.TicketWaiting,
			Channel:        in.Channel,
		},
		ServiceName:              svc.Name,
		DepartmentName:           dept.Name,
		BranchName:               branch.Name,
		BranchID:                 branch.ID,
		EstimatedDurationMinutes: svc.EstimatedDurationMinutes,
	}
	m.tickets[t.ID] = t
	m.order = append(m.order, t.ID)
	cp := *t
	return &cp, nil
}

func (m *memTickets) GetTicket(_ context.Context, id uuid.UUID) (*models.TicketDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTickets) QueuePosition(_ context.Context, t *models.Ticket) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPos != nil {
		return 0, m.failPos
	}
	pos := 1
	for _, id := range m.order {
		other := m.tickets[id]
		if other.ID == t.ID {
			break
		}
		if other.ServiceID == t.ServiceID && other.Status.Open() {
			pos++
		}
	}
	return pos, nil
}

func (m *memTickets) CancelTicket(_ context.Context, id uuid.UUID) (*models.TicketDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !t.Status.Open() {
		cp := *t
		return &cp, store.ErrTicketClosed
	}
	now := time.Now()
	t.Status = models.TicketCancelled
	t.CancelledAt = &now
	cp := *t
	return &cp, nil
}

// addWaiting queues a ticket for someone else ahead of the customer.
func (m *memTickets) addWaiting(svc models.Service) {
	_, _ = m.CreateTicket(context.Background(), models.NewTicket{
		OrganizationID: svc.OrganizationID,
		ServiceID:      svc.ID,
		DepartmentID:   svc.DepartmentID,
		CustomerPhone:  "someone-else",
	})
}

type fakeAnalytics struct {
	rows map[uuid.UUID]*models.ServiceAnalytics
	err  error
}

func (f *fakeAnalytics) ServiceAverage(_ context.Context, serviceID uuid.UUID, _ *uuid.UUID) (*models.ServiceAnalytics, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[serviceID], nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	issued    []string
	positions []int
	cancelled []string
	panics    bool
}

func (n *recordingNotifier) TicketIssued(_ context.Context, t *models.TicketDetails, position int) {
	if n.panics {
		panic("notifier exploded")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.issued = append(n.issued, t.TicketNumber)
	n.positions = append(n.positions, position)
}

func (n *recordingNotifier) TicketCancelled(_ context.Context, t *models.TicketDetails) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, t.TicketNumber)
}

// world is a seeded organization with an engine wired to in-memory fakes.
type world struct {
	engine    *conversation.Engine
	convs     *memConversations
	dir       *memDirectory
	tickets   *memTickets
	analytics *fakeAnalytics
	notifier  *recordingNotifier

	org      models.Organization
	branches []models.Branch
	depts    []models.Department
	services []models.Service
}

const customerPhone = "2348012345678"

// newWorld seeds two branches (BranchA, BranchB); BranchA has three
// departments and its first department has two services.
func newWorld() *world {
	w := &world{
		convs:     &memConversations{},
		dir:       newMemDirectory(),
		analytics: &fakeAnalytics{rows: map[uuid.UUID]*models.ServiceAnalytics{}},
		notifier:  &recordingNotifier{},
	}
	w.tickets = newMemTickets(w.dir)

	w.org = models.Organization{BaseModel: models.BaseModel{ID: uuid.New()}, Name: "Acme Bank"}
	w.dir.orgs[w.org.ID] = w.org

	for _, name := range []string{"BranchA", "BranchB"} {
		b := models.Branch{BaseModel: models.BaseModel{ID: uuid.New()}, OrganizationID: w.org.ID, Name: name, IsActive: true}
		w.branches = append(w.branches, b)
	}
	for _, name := range []string{"Cards", "Freight", "Loans"} {
		d := models.Department{BaseModel: models.BaseModel{ID: uuid.New()}, OrganizationID: w.org.ID, BranchID: w.branches[0].ID, Name: name, IsActive: true}
		w.depts = append(w.depts, d)
	}
	for _, s := range []struct {
		name    string
		minutes int
	}{{"Banking", 5}, {"Freight", 10}} {
		svc := models.Service{
			BaseModel:                models.BaseModel{ID: uuid.New()},
			OrganizationID:           w.org.ID,
			DepartmentID:             w.depts[0].ID,
			Name:                     s.name,
			EstimatedDurationMinutes: s.minutes,
			IsActive:                 true,
		}
		w.services = append(w.services, svc)
	}

	w.dir.branches = w.branches
	w.dir.depts = w.depts
	w.dir.services = w.services

	w.engine = &conversation.Engine{
		Conversations: w.convs,
		Directory:     w.dir,
		Tickets:       w.tickets,
		Analytics:     w.analytics,
		Templates:     templates.NewResolver(nil, nil, 0, testutil.NopLogger()),
		Notifier:      w.notifier,
		Log:           testutil.NopLogger(),
	}
	return w
}

func (w *world) send(body string) string {
	return w.engine.ProcessMessage(context.Background(), customerPhone, body, w.org.ID, conversation.QRContext{})
}

func (w *world) sendQR(body string, qr conversation.QRContext) string {
	return w.engine.ProcessMessage(context.Background(), customerPhone, body, w.org.ID, qr)
}

func (w *world) latest() *models.Conversation {
	c, _ := w.convs.Latest(context.Background(), customerPhone, w.org.ID)
	return c
}

func (w *world) state() models.ConversationState {
	if c := w.latest(); c != nil {
		return c.ConversationState
	}
	return ""
}

package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/queue"
	"github.com/shridarpatil/queuebot/pkg/whatsapp"
)

// MockSentMessage records a message sent through the mock WhatsApp client.
type MockSentMessage struct {
	PhoneNumber string
	Content     string
	Account     *whatsapp.Account
	MessageID   string
}

// MockWhatsAppClient is a mock implementation of WhatsApp client operations.
type MockWhatsAppClient struct {
	mu sync.Mutex

	// Recorded calls
	SentMessages []MockSentMessage

	// Configurable behavior
	SendTextMessageFunc func(ctx context.Context, account *whatsapp.Account, phone, text string) (string, error)

	// Error to return (if set, overrides function)
	Error error
}

// NewMockWhatsAppClient creates a new mock WhatsApp client.
func NewMockWhatsAppClient() *MockWhatsAppClient {
	return &MockWhatsAppClient{
		SentMessages: make([]MockSentMessage, 0),
	}
}

// SendTextMessage mocks sending a text message.
func (m *MockWhatsAppClient) SendTextMessage(ctx context.Context, account *whatsapp.Account, phone, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Error != nil {
		return "", m.Error
	}

	msgID := "mock-" + uuid.New().String()[:8]
	acc := *account
	m.SentMessages = append(m.SentMessages, MockSentMessage{
		PhoneNumber: phone,
		Content:     text,
		Account:     &acc,
		MessageID:   msgID,
	})

	if m.SendTextMessageFunc != nil {
		return m.SendTextMessageFunc(ctx, account, phone, text)
	}
	return msgID, nil
}

// MessageCount returns the number of messages sent.
func (m *MockWhatsAppClient) MessageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SentMessages)
}

// GetMessagesSentTo returns all messages sent to a specific phone number.
func (m *MockWhatsAppClient) GetMessagesSentTo(phone string) []MockSentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var messages []MockSentMessage
	for _, msg := range m.SentMessages {
		if msg.PhoneNumber == phone {
			messages = append(messages, msg)
		}
	}
	return messages
}

// MockQueue is a mock notification queue.
type MockQueue struct {
	mu   sync.Mutex
	Jobs []*queue.Job

	// Error to return
	Error error
}

// NewMockQueue creates a new mock queue.
func NewMockQueue() *MockQueue {
	return &MockQueue{
		Jobs: make([]*queue.Job, 0),
	}
}

// Enqueue mocks enqueueing a job.
func (m *MockQueue) Enqueue(_ context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Error != nil {
		return m.Error
	}
	m.Jobs = append(m.Jobs, job)
	return nil
}

// GetJobs returns a copy of all jobs in the queue.
func (m *MockQueue) GetJobs() []*queue.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]*queue.Job, len(m.Jobs))
	copy(jobs, m.Jobs)
	return jobs
}

// MockEventPublisher records published ticket events.
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []*queue.TicketEvent
	Error  error
}

// PublishTicketEvent records event.
func (m *MockEventPublisher) PublishTicketEvent(_ context.Context, event *queue.TicketEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Error != nil {
		return m.Error
	}
	m.Events = append(m.Events, event)
	return nil
}

// EventTypes returns the types of the recorded events in order.
func (m *MockEventPublisher) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.Events))
	for i, e := range m.Events {
		types[i] = e.Type
	}
	return types
}

package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zerodha/logf"
)

const (
	// DefaultTimeout for HTTP requests
	DefaultTimeout = 10 * time.Second
	// DefaultBaseURL of the chat provider API
	DefaultBaseURL = "https://api.ultramsg.com"
	// DefaultPriority of outbound chat messages
	DefaultPriority = 10
)

// Account holds the provider credentials of one business number
type Account struct {
	BaseURL    string
	InstanceID string
	Token      string
	Priority   int
}

// Override returns a copy of a with the non-empty credentials replaced.
func (a Account) Override(instanceID, token string) Account {
	if instanceID != "" {
		a.InstanceID = instanceID
	}
	if token != "" {
		a.Token = token
	}
	return a
}

// Client is the chat provider client
type Client struct {
	HTTPClient *http.Client
	Log        logf.Logger
}

// New creates a new WhatsApp client
func New(log logf.Logger) *Client {
	return &Client{
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		Log: log,
	}
}

// NewWithTimeout creates a new WhatsApp client with custom timeout
func NewWithTimeout(log logf.Logger, timeout time.Duration) *Client {
	return &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		Log: log,
	}
}

// SendResponse is the provider's reply to a chat send
type SendResponse struct {
	Sent    Bool            `json:"sent"`
	Message string          `json:"message"`
	ID      json.RawMessage `json:"id"`
	Error   json.RawMessage `json:"error"`
}

// MessageID returns the provider message id as a string.
func (r *SendResponse) MessageID() string {
	return strings.Trim(string(r.ID), `"`)
}

// Bool accepts both true and "true"; the provider has used both.
type Bool bool

func (b *Bool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.ToLower(string(data)), `"`)
	switch s {
	case "true", "1":
		*b = true
	default:
		*b = false
	}
	return nil
}

// SendTextMessage posts a chat message and returns the provider message id.
// A response without sent=true is an error.
func (c *Client) SendTextMessage(ctx context.Context, account *Account, to, body string) (string, error) {
	priority := account.Priority
	if priority == 0 {
		priority = DefaultPriority
	}

	form := url.Values{}
	form.Set("token", account.Token)
	form.Set("to", to)
	form.Set("body", body)
	form.Set("priority", strconv.Itoa(priority))

	respBody, err := c.doRequest(ctx, c.buildChatURL(account), form)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	var resp SendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse send response: %w", err)
	}

	if !resp.Sent {
		reason := resp.Message
		if len(resp.Error) > 0 {
			reason = string(resp.Error)
		}
		return "", fmt.Errorf("message not sent: %s", reason)
	}

	c.Log.Debug("Message sent", "to", to, "message_id", resp.MessageID())
	return resp.MessageID(), nil
}

// doRequest posts a form to the provider
func (c *Client) doRequest(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// buildChatURL builds the chat-send endpoint URL
func (c *Client) buildChatURL(account *Account) string {
	base := account.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/%s/messages/chat", strings.TrimRight(base, "/"), account.InstanceID)
}

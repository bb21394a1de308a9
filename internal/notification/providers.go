package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/harborhealth/platform/internal/shared/config"
	"github.com/harborhealth/platform/internal/shared/errors"
)

// EmailProvider delivers email notifications
type EmailProvider interface {
	Send(ctx context.Context, notification *Notification) error
	GetDeliveryStatus(ctx context.Context, notificationID string) (*DeliveryReceipt, error)
}

// FaxProvider delivers fax notifications
type FaxProvider interface {
	Send(ctx context.Context, notification *Notification) error
	GetDeliveryStatus(ctx context.Context, notificationID string) (*DeliveryReceipt, error)
}

// --- SendGrid ---

// SendGridProvider sends email through the SendGrid v3 mail API
type SendGridProvider struct {
	baseURL     string
	apiKey      string
	fromAddress string
	fromName    string
	client      *http.Client
}

// NewSendGridProvider creates a SendGrid email provider
func NewSendGridProvider(cfg config.EmailConfig) *SendGridProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}
	return &SendGridProvider{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridRequest struct {
	Personalizations []struct {
		To []sendGridAddress `json:"to"`
	} `json:"personalizations"`
	From    sendGridAddress `json:"from"`
	Subject string          `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

// Send delivers one email
func (p *SendGridProvider) Send(ctx context.Context, notification *Notification) error {
	if notification.Email == "" {
		return errors.BadRequest("no email address provided")
	}

	payload := sendGridRequest{
		From:    sendGridAddress{Email: p.fromAddress, Name: p.fromName},
		Subject: notification.Subject,
	}
	payload.Personalizations = []struct {
		To []sendGridAddress `json:"to"`
	}{
		{To: []sendGridAddress{{Email: notification.Email, Name: notification.RecipientName}}},
	}
	payload.Content = []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{
		{Type: "text/plain", Value: notification.Body},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal email payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build email request")
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Unavailable("email provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Unavailable(fmt.Sprintf("email provider returned %d: %s", resp.StatusCode, respBody))
	}

	return nil
}

// GetDeliveryStatus is not exposed by the mail send API; accepted means sent
func (p *SendGridProvider) GetDeliveryStatus(ctx context.Context, notificationID string) (*DeliveryReceipt, error) {
	return &DeliveryReceipt{
		NotificationID: notificationID,
		Status:         StatusSent,
		Timestamp:      time.Now(),
		Provider:       "sendgrid",
	}, nil
}

// --- eFax ---

// EFaxProvider sends faxes through an eFax-style HTTP gateway
type EFaxProvider struct {
	baseURL  string
	apiKey   string
	fromName string
	client   *http.Client
}

// NewEFaxProvider creates an eFax provider
func NewEFaxProvider(cfg config.FaxConfig) *EFaxProvider {
	return &EFaxProvider{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		fromName: cfg.FromName,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type efaxRequest struct {
	To          string `json:"to"`
	From        string `json:"from"`
	Subject     string `json:"subject"`
	CoverText   string `json:"cover_text,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
}

type efaxResponse struct {
	FaxID  string `json:"fax_id"`
	Status string `json:"status"`
}

// Send transmits one fax
func (p *EFaxProvider) Send(ctx context.Context, notification *Notification) error {
	if notification.FaxNumber == "" {
		return errors.BadRequest("no fax number provided")
	}

	payload := efaxRequest{
		To:          notification.FaxNumber,
		From:        p.fromName,
		Subject:     notification.Subject,
		CoverText:   notification.Body,
		DocumentURL: notification.DocumentURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal fax payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/faxes", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build fax request")
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Unavailable("fax provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Unavailable(fmt.Sprintf("fax provider returned %d: %s", resp.StatusCode, respBody))
	}

	var faxResp efaxResponse
	if err := json.NewDecoder(resp.Body).Decode(&faxResp); err == nil && faxResp.FaxID != "" {
		if notification.Data == nil {
			notification.Data = map[string]any{}
		}
		notification.Data["fax_id"] = faxResp.FaxID
	}

	return nil
}

// GetDeliveryStatus polls the gateway for fax delivery state
func (p *EFaxProvider) GetDeliveryStatus(ctx context.Context, notificationID string) (*DeliveryReceipt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/faxes/"+notificationID, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build fax status request")
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Unavailable("fax provider unreachable")
	}
	defer resp.Body.Close()

	var faxResp efaxResponse
	if err := json.NewDecoder(resp.Body).Decode(&faxResp); err != nil {
		return nil, errors.Wrap(err, "failed to decode fax status")
	}

	status := StatusSent
	switch faxResp.Status {
	case "delivered":
		status = StatusDelivered
	case "failed":
		status = StatusFailed
	}

	return &DeliveryReceipt{
		NotificationID: notificationID,
		Status:         status,
		Timestamp:      time.Now(),
		Provider:       "efax",
		ProviderRef:    faxResp.FaxID,
	}, nil
}

// --- Mocks ---

// MockEmailProvider is a mock email provider for testing
type MockEmailProvider struct {
	mu         sync.RWMutex
	sent       map[string]*Notification
	failOnSend bool
	sendDelay  time.Duration
}

// NewMockEmailProvider creates a new mock email provider
func NewMockEmailProvider() *MockEmailProvider {
	return &MockEmailProvider{sent: make(map[string]*Notification)}
}

// Send records the notification in memory
func (p *MockEmailProvider) Send(ctx context.Context, notification *Notification) error {
	if p.sendDelay > 0 {
		time.Sleep(p.sendDelay)
	}
	if p.failOnSend {
		return fmt.Errorf("mock send failure")
	}
	if notification.Email == "" {
		return fmt.Errorf("no email address provided")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent[notification.ID] = notification

	return nil
}

// GetDeliveryStatus returns delivery status (mock)
func (p *MockEmailProvider) GetDeliveryStatus(ctx context.Context, notificationID string) (*DeliveryReceipt, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.sent[notificationID]; ok {
		return &DeliveryReceipt{
			NotificationID: notificationID,
			Status:         StatusDelivered,
			Timestamp:      time.Now(),
			Provider:       "mock_email",
		}, nil
	}

	return nil, fmt.Errorf("notification not found")
}

// SetFailOnSend sets whether Send should fail
func (p *MockEmailProvider) SetFailOnSend(fail bool) {
	p.failOnSend = fail
}

// GetSentNotifications returns all sent notifications
func (p *MockEmailProvider) GetSentNotifications() []*Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*Notification, 0, len(p.sent))
	for _, n := range p.sent {
		result = append(result, n)
	}
	return result
}

// MockFaxProvider is a mock fax provider for testing
type MockFaxProvider struct {
	mu         sync.RWMutex
	sent       map[string]*Notification
	failOnSend bool
}

// NewMockFaxProvider creates a new mock fax provider
func NewMockFaxProvider() *MockFaxProvider {
	return &MockFaxProvider{sent: make(map[string]*Notification)}
}

// Send records the notification in memory
func (p *MockFaxProvider) Send(ctx context.Context, notification *Notification) error {
	if p.failOnSend {
		return fmt.Errorf("mock send failure")
	}
	if notification.FaxNumber == "" {
		return fmt.Errorf("no fax number provided")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent[notification.ID] = notification

	return nil
}

// GetDeliveryStatus returns delivery status (mock)
func (p *MockFaxProvider) GetDeliveryStatus(ctx context.Context, notificationID string) (*DeliveryReceipt, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.sent[notificationID]; ok {
		return &DeliveryReceipt{
			NotificationID: notificationID,
			Status:         StatusDelivered,
			Timestamp:      time.Now(),
			Provider:       "mock_fax",
		}, nil
	}

	return nil, fmt.Errorf("notification not found")
}

// SetFailOnSend sets whether Send should fail
func (p *MockFaxProvider) SetFailOnSend(fail bool) {
	p.failOnSend = fail
}

// GetSentNotifications returns all sent notifications
func (p *MockFaxProvider) GetSentNotifications() []*Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*Notification, 0, len(p.sent))
	for _, n := range p.sent {
		result = append(result, n)
	}
	return result
}

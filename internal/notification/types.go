package notification

import (
	"fmt"
	"time"
)

// NotificationType defines the delivery channel
type NotificationType string

const (
	NotificationTypeEmail NotificationType = "email"
	NotificationTypeFax   NotificationType = "fax"
)

// NotificationPriority defines urgency
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// NotificationStatus defines delivery state
type NotificationStatus string

const (
	StatusPending   NotificationStatus = "pending"
	StatusSent      NotificationStatus = "sent"
	StatusDelivered NotificationStatus = "delivered"
	StatusFailed    NotificationStatus = "failed"
)

// Notification is one outbound message
type Notification struct {
	ID       string               `json:"id"`
	Type     NotificationType     `json:"type"`
	Priority NotificationPriority `json:"priority"`
	Status   NotificationStatus   `json:"status"`

	RecipientID   string `json:"recipient_id"`
	RecipientName string `json:"recipient_name,omitempty"`
	Email         string `json:"email,omitempty"`
	FaxNumber     string `json:"fax_number,omitempty"`

	Subject string         `json:"subject"`
	Body    string         `json:"body"`
	Data    map[string]any `json:"data,omitempty"`

	// Fax payloads carry a document reference instead of inline body
	DocumentURL string `json:"document_url,omitempty"`

	EventID      string     `json:"event_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
	LastRetryAt  *time.Time `json:"last_retry_at,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeliveryReceipt reports provider-side delivery state
type DeliveryReceipt struct {
	NotificationID string             `json:"notification_id"`
	Status         NotificationStatus `json:"status"`
	Timestamp      time.Time          `json:"timestamp"`
	Provider       string             `json:"provider"`
	ProviderRef    string             `json:"provider_ref,omitempty"`
}

// Stats aggregates delivery outcomes
type Stats struct {
	TotalSent      int64                          `json:"total_sent"`
	TotalDelivered int64                          `json:"total_delivered"`
	TotalFailed    int64                          `json:"total_failed"`
	ByType         map[NotificationType]int64     `json:"by_type,omitempty"`
	ByPriority     map[NotificationPriority]int64 `json:"by_priority,omitempty"`
	DeliveryRate   float64                        `json:"delivery_rate"`
}

func generateNotificationID() string {
	return fmt.Sprintf("ntf-%d", time.Now().UnixNano())
}

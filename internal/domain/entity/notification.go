package entity

import "time"

// Notification is one alert queued for a recipient
type Notification struct {
	ID           int64      `json:"id"`
	RecipientID  int64      `json:"recipient_id"`
	Kind         string     `json:"kind"`
	Reference    string     `json:"reference"`
	Subject      string     `json:"subject"`
	Body         string     `json:"body"`
	Status       string     `json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Notification kinds
const (
	NotificationKindThresholdExceeded = "THRESHOLD_EXCEEDED"
)

// Notification status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

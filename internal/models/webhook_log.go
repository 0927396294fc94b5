package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookLog records every delivered provider callback, whether or not it
// matched a registration. Kept for forensics and manual reconciliation.
type WebhookLog struct {
	ID            int64           `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	WebhookType   string          `json:"webhook_type"`
	Email         string          `json:"email"`
	MailchimpID   string          `json:"mailchimp_id"`
	EventData     json.RawMessage `json:"event_data"`
	Processed     bool            `json:"processed"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
}

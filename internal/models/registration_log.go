package models

import (
	"encoding/json"
	"time"
)

// LogSource identifies which actor produced a registration audit entry.
type LogSource string

const (
	LogSourceMailchimp          LogSource = "mailchimp"
	LogSourceMailchimpError     LogSource = "mailchimp_error"
	LogSourceMailchimpException LogSource = "mailchimp_exception"
	LogSourceMailchimpWebhook   LogSource = "mailchimp_webhook"
	LogSourceManual             LogSource = "manual"
)

// RegistrationLog is an append-only audit entry for a registration state
// change or sync outcome. Rows are never updated or deleted.
type RegistrationLog struct {
	ID             int64               `json:"id"`
	RegistrationID int64               `json:"registration_id"`
	OldStatus      *RegistrationStatus `json:"old_status,omitempty"`
	NewStatus      RegistrationStatus  `json:"new_status"`
	Source         LogSource           `json:"source"`
	Note           string              `json:"note"`
	ProviderEvent  *string             `json:"provider_event,omitempty"`
	ProviderData   json.RawMessage     `json:"provider_data,omitempty"`
	ChangedAt      time.Time           `json:"changed_at"`
}

package models

import "time"

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	RegistrationStatusPending   RegistrationStatus = "pending"
	RegistrationStatusConfirmed RegistrationStatus = "confirmed"
	RegistrationStatusCancelled RegistrationStatus = "cancelled"
	RegistrationStatusBounced   RegistrationStatus = "bounced"
)

// CheckinMode records how an attendee is expected or recorded to attend.
type CheckinMode string

const (
	CheckinNotApplicable CheckinMode = "not-applicable"
	CheckinInPerson      CheckinMode = "in-person"
	CheckinVirtual       CheckinMode = "virtual"
)

// CheckinForEventType derives the default check-in mode at creation time:
// virtual events default to virtual attendance, everything else to
// not-applicable until staff records a presence.
func CheckinForEventType(t EventType) CheckinMode {
	if t == EventTypeVirtual {
		return CheckinVirtual
	}
	return CheckinNotApplicable
}

// MailchimpStatus mirrors the subscriber status reported by the mailing-list
// provider for the registration's email.
type MailchimpStatus string

const (
	MailchimpStatusPending      MailchimpStatus = "pending"
	MailchimpStatusSubscribed   MailchimpStatus = "subscribed"
	MailchimpStatusUnsubscribed MailchimpStatus = "unsubscribed"
	MailchimpStatusCleaned      MailchimpStatus = "cleaned"
)

// Registration joins a User to an Event. At most one non-cancelled
// registration exists per (user, event) pair; the partial unique index on
// the registrations table is the authoritative enforcement.
type Registration struct {
	ID                 int64              `json:"id"`
	UserID             int64              `json:"user_id"`
	EventID            int64              `json:"event_id"`
	RegisteredAt       time.Time          `json:"registered_at"`
	Checkin            CheckinMode        `json:"checkin"`
	Status             RegistrationStatus `json:"status"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
	MailchimpID        *string            `json:"mailchimp_id,omitempty"`
	MailchimpEmailHash *string            `json:"mailchimp_email_hash,omitempty"`
	MailchimpStatus    *MailchimpStatus   `json:"mailchimp_status,omitempty"`
	MailchimpSyncedAt  *time.Time         `json:"mailchimp_synced_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

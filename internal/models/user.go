package models

import "time"

// UserStatus represents the lifecycle state of a registrant.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusDisabled UserStatus = "disabled"
)

// User is the identity of a registrant. Exactly one non-deleted user exists
// per email (case-insensitive); users are soft-deleted, never removed.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         *string    `json:"role,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	Company      string     `json:"company"`
	Note         *string    `json:"note,omitempty"`
	Status       UserStatus `json:"status"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	AnonymizedAt *time.Time `json:"anonymized_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

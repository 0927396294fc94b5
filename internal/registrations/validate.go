package registrations

import (
	"net/mail"
	"regexp"
	"strings"
)

// Submission is one registration attempt, already mapped from whichever
// entry point (JSON or form) received it.
type Submission struct {
	EventID   int64
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Role      string
	Company   string
	Note      string
	Privacy   string // must be affirmatively "on"
}

var phonePattern = regexp.MustCompile(`^[0-9\s+\-()]+$`)

// Normalize trims whitespace from all free-text fields.
func (s *Submission) Normalize() {
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.Email = strings.TrimSpace(s.Email)
	s.Phone = strings.TrimSpace(s.Phone)
	s.Role = strings.TrimSpace(s.Role)
	s.Company = strings.TrimSpace(s.Company)
	s.Note = strings.TrimSpace(s.Note)
}

// Validate checks every field and returns a per-field error map; an empty
// map means the submission is acceptable.
func (s *Submission) Validate() map[string]string {
	fields := make(map[string]string)

	if s.EventID <= 0 {
		fields["evento_id"] = "select a valid event"
	}

	switch {
	case s.FirstName == "":
		fields["nome"] = "first name is required"
	case len(s.FirstName) > 100:
		fields["nome"] = "first name must not exceed 100 characters"
	}

	switch {
	case s.LastName == "":
		fields["cognome"] = "last name is required"
	case len(s.LastName) > 100:
		fields["cognome"] = "last name must not exceed 100 characters"
	}

	switch {
	case s.Email == "":
		fields["email"] = "email is required"
	case len(s.Email) > 255:
		fields["email"] = "email must not exceed 255 characters"
	default:
		if _, err := mail.ParseAddress(s.Email); err != nil {
			fields["email"] = "enter a valid email address"
		}
	}

	if s.Phone != "" {
		switch {
		case len(s.Phone) > 30:
			fields["telefono"] = "phone must not exceed 30 characters"
		case !phonePattern.MatchString(s.Phone):
			fields["telefono"] = "phone may contain only digits, spaces, +, -, (, )"
		}
	}

	if s.Role != "" && len(s.Role) > 100 {
		fields["ruolo"] = "role must not exceed 100 characters"
	}

	switch {
	case s.Company == "":
		fields["azienda"] = "company is required"
	case len(s.Company) > 255:
		fields["azienda"] = "company must not exceed 255 characters"
	}

	if s.Note != "" && len(s.Note) > 500 {
		fields["note"] = "notes must not exceed 500 characters"
	}

	if s.Privacy != "on" {
		fields["privacy"] = "you must accept the personal data policy"
	}

	return fields
}

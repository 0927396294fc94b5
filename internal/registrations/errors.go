package registrations

import (
	"errors"
	"strings"
)

// ErrEventNotEligible means the target event does not exist, has already
// started, or is archived/deleted.
var ErrEventNotEligible = errors.New("event not eligible for registration")

// ErrDuplicateRegistration means a non-cancelled registration already exists
// for this (user, event) pair.
var ErrDuplicateRegistration = errors.New("already registered for this event")

// ValidationError carries a per-field map of messages for a rejected
// submission. Nothing is partially applied when validation fails.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, m := range e.Fields {
		msgs = append(msgs, m)
	}
	return "invalid submission: " + strings.Join(msgs, "; ")
}

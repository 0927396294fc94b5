package registrations

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Tiburon07/adnks/internal/mailchimp"
	"github.com/Tiburon07/adnks/internal/models"
)

// Store is the persistence surface the workflow needs. *Repository is the
// production implementation; tests substitute fakes.
type Store interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	CreateRegistration(ctx context.Context, sub *Submission, checkin models.CheckinMode) (registrationID, userID int64, err error)
	MarkSynced(ctx context.Context, registrationID int64, mailchimpID, emailHash string, status models.MailchimpStatus) error
	AppendLog(ctx context.Context, entry *models.RegistrationLog) error
}

// Directory is the subscriber directory surface used for the best-effort
// sync. *mailchimp.Client is the production implementation.
type Directory interface {
	FindSubscriber(ctx context.Context, email string) (*mailchimp.Subscriber, error)
	UpsertSubscriber(ctx context.Context, email, firstName, lastName string) (*mailchimp.UpsertResult, error)
	Resubscribe(ctx context.Context, email string) (string, error)
	AddTags(ctx context.Context, email string, tags []string) error
}

// Result reports a completed submission. SyncOK tells the caller whether a
// confirmation email can be expected; the registration itself succeeded
// either way.
type Result struct {
	RegistrationID int64
	EventName      string
	SyncOK         bool
	Message        string
}

// Service runs the registration workflow: validate, check eligibility,
// persist transactionally, then synchronize with the subscriber directory
// without ever letting a sync failure undo the registration.
type Service struct {
	store     Store
	directory Directory
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates the registration workflow service.
func NewService(store Store, directory Directory, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, directory: directory, logger: logger, now: time.Now}
}

// SubmitRegistration handles one registration attempt end to end.
//
// Failure semantics: validation and eligibility errors never touch storage;
// a duplicate is detected inside the transaction and rolls back the user
// upsert with it; directory failures after commit are logged as audit rows
// and swallowed.
func (s *Service) SubmitRegistration(ctx context.Context, sub *Submission) (*Result, error) {
	sub.Normalize()
	if fields := sub.Validate(); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	event, err := s.store.GetEvent(ctx, sub.EventID)
	if err != nil {
		return nil, err
	}
	if !event.Eligible(s.now()) {
		return nil, ErrEventNotEligible
	}

	checkin := models.CheckinForEventType(event.Type)
	registrationID, userID, err := s.store.CreateRegistration(ctx, sub, checkin)
	if err != nil {
		return nil, err
	}
	s.logger.Info("registration created",
		zap.Int64("registration_id", registrationID),
		zap.Int64("user_id", userID),
		zap.Int64("event_id", event.ID),
		zap.String("checkin", string(checkin)),
	)

	syncOK := s.syncSubscriber(ctx, registrationID, sub, event)

	msg := fmt.Sprintf("Registration for %q completed, number %d.", event.Name, registrationID)
	if syncOK {
		msg += " Check your inbox and confirm your subscription to activate it."
	} else {
		msg += " The confirmation email could not be sent; contact us if you receive nothing."
	}
	return &Result{
		RegistrationID: registrationID,
		EventName:      event.Name,
		SyncOK:         syncOK,
		Message:        msg,
	}, nil
}

// syncSubscriber drives the best-effort directory sync after the
// registration is committed. Outcomes map to audit sources: success →
// mailchimp, answered-but-refused → mailchimp_error, unreachable/timeout →
// mailchimp_exception. It never returns an error to the caller.
func (s *Service) syncSubscriber(ctx context.Context, registrationID int64, sub *Submission, event *models.Event) bool {
	found, err := s.directory.FindSubscriber(ctx, sub.Email)
	if err != nil {
		s.recordSyncFailure(ctx, registrationID, "directory lookup failed", err)
		return false
	}

	if found.Exists && found.Status == "subscribed" {
		if _, err := s.directory.Resubscribe(ctx, sub.Email); err != nil {
			s.recordSyncFailure(ctx, registrationID, "resubscribe failed", err)
			return false
		}
	}

	upserted, err := s.directory.UpsertSubscriber(ctx, sub.Email, sub.FirstName, sub.LastName)
	if err != nil {
		s.recordSyncFailure(ctx, registrationID, "subscriber upsert failed", err)
		return false
	}

	status := models.MailchimpStatusPending
	if upserted.Status == string(models.MailchimpStatusSubscribed) {
		status = models.MailchimpStatusSubscribed
	}
	if err := s.store.MarkSynced(ctx, registrationID, upserted.ID, upserted.EmailHash, status); err != nil {
		s.logger.Error("recording sync outcome failed", zap.Int64("registration_id", registrationID), zap.Error(err))
	}

	pending := models.RegistrationStatusPending
	entry := &models.RegistrationLog{
		RegistrationID: registrationID,
		NewStatus:      pending,
		Source:         models.LogSourceMailchimp,
		Note:           "subscriber sent to the directory for double opt-in, status " + upserted.Status,
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		s.logger.Error("appending sync log failed", zap.Int64("registration_id", registrationID), zap.Error(err))
	}

	if err := s.directory.AddTags(ctx, sub.Email, eventTags(event)); err != nil {
		// Partial failure: the subscription is in place, only the tag is missing.
		s.logger.Warn("tagging subscriber failed", zap.Int64("registration_id", registrationID), zap.Error(err))
	}
	return true
}

func (s *Service) recordSyncFailure(ctx context.Context, registrationID int64, what string, cause error) {
	source := models.LogSourceMailchimpException
	var apiErr *mailchimp.APIError
	if errors.As(cause, &apiErr) {
		source = models.LogSourceMailchimpError
	}
	s.logger.Warn("directory sync failed",
		zap.Int64("registration_id", registrationID),
		zap.String("source", string(source)),
		zap.Error(cause),
	)
	entry := &models.RegistrationLog{
		RegistrationID: registrationID,
		NewStatus:      models.RegistrationStatusPending,
		Source:         source,
		Note:           what + ": " + cause.Error(),
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		s.logger.Error("appending sync failure log failed", zap.Int64("registration_id", registrationID), zap.Error(err))
	}
}

var tagCleaner = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)

// eventTags builds the directory tags for an event: a slug of the name and
// a year-month bucket of its date.
func eventTags(event *models.Event) []string {
	slug := tagCleaner.ReplaceAllString(event.Name, "")
	slug = strings.Join(strings.Fields(slug), "-")
	return []string{
		"evento-" + strings.ToLower(slug),
		"data-" + event.StartsAt.Format("2006-01"),
	}
}

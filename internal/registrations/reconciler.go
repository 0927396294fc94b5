package registrations

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Tiburon07/adnks/internal/models"
)

// ReconcileOutcome classifies what a provider callback did locally.
type ReconcileOutcome string

const (
	// OutcomeApplied means a pending registration transitioned.
	OutcomeApplied ReconcileOutcome = "applied"
	// OutcomeMetadata means the callback was matched but carried no status
	// change (profile updates).
	OutcomeMetadata ReconcileOutcome = "metadata"
	// OutcomeNoMatch means no pending registration exists for the email;
	// replays and callbacks for settled subscriptions land here.
	OutcomeNoMatch ReconcileOutcome = "no_match"
	// OutcomeIgnored means the event type is not one this system handles.
	OutcomeIgnored ReconcileOutcome = "ignored"
)

// ReconcileResult reports what a callback changed.
type ReconcileResult struct {
	Outcome        ReconcileOutcome           `json:"outcome"`
	RegistrationID int64                      `json:"registration_id,omitempty"`
	OldStatus      models.RegistrationStatus  `json:"old_status,omitempty"`
	NewStatus      models.RegistrationStatus  `json:"new_status,omitempty"`
	Message        string                     `json:"message,omitempty"`
}

// ReconcileStore is the persistence surface the reconciler needs.
type ReconcileStore interface {
	FindLatestPending(ctx context.Context, email string) (*models.Registration, error)
	ApplyTransition(ctx context.Context, registrationID int64, newStatus models.RegistrationStatus, mcStatus models.MailchimpStatus, entry *models.RegistrationLog) error
}

// Reconciler consumes asynchronous delivery-status callbacks from the
// mailing-list provider and settles pending registrations.
//
// Per registration the only state it acts from is pending; confirmed and
// cancelled are terminal from its point of view, so replayed callbacks find
// no pending match and are safely ignored.
type Reconciler struct {
	store  ReconcileStore
	logger *zap.Logger
}

// NewReconciler creates a webhook reconciler.
func NewReconciler(store ReconcileStore, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, logger: logger}
}

// transitionFor maps a provider event type onto the registration state
// machine. statusChange is false for metadata-only events.
func transitionFor(eventType string) (newStatus models.RegistrationStatus, mcStatus models.MailchimpStatus, statusChange, handled bool) {
	switch eventType {
	case "subscribe":
		return models.RegistrationStatusConfirmed, models.MailchimpStatusSubscribed, true, true
	case "unsubscribe":
		return models.RegistrationStatusCancelled, models.MailchimpStatusUnsubscribed, true, true
	case "cleaned":
		return models.RegistrationStatusBounced, models.MailchimpStatusCleaned, true, true
	case "profile":
		return "", "", false, true
	default:
		return "", "", false, false
	}
}

// HandleProviderEvent transitions the most recent pending registration for
// the callback email according to the event type. A missing match is not an
// error: webhooks may arrive for unrelated or already-settled subscriptions.
func (r *Reconciler) HandleProviderEvent(ctx context.Context, eventType, email string, rawPayload json.RawMessage) (*ReconcileResult, error) {
	newStatus, mcStatus, statusChange, handled := transitionFor(eventType)
	if !handled {
		r.logger.Info("provider event ignored", zap.String("type", eventType), zap.String("email", email))
		return &ReconcileResult{Outcome: OutcomeIgnored, Message: "event type " + eventType + " not handled"}, nil
	}

	reg, err := r.store.FindLatestPending(ctx, email)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		r.logger.Info("no pending registration for callback",
			zap.String("type", eventType), zap.String("email", email))
		return &ReconcileResult{Outcome: OutcomeNoMatch, Message: "no matching registration"}, nil
	}

	oldStatus := reg.Status
	outcome := OutcomeApplied
	if !statusChange {
		// Profile update: keep statuses, refresh sync metadata only.
		newStatus = reg.Status
		mcStatus = models.MailchimpStatusPending
		if reg.MailchimpStatus != nil {
			mcStatus = *reg.MailchimpStatus
		}
		outcome = OutcomeMetadata
	}

	providerEvent := eventType
	entry := &models.RegistrationLog{
		RegistrationID: reg.ID,
		OldStatus:      &oldStatus,
		NewStatus:      newStatus,
		Source:         models.LogSourceMailchimpWebhook,
		Note:           fmt.Sprintf("webhook %s received for %s", eventType, email),
		ProviderEvent:  &providerEvent,
		ProviderData:   rawPayload,
	}
	if err := r.store.ApplyTransition(ctx, reg.ID, newStatus, mcStatus, entry); err != nil {
		return nil, err
	}

	r.logger.Info("registration reconciled",
		zap.Int64("registration_id", reg.ID),
		zap.String("old_status", string(oldStatus)),
		zap.String("new_status", string(newStatus)),
		zap.String("type", eventType),
	)
	return &ReconcileResult{
		Outcome:        outcome,
		RegistrationID: reg.ID,
		OldStatus:      oldStatus,
		NewStatus:      newStatus,
		Message:        fmt.Sprintf("registration moved from %s to %s", oldStatus, newStatus),
	}, nil
}

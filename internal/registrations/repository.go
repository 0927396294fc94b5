package registrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tiburon07/adnks/internal/models"
)

const uniqueViolation = "23505"

// Repository handles registration, user, and audit-log persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetEvent returns the event by id, or ErrEventNotEligible when no such
// event exists.
func (r *Repository) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	const q = `SELECT id, name, starts_at, category, event_type, archived_at, deleted_at, created_at, updated_at
		FROM events WHERE id = $1`
	var ev models.Event
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&ev.ID, &ev.Name, &ev.StartsAt, &ev.Category, &ev.Type,
		&ev.ArchivedAt, &ev.DeletedAt, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotEligible
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &ev, nil
}

// CreateRegistration performs the transactional write path of one
// submission: upsert the user by email (last write wins, status forced to
// active), check the one-active-registration-per-event invariant, and insert
// the pending registration. Everything rolls back together; a rejected
// submission leaves no trace. The partial unique index backs the duplicate
// check under concurrent submissions.
func (r *Repository) CreateRegistration(ctx context.Context, sub *Submission, checkin models.CheckinMode) (registrationID, userID int64, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	userID, err = upsertUser(ctx, tx, sub)
	if err != nil {
		return 0, 0, err
	}

	var exists bool
	const dupQ = `SELECT EXISTS (
		SELECT 1 FROM registrations WHERE user_id = $1 AND event_id = $2 AND status <> 'cancelled')`
	if err = tx.QueryRow(ctx, dupQ, userID, sub.EventID).Scan(&exists); err != nil {
		return 0, 0, fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		return 0, 0, ErrDuplicateRegistration
	}

	const insQ = `INSERT INTO registrations (user_id, event_id, registered_at, checkin, status, mailchimp_status)
		VALUES ($1, $2, NOW(), $3, 'pending', 'pending')
		RETURNING id`
	if err = tx.QueryRow(ctx, insQ, userID, sub.EventID, checkin).Scan(&registrationID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// Lost the race against a concurrent submission; the index is
			// the authoritative guard.
			return 0, 0, ErrDuplicateRegistration
		}
		return 0, 0, fmt.Errorf("insert registration: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}
	return registrationID, userID, nil
}

func upsertUser(ctx context.Context, tx pgx.Tx, sub *Submission) (int64, error) {
	var id int64
	const findQ = `SELECT id FROM users WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL FOR UPDATE`
	err := tx.QueryRow(ctx, findQ, sub.Email).Scan(&id)
	switch {
	case err == nil:
		const updQ = `UPDATE users SET
				first_name = $1, last_name = $2, role = $3, phone = $4,
				note = $5, company = $6, status = 'active', updated_at = NOW()
			WHERE id = $7`
		_, err = tx.Exec(ctx, updQ,
			sub.FirstName, sub.LastName, nullable(sub.Role), nullable(sub.Phone),
			nullable(sub.Note), sub.Company, id)
		if err != nil {
			return 0, fmt.Errorf("update user: %w", err)
		}
		return id, nil
	case errors.Is(err, pgx.ErrNoRows):
		const insQ = `INSERT INTO users (email, first_name, last_name, role, phone, note, company, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
			RETURNING id`
		err = tx.QueryRow(ctx, insQ,
			strings.ToLower(sub.Email), sub.FirstName, sub.LastName,
			nullable(sub.Role), nullable(sub.Phone), nullable(sub.Note), sub.Company).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert user: %w", err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("find user: %w", err)
	}
}

// MarkSynced records a successful directory sync on the registration.
func (r *Repository) MarkSynced(ctx context.Context, registrationID int64, mailchimpID, emailHash string, status models.MailchimpStatus) error {
	const q = `UPDATE registrations SET
			mailchimp_id = $1, mailchimp_email_hash = $2, mailchimp_status = $3,
			mailchimp_synced_at = NOW(), updated_at = NOW()
		WHERE id = $4`
	if _, err := r.pool.Exec(ctx, q, mailchimpID, emailHash, status, registrationID); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// AppendLog inserts an append-only audit row.
func (r *Repository) AppendLog(ctx context.Context, entry *models.RegistrationLog) error {
	const q = `INSERT INTO registration_logs
			(registration_id, old_status, new_status, source, note, provider_event, provider_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, q,
		entry.RegistrationID, entry.OldStatus, entry.NewStatus, entry.Source,
		entry.Note, entry.ProviderEvent, entry.ProviderData)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// FindLatestPending returns the most recent registration still pending on
// both sides (local status and directory status) for a non-deleted user
// with this email, or nil when none matches.
func (r *Repository) FindLatestPending(ctx context.Context, email string) (*models.Registration, error) {
	const q = `SELECT reg.id, reg.user_id, reg.event_id, reg.registered_at, reg.checkin, reg.status,
			reg.cancelled_at, reg.mailchimp_id, reg.mailchimp_email_hash, reg.mailchimp_status,
			reg.mailchimp_synced_at, reg.created_at, reg.updated_at
		FROM registrations reg
		JOIN users u ON u.id = reg.user_id
		WHERE LOWER(u.email) = LOWER($1)
		  AND u.deleted_at IS NULL
		  AND reg.status = 'pending'
		  AND reg.mailchimp_status = 'pending'
		ORDER BY reg.created_at DESC
		LIMIT 1`
	var reg models.Registration
	err := r.pool.QueryRow(ctx, q, email).Scan(
		&reg.ID, &reg.UserID, &reg.EventID, &reg.RegisteredAt, &reg.Checkin, &reg.Status,
		&reg.CancelledAt, &reg.MailchimpID, &reg.MailchimpEmailHash, &reg.MailchimpStatus,
		&reg.MailchimpSyncedAt, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest pending: %w", err)
	}
	return &reg, nil
}

// ApplyTransition writes the reconciled status plus its audit row in one
// transaction, so a crash never leaves a transition without its log entry.
func (r *Repository) ApplyTransition(ctx context.Context, registrationID int64, newStatus models.RegistrationStatus, mcStatus models.MailchimpStatus, entry *models.RegistrationLog) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	updQ := `UPDATE registrations SET
			status = $1, mailchimp_status = $2, mailchimp_synced_at = NOW(), updated_at = NOW()
		WHERE id = $3`
	if newStatus == models.RegistrationStatusCancelled {
		updQ = `UPDATE registrations SET
				status = $1, mailchimp_status = $2, mailchimp_synced_at = NOW(),
				cancelled_at = NOW(), updated_at = NOW()
			WHERE id = $3`
	}
	if _, err = tx.Exec(ctx, updQ, newStatus, mcStatus, registrationID); err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}

	const logQ = `INSERT INTO registration_logs
			(registration_id, old_status, new_status, source, note, provider_event, provider_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = tx.Exec(ctx, logQ,
		entry.RegistrationID, entry.OldStatus, entry.NewStatus, entry.Source,
		entry.Note, entry.ProviderEvent, entry.ProviderData)
	if err != nil {
		return fmt.Errorf("append transition log: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// InsertWebhookLog records a delivered provider callback before processing.
func (r *Repository) InsertWebhookLog(ctx context.Context, entry *models.WebhookLog) (int64, error) {
	const q = `INSERT INTO webhook_logs (correlation_id, webhook_type, email, mailchimp_id, event_data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	var id int64
	err := r.pool.QueryRow(ctx, q,
		entry.CorrelationID, entry.WebhookType, entry.Email, entry.MailchimpID, entry.EventData).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert webhook log: %w", err)
	}
	return id, nil
}

// MarkWebhookProcessed flags a webhook log row as handled.
func (r *Repository) MarkWebhookProcessed(ctx context.Context, id int64) error {
	const q = `UPDATE webhook_logs SET processed = TRUE, processed_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	return nil
}

// MarkWebhookError records a processing failure on a webhook log row.
func (r *Repository) MarkWebhookError(ctx context.Context, id int64, msg string) error {
	const q = `UPDATE webhook_logs SET error_message = $1 WHERE id = $2`
	if _, err := r.pool.Exec(ctx, q, msg, id); err != nil {
		return fmt.Errorf("mark webhook error: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

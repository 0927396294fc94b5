package checkins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tiburon07/adnks/internal/models"
)

// ErrNotFound marks a missing event, user, or registration.
var ErrNotFound = errors.New("not found")

// ErrNotConfirmed rejects recording a presence on a registration that has
// not completed its double opt-in yet.
var ErrNotConfirmed = errors.New("registration not confirmed")

// Row is one attendee line for the door list.
type Row struct {
	RegistrationID  int64                      `json:"registrationId"`
	UserID          int64                      `json:"userId"`
	FirstName       string                     `json:"nome"`
	LastName        string                     `json:"cognome"`
	Email           string                     `json:"email"`
	Company         string                     `json:"azienda"`
	Role            *string                    `json:"ruolo,omitempty"`
	Checkin         models.CheckinMode         `json:"checkin"`
	Status          models.RegistrationStatus  `json:"status"`
	RegisteredAt    string                     `json:"dataIscrizione"`
	MailchimpStatus *models.MailchimpStatus    `json:"mailchimpStatus,omitempty"`
}

// Aggregates summarizes the list for the event, ignoring pagination.
type Aggregates struct {
	ByStatus  map[string]int `json:"byStatus"`
	ByCheckin map[string]int `json:"byCheckin"`
}

// ListParams filters and paginates the door list.
type ListParams struct {
	EventID  int64
	Statuses []string
	Checkin  string
	Search   string
	Sort     string
	Page     int
	PerPage  int
}

var sortColumns = map[string]string{
	"cognome_asc":         "u.last_name ASC, u.first_name ASC",
	"cognome_desc":        "u.last_name DESC, u.first_name DESC",
	"dataiscrizione_asc":  "reg.registered_at ASC",
	"dataiscrizione_desc": "reg.registered_at DESC",
}

// Repository reads and updates check-in state.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a checkins repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EventExists reports whether the event id is known (archived and past
// events still have door lists).
func (r *Repository) EventExists(ctx context.Context, eventID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("event exists: %w", err)
	}
	return exists, nil
}

// List returns the filtered, sorted page of attendees plus the total count.
func (r *Repository) List(ctx context.Context, p ListParams) ([]Row, int, error) {
	where := []string{"reg.event_id = $1"}
	args := []interface{}{p.EventID}

	if len(p.Statuses) > 0 {
		args = append(args, p.Statuses)
		where = append(where, fmt.Sprintf("reg.status = ANY($%d)", len(args)))
	}
	if p.Checkin != "" {
		args = append(args, p.Checkin)
		where = append(where, fmt.Sprintf("reg.checkin = $%d", len(args)))
	}
	if p.Search != "" {
		args = append(args, "%"+p.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(u.first_name ILIKE $%d OR u.last_name ILIKE $%d OR u.company ILIKE $%d OR u.email ILIKE $%d)",
			n, n, n, n))
	}

	cond := strings.Join(where, " AND ")

	var total int
	countQ := `SELECT COUNT(*) FROM registrations reg JOIN users u ON u.id = reg.user_id WHERE ` + cond
	if err := r.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count checkins: %w", err)
	}

	order, ok := sortColumns[p.Sort]
	if !ok {
		order = sortColumns["cognome_asc"]
	}
	args = append(args, p.PerPage, (p.Page-1)*p.PerPage)
	listQ := fmt.Sprintf(`SELECT reg.id, u.id, u.first_name, u.last_name, u.email, u.company, u.role,
			reg.checkin, reg.status, TO_CHAR(reg.registered_at, 'YYYY-MM-DD"T"HH24:MI:SSOF'), reg.mailchimp_status
		FROM registrations reg
		JOIN users u ON u.id = reg.user_id
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`, cond, order, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, listQ, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list checkins: %w", err)
	}
	defer rows.Close()

	var list []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(
			&row.RegistrationID, &row.UserID, &row.FirstName, &row.LastName, &row.Email,
			&row.Company, &row.Role, &row.Checkin, &row.Status, &row.RegisteredAt,
			&row.MailchimpStatus,
		); err != nil {
			return nil, 0, fmt.Errorf("scan checkin row: %w", err)
		}
		list = append(list, row)
	}
	return list, total, rows.Err()
}

// Aggregate returns per-status and per-checkin counts for the whole event.
func (r *Repository) Aggregate(ctx context.Context, eventID int64) (*Aggregates, error) {
	agg := &Aggregates{ByStatus: map[string]int{}, ByCheckin: map[string]int{}}

	rows, err := r.pool.Query(ctx,
		`SELECT status, checkin, COUNT(*) FROM registrations WHERE event_id = $1 GROUP BY status, checkin`, eventID)
	if err != nil {
		return nil, fmt.Errorf("aggregate checkins: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, checkin string
		var n int
		if err := rows.Scan(&status, &checkin, &n); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		agg.ByStatus[status] += n
		agg.ByCheckin[checkin] += n
	}
	return agg, rows.Err()
}

// UpdateCheckin records an attendee's presence and refreshes their role.
// The registration must belong to the user; a presence (in-person/virtual)
// may only be recorded on a confirmed registration. The change and its
// audit row commit together.
func (r *Repository) UpdateCheckin(ctx context.Context, registrationID, userID int64, checkin models.CheckinMode, role string) (*Row, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var status models.RegistrationStatus
	var oldCheckin models.CheckinMode
	const findQ = `SELECT status, checkin FROM registrations WHERE id = $1 AND user_id = $2 FOR UPDATE`
	err = tx.QueryRow(ctx, findQ, registrationID, userID).Scan(&status, &oldCheckin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find registration: %w", err)
	}

	if checkin != models.CheckinNotApplicable && status != models.RegistrationStatusConfirmed {
		return nil, ErrNotConfirmed
	}

	if _, err = tx.Exec(ctx,
		`UPDATE registrations SET checkin = $1, updated_at = NOW() WHERE id = $2`,
		checkin, registrationID); err != nil {
		return nil, fmt.Errorf("update checkin: %w", err)
	}
	// The role column is nullable; never write an empty string into it.
	var rolePtr *string
	if role != "" {
		rolePtr = &role
	}
	if _, err = tx.Exec(ctx,
		`UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2`,
		rolePtr, userID); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}

	note := fmt.Sprintf("checkin changed from %s to %s by staff", oldCheckin, checkin)
	if _, err = tx.Exec(ctx,
		`INSERT INTO registration_logs (registration_id, old_status, new_status, source, note)
		 VALUES ($1, $2, $2, 'manual', $3)`,
		registrationID, status, note); err != nil {
		return nil, fmt.Errorf("append checkin log: %w", err)
	}

	var row Row
	const selQ = `SELECT reg.id, u.id, u.first_name, u.last_name, u.email, u.company, u.role,
			reg.checkin, reg.status, TO_CHAR(reg.registered_at, 'YYYY-MM-DD"T"HH24:MI:SSOF'), reg.mailchimp_status
		FROM registrations reg JOIN users u ON u.id = reg.user_id
		WHERE reg.id = $1`
	if err = tx.QueryRow(ctx, selQ, registrationID).Scan(
		&row.RegistrationID, &row.UserID, &row.FirstName, &row.LastName, &row.Email,
		&row.Company, &row.Role, &row.Checkin, &row.Status, &row.RegisteredAt,
		&row.MailchimpStatus,
	); err != nil {
		return nil, fmt.Errorf("reload registration: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &row, nil
}

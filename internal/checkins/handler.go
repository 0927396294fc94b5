package checkins

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tiburon07/adnks/internal/models"
	"github.com/Tiburon07/adnks/pkg/response"
)

// Store is the persistence surface the door-list endpoints need.
// *Repository is the production implementation.
type Store interface {
	EventExists(ctx context.Context, eventID int64) (bool, error)
	List(ctx context.Context, p ListParams) ([]Row, int, error)
	Aggregate(ctx context.Context, eventID int64) (*Aggregates, error)
	UpdateCheckin(ctx context.Context, registrationID, userID int64, checkin models.CheckinMode, role string) (*Row, error)
}

var validStatuses = map[string]bool{
	"pending":   true,
	"confirmed": true,
	"cancelled": true,
	"bounced":   true,
}

var validCheckins = map[string]bool{
	"not-applicable": true,
	"in-person":      true,
	"virtual":        true,
}

// Handler exposes the staff-only door-list endpoints.
type Handler struct {
	repo   Store
	logger *zap.Logger
}

// NewHandler creates a checkins handler.
func NewHandler(repo Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /events/:id/checkins. Emails are masked unless the
// caller asks for include_email_full=true.
func (h *Handler) List(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || eventID <= 0 {
		response.BadRequest(c, "invalid event id")
		return
	}

	ctx := c.Request.Context()
	exists, err := h.repo.EventExists(ctx, eventID)
	if err != nil {
		h.logger.Error("event lookup failed", zap.Int64("event_id", eventID), zap.Error(err))
		response.Internal(c, "internal error")
		return
	}
	if !exists {
		response.NotFound(c, "event not found")
		return
	}

	params, fieldErrors := parseListParams(c, eventID)
	if len(fieldErrors) > 0 {
		response.Invalid(c, "invalid list parameters", fieldErrors)
		return
	}

	rows, total, err := h.repo.List(ctx, params)
	if err != nil {
		h.logger.Error("checkin list failed", zap.Int64("event_id", eventID), zap.Error(err))
		response.Internal(c, "internal error")
		return
	}
	agg, err := h.repo.Aggregate(ctx, eventID)
	if err != nil {
		h.logger.Error("checkin aggregate failed", zap.Int64("event_id", eventID), zap.Error(err))
		response.Internal(c, "internal error")
		return
	}

	if c.Query("include_email_full") != "true" {
		for i := range rows {
			rows[i].Email = maskEmail(rows[i].Email)
		}
	}
	if rows == nil {
		rows = []Row{}
	}

	pages := (total + params.PerPage - 1) / params.PerPage
	response.OK(c, gin.H{
		"iscrizioni": rows,
		"aggregati":  agg,
		"pagination": gin.H{
			"page":       params.Page,
			"perPage":    params.PerPage,
			"total":      total,
			"totalPages": pages,
		},
	})
}

// Update handles POST|PUT|PATCH /event-checkin-update. The eventId field is
// historically the registration id, kept for client compatibility.
func (h *Handler) Update(c *gin.Context) {
	var req struct {
		EventID int64  `json:"eventId"`
		UserID  int64  `json:"userId"`
		Checkin string `json:"checkin"`
		Ruolo   string `json:"ruolo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid JSON body")
		return
	}

	fieldErrors := map[string]string{}
	if req.EventID <= 0 {
		fieldErrors["eventId"] = "required"
	}
	if req.UserID <= 0 {
		fieldErrors["userId"] = "required"
	}
	if !validCheckins[req.Checkin] {
		fieldErrors["checkin"] = "must be one of not-applicable, in-person, virtual"
	}
	req.Ruolo = strings.TrimSpace(req.Ruolo)
	switch {
	case req.Ruolo == "":
		fieldErrors["ruolo"] = "required"
	case len(req.Ruolo) > 100:
		fieldErrors["ruolo"] = "too long (max 100)"
	}
	if len(fieldErrors) > 0 {
		response.Invalid(c, "invalid check-in update", fieldErrors)
		return
	}

	row, err := h.repo.UpdateCheckin(c.Request.Context(), req.EventID, req.UserID, models.CheckinMode(req.Checkin), req.Ruolo)
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "registration not found for this user")
		return
	case errors.Is(err, ErrNotConfirmed):
		response.Unprocessable(c, "only confirmed registrations can be checked in")
		return
	case err != nil:
		h.logger.Error("checkin update failed",
			zap.Int64("registration_id", req.EventID), zap.Int64("user_id", req.UserID), zap.Error(err))
		response.Internal(c, "internal error")
		return
	}

	response.OKMessage(c, "check-in updated", gin.H{"iscrizione": row})
}

func parseListParams(c *gin.Context, eventID int64) (ListParams, map[string]string) {
	fieldErrors := map[string]string{}
	params := ListParams{
		EventID: eventID,
		Sort:    c.DefaultQuery("sort", "cognome_asc"),
		Search:  strings.TrimSpace(c.Query("search")),
		Page:    1,
		PerPage: 50,
	}

	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if !validStatuses[s] {
				fieldErrors["status"] = "unknown status " + s
				break
			}
			params.Statuses = append(params.Statuses, s)
		}
	}
	if checkin := c.Query("checkin"); checkin != "" {
		if !validCheckins[checkin] {
			fieldErrors["checkin"] = "unknown checkin " + checkin
		}
		params.Checkin = checkin
	}
	if _, ok := sortColumns[params.Sort]; !ok {
		fieldErrors["sort"] = "unknown sort " + params.Sort
	}
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			fieldErrors["page"] = "must be a positive integer"
		} else {
			params.Page = page
		}
	}
	if raw := c.Query("per_page"); raw != "" {
		perPage, err := strconv.Atoi(raw)
		if err != nil || perPage < 1 || perPage > 200 {
			fieldErrors["per_page"] = "must be between 1 and 200"
		} else {
			params.PerPage = perPage
		}
	}
	return params, fieldErrors
}

// maskEmail hides most of the local part: "giovanni@example.com" becomes
// "gio*****@example.com". Short local parts are fully starred.
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	keep := 3
	if len(local) <= keep {
		return strings.Repeat("*", len(local)) + domain
	}
	return local[:keep] + strings.Repeat("*", len(local)-keep) + domain
}

package registrations

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tiburon07/adnks/pkg/response"
)

// registerRequest is the JSON body for POST /event-registration. The
// embeddable widget posts an alternate field naming (firstName/lastName/
// company), accepted alongside the canonical one.
type registerRequest struct {
	EventID  int64  `json:"eventId"`
	Nome     string `json:"nome"`
	Cognome  string `json:"cognome"`
	Email    string `json:"email"`
	Azienda  string `json:"azienda"`
	Telefono string `json:"telefono"`
	Ruolo    string `json:"ruolo"`
	Note     string `json:"note"`
	Privacy  string `json:"privacy"`

	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Company   string `json:"company"`
}

// Handler adapts HTTP entry points onto the registration workflow. Both the
// JSON API and the classic form post feed the same Service; no business
// logic lives here.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// Register handles POST /event-registration with a JSON or form-encoded body.
func (h *Handler) Register(c *gin.Context) {
	var sub *Submission
	if strings.Contains(c.ContentType(), "application/json") {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid JSON body")
			return
		}
		sub = req.toSubmission()
	} else {
		sub = formSubmission(c)
	}

	result, err := h.service.SubmitRegistration(c.Request.Context(), sub)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"message":          result.Message,
		"idIscrizione":     result.RegistrationID,
		"eventoNome":       result.EventName,
		"mailchimpSuccess": result.SyncOK,
	})
}

func (h *Handler) renderError(c *gin.Context, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		response.Invalid(c, "submission failed validation", ve.Fields)
	case errors.Is(err, ErrEventNotEligible):
		response.Invalid(c, "the selected event does not exist or has already passed",
			map[string]string{"evento_id": "event not available"})
	case errors.Is(err, ErrDuplicateRegistration):
		response.Invalid(c, "you are already registered for this event with this email",
			map[string]string{"email": "email already registered for this event"})
	default:
		h.logger.Error("registration failed", zap.Error(err))
		response.Internal(c, "registration could not be saved, try again later")
	}
}

func (r *registerRequest) toSubmission() *Submission {
	sub := &Submission{
		EventID:   r.EventID,
		FirstName: r.Nome,
		LastName:  r.Cognome,
		Email:     r.Email,
		Phone:     r.Telefono,
		Role:      r.Ruolo,
		Company:   r.Azienda,
		Note:      r.Note,
		Privacy:   r.Privacy,
	}
	// Widget mapping: consent is collected client-side before posting.
	if sub.FirstName == "" && r.FirstName != "" {
		sub.FirstName = r.FirstName
		sub.LastName = r.LastName
		sub.Company = r.Company
		if sub.Privacy == "" {
			sub.Privacy = "on"
		}
	}
	return sub
}

func formSubmission(c *gin.Context) *Submission {
	eventID, _ := strconv.ParseInt(c.PostForm("evento_id"), 10, 64)
	return &Submission{
		EventID:   eventID,
		FirstName: c.PostForm("nome"),
		LastName:  c.PostForm("cognome"),
		Email:     c.PostForm("email"),
		Phone:     c.PostForm("telefono"),
		Role:      c.PostForm("ruolo"),
		Company:   c.PostForm("azienda"),
		Note:      c.PostForm("note"),
		Privacy:   c.PostForm("privacy"),
	}
}

package registrations

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tiburon07/adnks/internal/mailchimp"
	"github.com/Tiburon07/adnks/internal/models"
	"github.com/Tiburon07/adnks/pkg/response"
)

// signatureHeader carries the provider's HMAC of the raw request body.
const signatureHeader = "X-MC-Signature"

// WebhookLogStore records delivered callbacks for forensics.
type WebhookLogStore interface {
	InsertWebhookLog(ctx context.Context, entry *models.WebhookLog) (int64, error)
	MarkWebhookProcessed(ctx context.Context, id int64) error
	MarkWebhookError(ctx context.Context, id int64, msg string) error
}

// providerEvent is the payload Mailchimp delivers, either as JSON or as a
// bracketed form encoding (type=subscribe&data[email]=...).
type providerEvent struct {
	Type string `json:"type"`
	Data struct {
		Email  string `json:"email"`
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// WebhookHandler exposes the provider callback endpoint and feeds the
// reconciler. GET answers the provider's endpoint verification; POST
// delivers events.
type WebhookHandler struct {
	reconciler *Reconciler
	store      WebhookLogStore
	secret     string
	logger     *zap.Logger
}

// NewWebhookHandler creates the webhook endpoint handler. An empty secret
// disables signature verification.
func NewWebhookHandler(reconciler *Reconciler, store WebhookLogStore, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{reconciler: reconciler, store: store, secret: secret, logger: logger}
}

// Handshake handles GET /mailchimp/webhook: echoes the provider's challenge
// parameter when present, otherwise reports liveness.
func (h *WebhookHandler) Handshake(c *gin.Context) {
	if challenge := c.Query("challenge"); challenge != "" {
		c.String(http.StatusOK, challenge)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "webhook_endpoint_active",
		"message":   "mailing-list webhook endpoint is ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Deliver handles POST /mailchimp/webhook.
func (h *WebhookHandler) Deliver(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}

	if h.secret != "" {
		sig := c.GetHeader(signatureHeader)
		if !mailchimp.VerifyWebhookSignature(raw, sig, h.secret) {
			h.logger.Warn("webhook signature rejected", zap.String("client_ip", c.ClientIP()))
			response.Unauthorized(c, "invalid signature")
			return
		}
	}

	event, payload, ok := parseProviderEvent(raw)
	if !ok || event.Type == "" || event.Data.Email == "" {
		response.BadRequest(c, "missing required webhook data")
		return
	}

	ctx := c.Request.Context()
	logEntry := &models.WebhookLog{
		CorrelationID: uuid.New(),
		WebhookType:   event.Type,
		Email:         event.Data.Email,
		MailchimpID:   event.Data.ID,
		EventData:     payload,
	}
	logID, err := h.store.InsertWebhookLog(ctx, logEntry)
	if err != nil {
		h.logger.Error("webhook log insert failed", zap.Error(err))
		response.Internal(c, "internal error")
		return
	}

	result, err := h.reconciler.HandleProviderEvent(ctx, event.Type, event.Data.Email, payload)
	if err != nil {
		h.logger.Error("webhook reconciliation failed",
			zap.Int64("webhook_log_id", logID), zap.Error(err))
		if markErr := h.store.MarkWebhookError(ctx, logID, err.Error()); markErr != nil {
			h.logger.Error("webhook log update failed", zap.Error(markErr))
		}
		response.Internal(c, "internal error")
		return
	}

	// no_match and ignored deliveries stay unprocessed so operators can
	// review them later.
	if result.Outcome == OutcomeNoMatch || result.Outcome == OutcomeIgnored {
		if markErr := h.store.MarkWebhookError(ctx, logID, result.Message); markErr != nil {
			h.logger.Error("webhook log update failed", zap.Error(markErr))
		}
	} else {
		if markErr := h.store.MarkWebhookProcessed(ctx, logID); markErr != nil {
			h.logger.Error("webhook log update failed", zap.Error(markErr))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": string(result.Outcome),
		"type":   event.Type,
		"email":  event.Data.Email,
		"result": result,
	})
}

// parseProviderEvent accepts both encodings the provider uses. The JSON
// form keeps the raw body as the forensic payload; the bracketed form is
// re-encoded to JSON so the audit trail stays queryable.
func parseProviderEvent(raw []byte) (*providerEvent, json.RawMessage, bool) {
	var event providerEvent
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &event); err != nil {
			return nil, nil, false
		}
		return &event, trimmed, true
	}

	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, nil, false
	}
	event.Type = values.Get("type")
	event.Data.Email = values.Get("data[email]")
	event.Data.ID = values.Get("data[id]")
	event.Data.Status = values.Get("data[status]")

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, nil, false
	}
	return &event, payload, true
}

package registrations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiburon07/adnks/internal/mailchimp"
	"github.com/Tiburon07/adnks/internal/models"
)

type fakeWebhookLogStore struct {
	inserted  []*models.WebhookLog
	processed []int64
	errored   map[int64]string
}

func newFakeWebhookLogStore() *fakeWebhookLogStore {
	return &fakeWebhookLogStore{errored: map[int64]string{}}
}

func (f *fakeWebhookLogStore) InsertWebhookLog(ctx context.Context, entry *models.WebhookLog) (int64, error) {
	f.inserted = append(f.inserted, entry)
	return int64(len(f.inserted)), nil
}

func (f *fakeWebhookLogStore) MarkWebhookProcessed(ctx context.Context, id int64) error {
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeWebhookLogStore) MarkWebhookError(ctx context.Context, id int64, msg string) error {
	f.errored[id] = msg
	return nil
}

func newWebhookRouter(store *fakeReconcileStore, logs *fakeWebhookLogStore, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewWebhookHandler(NewReconciler(store, nil), logs, secret, nil)
	router := gin.New()
	router.GET("/mailchimp/webhook", handler.Handshake)
	router.POST("/mailchimp/webhook", handler.Deliver)
	return router
}

func TestWebhookHandshakeEchoesChallenge(t *testing.T) {
	router := newWebhookRouter(&fakeReconcileStore{}, newFakeWebhookLogStore(), "")

	req := httptest.NewRequest(http.MethodGet, "/mailchimp/webhook?challenge=abc123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc123", w.Body.String())
}

func TestWebhookHandshakeLiveness(t *testing.T) {
	router := newWebhookRouter(&fakeReconcileStore{}, newFakeWebhookLogStore(), "")

	req := httptest.NewRequest(http.MethodGet, "/mailchimp/webhook", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "webhook_endpoint_active")
}

func TestWebhookDeliverJSON(t *testing.T) {
	store := &fakeReconcileStore{pending: pendingRegistration()}
	logs := newFakeWebhookLogStore()
	router := newWebhookRouter(store, logs, "")

	body := `{"type":"subscribe","data":{"email":"giulia@example.com","id":"abc"}}`
	req := httptest.NewRequest(http.MethodPost, "/mailchimp/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "applied")

	require.Len(t, logs.inserted, 1)
	assert.Equal(t, "subscribe", logs.inserted[0].WebhookType)
	assert.Equal(t, "giulia@example.com", logs.inserted[0].Email)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", logs.inserted[0].CorrelationID.String())
	assert.Equal(t, []int64{1}, logs.processed)

	require.Len(t, store.applied, 1)
	assert.Equal(t, models.RegistrationStatusConfirmed, store.applied[0].newStatus)
}

func TestWebhookDeliverFormEncoded(t *testing.T) {
	store := &fakeReconcileStore{pending: pendingRegistration()}
	logs := newFakeWebhookLogStore()
	router := newWebhookRouter(store, logs, "")

	form := url.Values{
		"type":         {"unsubscribe"},
		"data[email]":  {"giulia@example.com"},
		"data[id]":     {"abc"},
		"data[status]": {"unsubscribed"},
	}
	req := httptest.NewRequest(http.MethodPost, "/mailchimp/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.applied, 1)
	assert.Equal(t, models.RegistrationStatusCancelled, store.applied[0].newStatus)
	require.Len(t, logs.inserted, 1)
	assert.JSONEq(t,
		`{"type":"unsubscribe","data":{"email":"giulia@example.com","id":"abc","status":"unsubscribed"}}`,
		string(logs.inserted[0].EventData))
}

func TestWebhookDeliverRejectsBadSignature(t *testing.T) {
	store := &fakeReconcileStore{pending: pendingRegistration()}
	logs := newFakeWebhookLogStore()
	router := newWebhookRouter(store, logs, "topsecret")

	body := `{"type":"subscribe","data":{"email":"giulia@example.com"}}`
	req := httptest.NewRequest(http.MethodPost, "/mailchimp/webhook", strings.NewReader(body))
	req.Header.Set("X-MC-Signature", "not-the-right-signature")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, logs.inserted)
	assert.Empty(t, store.applied)
}

func TestWebhookDeliverAcceptsValidSignature(t *testing.T) {
	store := &fakeReconcileStore{pending: pendingRegistration()}
	logs := newFakeWebhookLogStore()
	router := newWebhookRouter(store, logs, "topsecret")

	body := `{"type":"subscribe","data":{"email":"giulia@example.com"}}`
	req := httptest.NewRequest(http.MethodPost, "/mailchimp/webhook", strings.NewReader(body))
	req.Header.Set("X-MC-Signature", mailchimp.SignBody([]byte(body), "topsecret"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, store.applied, 1)
}

func TestWebhookDeliverRequiresTypeAndEmail(t *testing.T) {
	logs := newFakeWebhookLogStore()
	router := newWebhookRouter(&fakeReconcileStore{}, logs, "")

	req := httptest.NewRequest(http.MethodPost, "/mailchimp/webhook",
		strings.NewReader(`{"type":"subscribe","data":{}}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, logs.inserted)
}

func TestWebhookDeliverUnknownTypeStaysUnprocessed(t *testing.T) {
	store := &fakeReconcileStore{pending: pendingRegistration()}
	logs := newFakeWebhookLogStore()
	router := newWebhookRouter(store, logs, "")

	req := httptest.NewRequest(http.MethodPost, "/mailchimp/webhook",
		strings.NewReader(`{"type":"campaign","data":{"email":"giulia@example.com"}}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Empty(t, store.applied)
	assert.Empty(t, logs.processed)
	assert.Contains(t, logs.errored[1], "not handled")
}

func TestWebhookDeliverNoMatchRecordsError(t *testing.T) {
	store := &fakeReconcileStore{pending: nil}
	logs := newFakeWebhookLogStore()
	router := newWebhookRouter(store, logs, "")

	req := httptest.NewRequest(http.MethodPost, "/mailchimp/webhook",
		strings.NewReader(`{"type":"subscribe","data":{"email":"nobody@example.com"}}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no_match")
	assert.Empty(t, logs.processed)
	assert.Equal(t, "no matching registration", logs.errored[1])
}

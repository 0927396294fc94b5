package registrations

import (
	"encoding/json"
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

func newRegisterRouter(store *fakeStore, dir *fakeDirectory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(NewService(store, dir, nil), nil)
	router := gin.New()
	router.POST("/event-registration", handler.Register)
	return router
}

func happyFakes() (*fakeStore, *fakeDirectory) {
	store := &fakeStore{event: futureEvent(models.EventTypeInPerson)}
	dir := &fakeDirectory{
		found:  &mailchimp.Subscriber{Exists: false},
		upsert: &mailchimp.UpsertResult{ID: "abc", EmailHash: "deadbeef", Status: "pending"},
	}
	return store, dir
}

func TestRegisterJSON(t *testing.T) {
	store, dir := happyFakes()
	router := newRegisterRouter(store, dir)

	body := `{
		"eventId": 7,
		"nome": "Giulia",
		"cognome": "Rossi",
		"email": "giulia@example.com",
		"azienda": "Acme SpA",
		"telefono": "+39 02 1234567",
		"privacy": "on"
	}`
	req := httptest.NewRequest(http.MethodPost, "/event-registration", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success          bool   `json:"success"`
		IDIscrizione     int64  `json:"idIscrizione"`
		EventoNome       string `json:"eventoNome"`
		MailchimpSuccess bool   `json:"mailchimpSuccess"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(42), resp.IDIscrizione)
	assert.Equal(t, "Tech Forum 2026", resp.EventoNome)
	assert.True(t, resp.MailchimpSuccess)
}

func TestRegisterFormMatchesJSON(t *testing.T) {
	store, dir := happyFakes()
	router := newRegisterRouter(store, dir)

	form := url.Values{
		"evento_id": {"7"},
		"nome":      {"Giulia"},
		"cognome":   {"Rossi"},
		"email":     {"giulia@example.com"},
		"azienda":   {"Acme SpA"},
		"telefono":  {"+39 02 1234567"},
		"privacy":   {"on"},
	}
	req := httptest.NewRequest(http.MethodPost, "/event-registration", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, store.lastSub)
	assert.Equal(t, int64(7), store.lastSub.EventID)
	assert.Equal(t, "Giulia", store.lastSub.FirstName)
	assert.Equal(t, "Rossi", store.lastSub.LastName)
	assert.Equal(t, "giulia@example.com", store.lastSub.Email)
	assert.Equal(t, "Acme SpA", store.lastSub.Company)
}

func TestRegisterWidgetFieldNames(t *testing.T) {
	store, dir := happyFakes()
	router := newRegisterRouter(store, dir)

	body := `{
		"eventId": 7,
		"firstName": "Giulia",
		"lastName": "Rossi",
		"email": "giulia@example.com",
		"company": "Acme SpA"
	}`
	req := httptest.NewRequest(http.MethodPost, "/event-registration", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, store.lastSub)
	assert.Equal(t, "Giulia", store.lastSub.FirstName)
	assert.Equal(t, "Acme SpA", store.lastSub.Company)
	assert.Equal(t, "on", store.lastSub.Privacy)
}

func TestRegisterValidationErrors(t *testing.T) {
	store, dir := happyFakes()
	router := newRegisterRouter(store, dir)

	req := httptest.NewRequest(http.MethodPost, "/event-registration",
		strings.NewReader(`{"eventId": 7, "privacy": "on"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp struct {
		Success     bool              `json:"success"`
		FieldErrors map[string]string `json:"fieldErrors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.FieldErrors, "nome")
	assert.Contains(t, resp.FieldErrors, "email")
	assert.Contains(t, resp.FieldErrors, "azienda")
	assert.Zero(t, store.created)
}

func TestRegisterEventNotEligible(t *testing.T) {
	store := &fakeStore{eventErr: ErrEventNotEligible}
	router := newRegisterRouter(store, &fakeDirectory{})

	req := httptest.NewRequest(http.MethodPost, "/event-registration",
		strings.NewReader(`{"eventId": 99, "nome": "G", "cognome": "R", "email": "g@example.com", "azienda": "Acme", "privacy": "on"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "evento_id")
}

func TestRegisterDuplicate(t *testing.T) {
	store := &fakeStore{
		event:     futureEvent(models.EventTypeInPerson),
		createErr: ErrDuplicateRegistration,
	}
	router := newRegisterRouter(store, &fakeDirectory{})

	req := httptest.NewRequest(http.MethodPost, "/event-registration",
		strings.NewReader(`{"eventId": 7, "nome": "G", "cognome": "R", "email": "g@example.com", "azienda": "Acme", "privacy": "on"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already registered")
}

func TestRegisterMalformedJSON(t *testing.T) {
	store, dir := happyFakes()
	router := newRegisterRouter(store, dir)

	req := httptest.NewRequest(http.MethodPost, "/event-registration", strings.NewReader(`{"eventId":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, store.created)
}

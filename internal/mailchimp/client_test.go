package mailchimp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-key", "list1", "us1", 2*time.Second, nil)
	c.baseURL = srv.URL
	return c
}

func TestSubscriberHash(t *testing.T) {
	// md5 of the lower-cased address, per the directory's member key scheme.
	assert.Equal(t, "55502f40dc8b7c769880b10874abc9d0", SubscriberHash("test@example.com"))
	assert.Equal(t, SubscriberHash("test@example.com"), SubscriberHash("  TEST@Example.COM "))
}

func TestFindSubscriberNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	sub, err := c.FindSubscriber(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, sub.Exists)
}

func TestFindSubscriberExisting(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Contains(t, r.URL.Path, "/lists/list1/members/"+SubscriberHash("giulia@example.com"))
		_, password, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "test-key", password)
		json.NewEncoder(w).Encode(map[string]string{"id": "m1", "status": "subscribed"})
	}))

	sub, err := c.FindSubscriber(context.Background(), "giulia@example.com")
	require.NoError(t, err)
	assert.True(t, sub.Exists)
	assert.Equal(t, "m1", sub.ID)
	assert.Equal(t, "subscribed", sub.Status)
}

func TestUpsertSubscriberNewMember(t *testing.T) {
	var putBody map[string]interface{}
	var patched bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&putBody))
			json.NewEncoder(w).Encode(map[string]string{"id": "m1", "status": "pending"})
		case http.MethodPatch:
			patched = true
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))

	result, err := c.UpsertSubscriber(context.Background(), "Giulia@Example.com", "Giulia", "Rossi")
	require.NoError(t, err)

	assert.Equal(t, "m1", result.ID)
	assert.Equal(t, SubscriberHash("giulia@example.com"), result.EmailHash)
	assert.Equal(t, "pending", result.Status)
	assert.Equal(t, "pending", putBody["status_if_new"])
	assert.Equal(t, "giulia@example.com", putBody["email_address"])
	assert.True(t, patched)
}

func TestUpsertSubscriberMergeFieldFailureIsPartial(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "m1", "status": "pending"})
	}))

	result, err := c.UpsertSubscriber(context.Background(), "giulia@example.com", "Giulia", "Rossi")
	require.NoError(t, err)
	assert.Equal(t, "pending", result.Status)
}

func TestResubscribe(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "subscribed", body["status"])
		json.NewEncoder(w).Encode(map[string]string{"status": "subscribed"})
	}))

	status, err := c.Resubscribe(context.Background(), "giulia@example.com")
	require.NoError(t, err)
	assert.Equal(t, "subscribed", status)
}

func TestAddTags(t *testing.T) {
	var body map[string][]map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/tags")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.AddTags(context.Background(), "giulia@example.com", []string{"evento-tech-forum", "data-2026-11"})
	require.NoError(t, err)
	require.Len(t, body["tags"], 2)
	assert.Equal(t, "evento-tech-forum", body["tags"][0]["name"])
	assert.Equal(t, "active", body["tags"][0]["status"])
}

func TestAddTagsNoopWithoutTags(t *testing.T) {
	c := NewClient("k", "l", "us1", time.Second, nil)
	assert.NoError(t, c.AddTags(context.Background(), "x@example.com", nil))
}

func TestAPIErrorCarriesDetail(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "looks fake or invalid"})
	}))

	_, err := c.UpsertSubscriber(context.Background(), "bad@example.com", "", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Detail, "looks fake")
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on
	c := NewClient("k", "l", "us1", time.Second, nil)
	c.baseURL = srv.URL

	_, err := c.FindSubscriber(context.Background(), "giulia@example.com")
	assert.ErrorIs(t, err, ErrUnavailable)
}

package mailchimp

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable marks transport-level failures (connection refused, DNS,
// timeout): the directory could not be reached at all.
var ErrUnavailable = errors.New("subscriber directory unavailable")

// APIError is a business-level failure: the directory answered, but refused
// the operation.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mailchimp api error (%d): %s", e.StatusCode, e.Detail)
}

// Subscriber is the directory's view of an email address.
type Subscriber struct {
	Exists bool
	ID     string
	Status string // subscribed | unsubscribed | cleaned | pending
}

// UpsertResult reports the outcome of an upsert.
type UpsertResult struct {
	ID        string
	EmailHash string
	Status    string
}

// Client wraps the Mailchimp Marketing API v3 for one audience list. Every
// call has a bounded timeout; the directory is never trusted to answer.
type Client struct {
	apiKey  string
	listID  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a directory client for the given list. A zero timeout
// defaults to 30 seconds.
func NewClient(apiKey, listID, serverPrefix string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:  apiKey,
		listID:  listID,
		baseURL: fmt.Sprintf("https://%s.api.mailchimp.com/3.0", serverPrefix),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SubscriberHash returns the deterministic lookup key for an email: the MD5
// digest of its lower-cased form. This is the directory's stable external
// key and is stored locally for later reconciliation.
func SubscriberHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

type memberBody struct {
	ID           string            `json:"id,omitempty"`
	EmailAddress string            `json:"email_address,omitempty"`
	Status       string            `json:"status,omitempty"`
	StatusIfNew  string            `json:"status_if_new,omitempty"`
	MergeFields  map[string]string `json:"merge_fields,omitempty"`
}

// FindSubscriber looks up a subscriber by fingerprint. A 404 is not an
// error: the subscriber simply does not exist yet.
func (c *Client) FindSubscriber(ctx context.Context, email string) (*Subscriber, error) {
	var member memberBody
	err := c.call(ctx, http.MethodGet, c.memberPath(email), nil, &member)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return &Subscriber{Exists: false}, nil
		}
		return nil, err
	}
	return &Subscriber{Exists: true, ID: member.ID, Status: member.Status}, nil
}

// UpsertSubscriber creates the subscriber with pending (double opt-in)
// status if absent, or updates name fields if present. status_if_new never
// stomps an already-confirmed subscriber's status. A merge-field update
// failure is a partial failure: logged, not propagated.
func (c *Client) UpsertSubscriber(ctx context.Context, email, firstName, lastName string) (*UpsertResult, error) {
	hash := SubscriberHash(email)
	put := memberBody{
		EmailAddress: strings.ToLower(strings.TrimSpace(email)),
		StatusIfNew:  "pending",
	}
	var member memberBody
	if err := c.call(ctx, http.MethodPut, c.memberPath(email), put, &member); err != nil {
		return nil, err
	}

	if firstName != "" || lastName != "" {
		patch := memberBody{MergeFields: map[string]string{}}
		if firstName != "" {
			patch.MergeFields["FNAME"] = firstName
		}
		if lastName != "" {
			patch.MergeFields["LNAME"] = lastName
		}
		if err := c.call(ctx, http.MethodPatch, c.memberPath(email), patch, nil); err != nil {
			c.logger.Warn("merge field update failed", zap.String("email_hash", hash), zap.Error(err))
		}
	}

	status := member.Status
	if status == "" {
		status = "pending"
	}
	return &UpsertResult{ID: member.ID, EmailHash: hash, Status: status}, nil
}

// Resubscribe reactivates a previously unsubscribed or cleaned subscriber.
func (c *Client) Resubscribe(ctx context.Context, email string) (string, error) {
	patch := memberBody{
		EmailAddress: strings.ToLower(strings.TrimSpace(email)),
		Status:       "subscribed",
	}
	var member memberBody
	if err := c.call(ctx, http.MethodPatch, c.memberPath(email), patch, &member); err != nil {
		return "", err
	}
	return member.Status, nil
}

type tagEntry struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// AddTags attaches active tags to a subscriber. Callers treat failures as
// partial: the subscription itself already succeeded.
func (c *Client) AddTags(ctx context.Context, email string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	entries := make([]tagEntry, 0, len(tags))
	for _, t := range tags {
		entries = append(entries, tagEntry{Name: t, Status: "active"})
	}
	body := map[string][]tagEntry{"tags": entries}
	return c.call(ctx, http.MethodPost, c.memberPath(email)+"/tags", body, nil)
}

func (c *Client) memberPath(email string) string {
	return fmt.Sprintf("/lists/%s/members/%s", c.listID, SubscriberHash(email))
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth("user", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %v: %w", err, ErrUnavailable)
	}

	if resp.StatusCode >= 400 {
		detail := "mailchimp api error"
		var errBody struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &errBody) == nil && errBody.Detail != "" {
			detail = errBody.Detail
		}
		return &APIError{StatusCode: resp.StatusCode, Detail: detail}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

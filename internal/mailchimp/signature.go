package mailchimp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignBody computes the webhook signature for a raw request body:
// base64-encoded HMAC-SHA256 under the shared webhook secret.
func SignBody(raw []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature reports whether signature matches the raw body
// under the shared secret, using a constant-time comparison. An empty
// secret never verifies.
func VerifyWebhookSignature(raw []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	expected := SignBody(raw, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

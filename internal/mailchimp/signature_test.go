package mailchimp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"type":"subscribe","data":{"email":"giulia@example.com"}}`)
	secret := "topsecret"
	sig := SignBody(body, secret)

	assert.True(t, VerifyWebhookSignature(body, sig, secret))
	assert.False(t, VerifyWebhookSignature(body, sig, "wrong-secret"))
	assert.False(t, VerifyWebhookSignature([]byte("tampered"), sig, secret))
	assert.False(t, VerifyWebhookSignature(body, "garbage", secret))
}

func TestVerifyWebhookSignatureEmptySecretNeverVerifies(t *testing.T) {
	body := []byte("anything")
	assert.False(t, VerifyWebhookSignature(body, SignBody(body, ""), ""))
}

package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignPayload_Deterministic(t *testing.T) {
	body := []byte(`{"type":"email.received"}`)

	sig1 := SignPayload(body, "secret")
	sig2 := SignPayload(body, "secret")

	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 64) // hex-encoded SHA-256
}

func TestVerifySignature_RoundTrip(t *testing.T) {
	body := []byte(`{"type":"email.received","id":"evt_1"}`)
	sig := SignPayload(body, "secret")

	assert.True(t, VerifySignature(body, sig, "secret"))
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	body := []byte(`{"amount":100}`)
	sig := SignPayload(body, "secret")

	assert.False(t, VerifySignature([]byte(`{"amount":999}`), sig, "secret"))
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte("payload")
	sig := SignPayload(body, "secret")

	assert.False(t, VerifySignature(body, sig, "other"))
}

func TestVerifySignature_DifferentSecretsDifferentSignatures(t *testing.T) {
	body := []byte("payload")

	assert.NotEqual(t, SignPayload(body, "a"), SignPayload(body, "b"))
}

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketdesk/internal/types"
)

func TestSignPayload_Format(t *testing.T) {
	body := []byte(`{"event":"ticket.created"}`)
	secret := types.SecretString("whsec_test")

	sig := SignPayload(body, secret)

	require.True(t, strings.HasPrefix(sig, "sha256="))

	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write(body)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), sig)
}

func TestSignPayload_Deterministic(t *testing.T) {
	body := []byte(`{"event":"ticket.created","data":{}}`)
	secret := types.SecretString("whsec_test")

	assert.Equal(t, SignPayload(body, secret), SignPayload(body, secret))
}

func TestVerifySignature_RoundTrip(t *testing.T) {
	body := []byte(`{"ticket":{"id":"tkt_1"}}`)
	secret := types.SecretString("app_secret")

	sig := SignPayload(body, secret)
	assert.True(t, VerifySignature(body, sig, secret))
}

func TestVerifySignature_ByteFlip(t *testing.T) {
	body := []byte(`{"ticket":{"id":"tkt_1"}}`)
	secret := types.SecretString("app_secret")
	sig := SignPayload(body, secret)

	// Flip one byte of the payload.
	mutated := append([]byte(nil), body...)
	mutated[0] ^= 0x01
	assert.False(t, VerifySignature(mutated, sig, secret))

	// Flip one hex character of the signature.
	flipped := []byte(sig)
	if flipped[len(flipped)-1] == 'a' {
		flipped[len(flipped)-1] = 'b'
	} else {
		flipped[len(flipped)-1] = 'a'
	}
	assert.False(t, VerifySignature(body, string(flipped), secret))
}

func TestVerifySignature_MissingCredentials(t *testing.T) {
	body := []byte(`{}`)
	secret := types.SecretString("app_secret")

	assert.False(t, VerifySignature(body, "", secret), "missing header fails")
	assert.False(t, VerifySignature(body, SignPayload(body, secret), types.SecretString("")),
		"missing secret fails even with a matching-looking header")
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	body := []byte(`{}`)
	secret := types.SecretString("app_secret")

	assert.False(t, VerifySignature(body, "sha1=abcdef", secret), "wrong scheme fails")
	assert.False(t, VerifySignature(body, "sha256=not-hex", secret), "non-hex digest fails")
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{"event":"reply.received"}`)
	sig := SignPayload(body, types.SecretString("secret-a"))

	assert.False(t, VerifySignature(body, sig, types.SecretString("secret-b")))
}

func TestVerifyToken(t *testing.T) {
	stored := types.SecretString("verify-me")

	assert.True(t, VerifyToken("verify-me", stored))
	assert.False(t, VerifyToken("verify-you", stored))
	assert.False(t, VerifyToken("", stored))
	assert.False(t, VerifyToken("anything", types.SecretString("")), "empty stored token always fails")
}

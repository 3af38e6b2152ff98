package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"ticketdesk/internal/types"
)

// SignatureHeader is the outbound header carrying the payload signature on
// standard-format deliveries.
const SignatureHeader = "X-Signature-256"

// signaturePrefix is the scheme tag on both outbound and inbound signatures.
const signaturePrefix = "sha256="

// SignPayload computes the signature header value for a raw serialized body:
// "sha256=" followed by the lowercase hex HMAC-SHA256 of the body keyed by
// the webhook's secret.
func SignPayload(body []byte, secret types.SecretString) string {
	mac := hmac.New(sha256.New, []byte(secret.Unmask()))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound X-Hub-Signature-256 style header against
// the raw request body and the integration's app secret. Comparison is
// constant-time. A missing secret or missing/malformed header always fails:
// absence of credentials is never treated as a valid signature.
func VerifySignature(body []byte, header string, secret types.SecretString) bool {
	if secret.Unmask() == "" || header == "" {
		return false
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}

	supplied, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret.Unmask()))
	mac.Write(body)
	return hmac.Equal(supplied, mac.Sum(nil))
}

// VerifyToken compares a supplied verify token against the stored one in
// constant time. Used by the Meta-style subscription handshake. An empty
// stored token always fails.
func VerifyToken(supplied string, stored types.SecretString) bool {
	expected := stored.Unmask()
	if expected == "" {
		return false
	}
	// Hash both sides so the comparison length never depends on the inputs.
	suppliedSum := sha256.Sum256([]byte(supplied))
	expectedSum := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(suppliedSum[:], expectedSum[:]) == 1
}

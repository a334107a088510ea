// Package signature computes the keyed MAC carried in the
// X-Webhook-Signature header. Signing always operates on the exact payload
// bytes sent on the wire; re-serializing before signing would break
// verification whenever field order differs.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HeaderPrefix identifies the MAC algorithm in the signature header.
const HeaderPrefix = "sha256="

// Sign returns the hex-encoded HMAC-SHA256 of payload keyed by secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Header returns the full signature header value, e.g. "sha256=<hex>".
func Header(payload []byte, secret string) string {
	return HeaderPrefix + Sign(payload, secret)
}

// Verify checks a received signature header against the payload bytes using
// a constant-time comparison. Subscribers use this before trusting a payload.
func Verify(payload []byte, secret string, header string) bool {
	expected := Header(payload, secret)
	return hmac.Equal([]byte(header), []byte(expected))
}

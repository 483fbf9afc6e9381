// Package webhook holds the admission primitives for inbound Jira deliveries:
// signature verification, event id derivation and deduplication.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	SignatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
)

// Verify checks header against HMAC-SHA256(secret, body). body must be the raw
// bytes as received. The digest must be lowercase hex; any malformed input
// yields false.
func Verify(body []byte, header string, secret []byte) bool {
	if len(secret) == 0 || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}

	got := strings.TrimPrefix(header, signaturePrefix)
	if len(got) != hex.EncodedLen(sha256.Size) {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(got), []byte(expected))
}

// Sign returns the header value Verify accepts for body.
func Sign(body []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

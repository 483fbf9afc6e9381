package webhook

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// IdentifierHeader carries Jira's per-delivery id. Retried deliveries reuse it.
const IdentifierHeader = "X-Atlassian-Webhook-Identifier"

// EventID returns the source-supplied identifier when present, otherwise a
// stable hash of the canonicalized payload. Object key order and insignificant
// whitespace do not change the derived id.
func EventID(headerValue string, body []byte) string {
	if id := strings.TrimSpace(headerValue); id != "" {
		return id
	}

	sum := sha256.Sum256(canonicalJSON(body))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func canonicalJSON(body []byte) []byte {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return body
	}
	// encoding/json sorts map keys.
	out, err := json.Marshal(v)
	if err != nil {
		return body
	}
	return out
}

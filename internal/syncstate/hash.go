package syncstate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ContentHash digests the synchronized fields of an entity. fields must
// marshal deterministically; maps are fine since encoding/json sorts keys.
func ContentHash(fields any) (string, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Package identity derives irreversible pseudonyms for platform user ids so
// upstream providers receive a stable identifier without learning the real id.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	iterations = 10000
	keyLength  = 32
)

// Hasher produces deterministic salted hashes of user ids. The salt is
// process configuration; the same id always maps to the same hash so
// providers can deduplicate per-user requests.
type Hasher struct {
	salt []byte
}

// NewHasher builds a Hasher. An empty salt is a configuration error and is
// rejected at startup rather than per call.
func NewHasher(salt string) (*Hasher, error) {
	if strings.TrimSpace(salt) == "" {
		return nil, errors.New("identity: hash salt is required")
	}
	return &Hasher{salt: []byte(salt)}, nil
}

// HashUserID returns the hex-encoded PBKDF2-SHA256 derivation of the
// stringified id.
func (h *Hasher) HashUserID(rawID any) string {
	id := fmt.Sprint(rawID)
	key := pbkdf2.Key([]byte(id), h.salt, iterations, keyLength, sha256.New)
	return hex.EncodeToString(key)
}

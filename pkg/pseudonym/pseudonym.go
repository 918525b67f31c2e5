// Package pseudonym turns raw client addresses into stable one-way
// identifiers so that duplicate and rate checks never store the address.
package pseudonym

import (
	"crypto/sha256"
	"encoding/hex"
)

// DefaultSalt is used when no salt is configured.
const DefaultSalt = "surbate-default-salt"

type Hasher struct {
	salt string
}

func New(salt string) *Hasher {
	if salt == "" {
		salt = DefaultSalt
	}
	return &Hasher{salt: salt}
}

// Hash returns hex(sha256(addr + salt)).
func (h *Hasher) Hash(addr string) string {
	sum := sha256.Sum256([]byte(addr + h.salt))
	return hex.EncodeToString(sum[:])
}

// ForSurvey scopes the identifier to one survey so respondents cannot be
// correlated across surveys.
func (h *Hasher) ForSurvey(surveyID, addr string) string {
	return h.Hash(surveyID + ":" + addr)
}

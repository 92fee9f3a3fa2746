package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Token is an access token as stored by the repository.
//
// Value is only populated on the Token returned from IssueToken; stored
// tokens carry the hash alone.
type Token struct {
	Hash      string    `json:"-"`
	Value     string    `json:"-"`
	AccountID string    `json:"account_id"`
	AuthCode  string    `json:"-"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// HashToken computes the SHA-256 hash of a raw token string for storage.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// newOpaqueValue returns 32 lowercase hex characters from a random UUID.
func newOpaqueValue() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newAuthCode returns "<country>_<32 hex>".
func newAuthCode(country string) string {
	if country == "" {
		country = "us"
	}
	return country + "_" + newOpaqueValue()
}

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// StateTTL is the validity window for a pending state token, measured from issuance.
const StateTTL = 10 * time.Minute

// StateToken ties an authorization request to its eventual redirect for CSRF protection.
type StateToken struct {
	Value     string
	CreatedAt time.Time
}

// StateStore manages pending state tokens.
//
// Records are durable so a pending login survives process death during the
// external-browser round trip. Implementations live in internal/repositories.
type StateStore interface {
	// Issue generates a new state token and persists the pending record.
	Issue() (StateToken, error)

	// ValidateAndConsume deletes the pending record for candidate as one
	// atomic check-and-delete, returning true only when the record existed
	// and was issued within [StateTTL]. It fails closed with a uniform
	// negative result: absent, empty, expired and replayed candidates are
	// indistinguishable to the caller. A candidate validates at most once.
	ValidateAndConsume(candidate string) bool
}

// NewStateValue generates a cryptographically secure state value:
// 32 random bytes, base64url, unpadded.
func NewStateValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultExpiry is assumed when the token endpoint omits expires_in.
const DefaultExpiry = 3600 * time.Second

// TokenSet is the committed credential record for an authenticated session:
// the provider access/refresh pair plus the backend's federated custom token.
//
// A TokenSet is only ever replaced as a whole record, never field by field.
type TokenSet struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	ExpiresAt    time.Time
	CustomToken  string
}

// Expired reports whether the access token is expired at now, with skew
// subtracted from the deadline so refresh happens before actual expiry.
func (t *TokenSet) Expired(now time.Time, skew time.Duration) bool {
	return !now.Before(t.ExpiresAt.Add(-skew))
}

// CustomTokenClaims decodes the federated custom token's claims without
// signature verification. The backend is the only party that verifies the
// token; this is for expiry and subject inspection on the client.
func (t *TokenSet) CustomTokenClaims() (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.CustomToken, claims); err != nil {
		return nil, fmt.Errorf("failed to decode custom token: %w", err)
	}
	return claims, nil
}

package auth

// SessionStore is the durable projection of an authenticated session.
//
// It makes no expiry decisions; policy lives in the [Controller].
// Implementations live in internal/repositories.
type SessionStore interface {
	// Load reads the persisted record. It returns nil with no error when no
	// record exists or when mandatory fields fail to deserialize, so a
	// corrupt record degrades to "no session" rather than an error loop.
	Load() (*TokenSet, error)

	// Save replaces the record atomically as a whole.
	Save(tokens *TokenSet) error

	// Clear removes the record. Used on logout and on refresh-token invalidation.
	Clear() error
}

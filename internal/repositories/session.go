package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cadence/internal/auth"
	"github.com/desertthunder/cadence/internal/shared"
)

// SessionRepository implements [auth.SessionStore] over a single-row
// sessions table. The row is replaced as a whole with one UPSERT so a
// reader can never observe a half-written TokenSet.
type SessionRepository struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// NewSessionRepository creates a SessionRepository with the given database connection.
func NewSessionRepository(db *sql.DB, logger *log.Logger) *SessionRepository {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SessionRepository{db: db, logger: logger, now: time.Now}
}

// Load reads the persisted TokenSet. Absent or undeserializable records
// degrade to (nil, nil): a corrupt row means "no session", not a crash loop.
func (r *SessionRepository) Load() (*auth.TokenSet, error) {
	query := `
		SELECT access_token, token_type, refresh_token, expires_at, custom_token
		FROM sessions
		WHERE id = 1
	`

	var (
		accessToken  string
		tokenType    string
		refreshToken sql.NullString
		expiresAt    time.Time
		customToken  string
	)

	err := r.db.QueryRow(query).Scan(&accessToken, &tokenType, &refreshToken, &expiresAt, &customToken)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Warn("failed to deserialize session record", "error", err)
		return nil, nil
	}

	if accessToken == "" || customToken == "" {
		r.logger.Warn("session record missing mandatory fields, treating as no session")
		return nil, nil
	}

	return &auth.TokenSet{
		AccessToken:  accessToken,
		TokenType:    tokenType,
		RefreshToken: refreshToken.String,
		ExpiresAt:    expiresAt,
		CustomToken:  customToken,
	}, nil
}

// Save replaces the session record atomically.
func (r *SessionRepository) Save(tokens *auth.TokenSet) error {
	if tokens == nil {
		return fmt.Errorf("%w: nil token set", shared.ErrInvalidArgument)
	}

	query := `
		INSERT INTO sessions (id, access_token, token_type, refresh_token, expires_at, custom_token, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			token_type = excluded.token_type,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			custom_token = excluded.custom_token,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		tokens.AccessToken, tokens.TokenType, tokens.RefreshToken,
		tokens.ExpiresAt, tokens.CustomToken, r.now())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// Clear removes the session record.
func (r *SessionRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM sessions WHERE id = 1"); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

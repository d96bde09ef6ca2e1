package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cadence/internal/auth"
	"github.com/desertthunder/cadence/internal/shared"
)

// StateRepository implements [auth.StateStore] over the oauth_states table.
//
// Pending records are keyed by token value so concurrent issues are
// independent; consumption is a check-and-delete inside one transaction so
// two redirect deliveries can never both validate the same state.
type StateRepository struct {
	db     *sql.DB
	ttl    time.Duration
	logger *log.Logger
	now    func() time.Time
}

// NewStateRepository creates a StateRepository with the standard ten-minute window.
func NewStateRepository(db *sql.DB, logger *log.Logger) *StateRepository {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &StateRepository{
		db:     db,
		ttl:    auth.StateTTL,
		logger: logger,
		now:    time.Now,
	}
}

// Issue generates a new state token and persists the pending record.
func (r *StateRepository) Issue() (auth.StateToken, error) {
	value, err := auth.NewStateValue()
	if err != nil {
		return auth.StateToken{}, err
	}

	token := auth.StateToken{Value: value, CreatedAt: r.now()}

	_, err = r.db.Exec("INSERT INTO oauth_states (state, created_at) VALUES (?, ?)", token.Value, token.CreatedAt)
	if err != nil {
		return auth.StateToken{}, fmt.Errorf("failed to persist state token: %w", err)
	}

	return token, nil
}

// ValidateAndConsume implements the one-time, fail-closed contract of
// [auth.StateStore]. The record is deleted whether or not it was still
// inside its window; the reason for a negative result is never revealed.
func (r *StateRepository) ValidateAndConsume(candidate string) bool {
	if candidate == "" {
		return false
	}

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Warn("failed to begin state consumption", "error", err)
		return false
	}
	defer tx.Rollback()

	var createdAt time.Time
	err = tx.QueryRow("SELECT created_at FROM oauth_states WHERE state = ?", candidate).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		r.logger.Warn("failed to read state record", "error", err)
		return false
	}

	if _, err := tx.Exec("DELETE FROM oauth_states WHERE state = ?", candidate); err != nil {
		r.logger.Warn("failed to delete state record", "error", err)
		return false
	}

	if err := tx.Commit(); err != nil {
		r.logger.Warn("failed to commit state consumption", "error", err)
		return false
	}

	if r.now().Sub(createdAt) > r.ttl {
		r.logger.Debug("state token consumed past its window")
		return false
	}

	return true
}

// EvictExpired removes pending records past their window. Run on startup so
// abandoned logins do not accumulate.
func (r *StateRepository) EvictExpired() (int64, error) {
	cutoff := r.now().Add(-r.ttl)

	result, err := r.db.Exec("DELETE FROM oauth_states WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to evict expired states: %w", err)
	}

	evicted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count evicted states: %w", err)
	}

	return evicted, nil
}

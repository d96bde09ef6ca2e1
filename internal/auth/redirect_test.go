package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/cadence/internal/shared"
)

// memStateStore is an in-memory StateStore for exercising the interpreter.
type memStateStore struct {
	pending map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func newMemStateStore() *memStateStore {
	return &memStateStore{
		pending: map[string]time.Time{},
		ttl:     StateTTL,
		now:     time.Now,
	}
}

func (s *memStateStore) Issue() (StateToken, error) {
	value, err := NewStateValue()
	if err != nil {
		return StateToken{}, err
	}
	token := StateToken{Value: value, CreatedAt: s.now()}
	s.pending[token.Value] = token.CreatedAt
	return token, nil
}

func (s *memStateStore) IssueFixed(value string) StateToken {
	token := StateToken{Value: value, CreatedAt: s.now()}
	s.pending[value] = token.CreatedAt
	return token
}

func (s *memStateStore) ValidateAndConsume(candidate string) bool {
	if candidate == "" {
		return false
	}
	createdAt, ok := s.pending[candidate]
	if !ok {
		return false
	}
	delete(s.pending, candidate)
	return s.now().Sub(createdAt) <= s.ttl
}

func TestRedirectInterpreter(t *testing.T) {
	t.Run("Valid Callback", func(t *testing.T) {
		states := newMemStateStore()
		states.IssueFixed("abc123")
		ri := NewRedirectInterpreter(states, nil)

		code, err := ri.Handle("app://callback?code=XYZ&state=abc123")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if code != "XYZ" {
			t.Errorf("expected code XYZ, got %s", code)
		}

		if _, stillPending := states.pending["abc123"]; stillPending {
			t.Error("expected state to be consumed")
		}
	})

	t.Run("Provider Error Still Consumes State", func(t *testing.T) {
		states := newMemStateStore()
		states.IssueFixed("abc123")
		ri := NewRedirectInterpreter(states, nil)

		_, err := ri.Handle("app://callback?error=access_denied&state=abc123")
		if !errors.Is(err, shared.ErrProviderDenied) {
			t.Fatalf("expected ErrProviderDenied, got %v", err)
		}

		if _, stillPending := states.pending["abc123"]; stillPending {
			t.Error("expected state to be consumed on error redirect")
		}
	})

	t.Run("Missing Code", func(t *testing.T) {
		states := newMemStateStore()
		states.IssueFixed("abc123")
		ri := NewRedirectInterpreter(states, nil)

		_, err := ri.Handle("app://callback?state=abc123")
		if !errors.Is(err, shared.ErrMissingAuthCode) {
			t.Fatalf("expected ErrMissingAuthCode, got %v", err)
		}
	})

	t.Run("Unissued State", func(t *testing.T) {
		states := newMemStateStore()
		ri := NewRedirectInterpreter(states, nil)

		_, err := ri.Handle("app://callback?code=XYZ&state=never-issued")
		if !errors.Is(err, shared.ErrCSRFValidation) {
			t.Fatalf("expected ErrCSRFValidation, got %v", err)
		}
	})

	t.Run("Altered State", func(t *testing.T) {
		states := newMemStateStore()
		states.IssueFixed("abc123")
		ri := NewRedirectInterpreter(states, nil)

		_, err := ri.Handle("app://callback?code=XYZ&state=abc124")
		if !errors.Is(err, shared.ErrCSRFValidation) {
			t.Fatalf("expected ErrCSRFValidation, got %v", err)
		}
	})

	t.Run("Replayed State", func(t *testing.T) {
		states := newMemStateStore()
		states.IssueFixed("abc123")
		ri := NewRedirectInterpreter(states, nil)

		if _, err := ri.Handle("app://callback?code=XYZ&state=abc123"); err != nil {
			t.Fatalf("expected first delivery to succeed, got %v", err)
		}

		_, err := ri.Handle("app://callback?code=XYZ&state=abc123")
		if !errors.Is(err, shared.ErrCSRFValidation) {
			t.Fatalf("expected ErrCSRFValidation on replay, got %v", err)
		}
	})

	t.Run("Missing State", func(t *testing.T) {
		states := newMemStateStore()
		ri := NewRedirectInterpreter(states, nil)

		_, err := ri.Handle("app://callback?code=XYZ")
		if !errors.Is(err, shared.ErrCSRFValidation) {
			t.Fatalf("expected ErrCSRFValidation, got %v", err)
		}
	})
}

func TestNewStateValue(t *testing.T) {
	seen := map[string]bool{}
	for range 32 {
		value, err := NewStateValue()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(value) != 43 { // 32 bytes, base64url, unpadded
			t.Errorf("expected 43-char value, got %d", len(value))
		}
		if seen[value] {
			t.Fatal("generated a duplicate state value")
		}
		seen[value] = true
	}
}

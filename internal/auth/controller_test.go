package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/cadence/internal/shared"
)

// fakeClock is a settable clock shared between the controller and tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memSessionStore is an in-memory SessionStore.
type memSessionStore struct {
	mu     sync.Mutex
	record *TokenSet
}

func (s *memSessionStore) Load() (*TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil, nil
	}
	record := *s.record
	return &record, nil
}

func (s *memSessionStore) Save(tokens *TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := *tokens
	s.record = &record
	return nil
}

func (s *memSessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	return nil
}

func (s *memSessionStore) current() *TokenSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// fakeExchanger scripts exchange and refresh behavior and counts calls.
type fakeExchanger struct {
	mu           sync.Mutex
	exchangeFn   func(code string) (*TokenSet, error)
	refreshFn    func(refreshToken string) (*TokenSet, error)
	exchangeCnt  int
	refreshCnt   int
	refreshEnter chan struct{}
	refreshGate  chan struct{}
}

func (e *fakeExchanger) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	e.mu.Lock()
	e.exchangeCnt++
	fn := e.exchangeFn
	e.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("unexpected exchange call")
	}
	return fn(code)
}

func (e *fakeExchanger) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	e.mu.Lock()
	e.refreshCnt++
	fn := e.refreshFn
	enter, gate := e.refreshEnter, e.refreshGate
	e.mu.Unlock()

	if enter != nil {
		enter <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if fn == nil {
		return nil, fmt.Errorf("unexpected refresh call")
	}
	return fn(refreshToken)
}

func (e *fakeExchanger) refreshCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshCnt
}

type controllerFixture struct {
	controller *Controller
	states     *memStateStore
	sessions   *memSessionStore
	exchanger  *fakeExchanger
	clock      *fakeClock
}

func newFixture(t *testing.T, persisted *TokenSet) *controllerFixture {
	t.Helper()

	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	states := newMemStateStore()
	states.now = clock.Now
	sessions := &memSessionStore{record: persisted}
	exchanger := &fakeExchanger{}

	urls, err := NewURLBuilder("client-id", "app://callback", []string{"user-read-private"}, states)
	if err != nil {
		t.Fatalf("failed to create url builder: %v", err)
	}

	controller, err := NewController(ControllerOpts{
		URLs:      urls,
		Redirects: NewRedirectInterpreter(states, nil),
		Exchanger: exchanger,
		Sessions:  sessions,
		Skew:      time.Minute,
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}

	return &controllerFixture{
		controller: controller,
		states:     states,
		sessions:   sessions,
		exchanger:  exchanger,
		clock:      clock,
	}
}

func (f *controllerFixture) freshTokens(ttl time.Duration) *TokenSet {
	return &TokenSet{
		AccessToken:  "A",
		TokenType:    "Bearer",
		RefreshToken: "R",
		ExpiresAt:    f.clock.Now().Add(ttl),
		CustomToken:  "F",
	}
}

func TestControllerColdStart(t *testing.T) {
	t.Run("Empty Store", func(t *testing.T) {
		f := newFixture(t, nil)
		if got := f.controller.Status().Phase; got != PhaseUnauthenticated {
			t.Errorf("expected unauthenticated, got %v", got)
		}
	})

	t.Run("Unexpired Record", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1_000_000, 0)}
		persisted := &TokenSet{
			AccessToken: "A", TokenType: "Bearer", RefreshToken: "R",
			ExpiresAt: clock.Now().Add(time.Hour), CustomToken: "F",
		}
		f := newFixture(t, persisted)

		if got := f.controller.Status().Phase; got != PhaseAuthenticated {
			t.Fatalf("expected authenticated, got %v", got)
		}

		token, err := f.controller.GetValidToken(context.Background())
		if err != nil || token != "A" {
			t.Errorf("expected restored token A, got %q (%v)", token, err)
		}
	})

	t.Run("Expired Record", func(t *testing.T) {
		persisted := &TokenSet{
			AccessToken: "A", TokenType: "Bearer",
			ExpiresAt: time.Unix(1_000_000, 0).Add(-time.Hour), CustomToken: "F",
		}
		f := newFixture(t, persisted)

		if got := f.controller.Status().Phase; got != PhaseUnauthenticated {
			t.Errorf("expected unauthenticated for expired record, got %v", got)
		}
	})
}

func TestControllerLogin(t *testing.T) {
	t.Run("BeginLogin Does Not Transition", func(t *testing.T) {
		f := newFixture(t, nil)

		authURL, err := f.controller.BeginLogin()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if authURL == "" {
			t.Fatal("expected an authorization URL")
		}
		if got := f.controller.Status().Phase; got != PhaseUnauthenticated {
			t.Errorf("expected unauthenticated after BeginLogin, got %v", got)
		}
	})

	t.Run("Successful Redirect", func(t *testing.T) {
		f := newFixture(t, nil)
		f.states.IssueFixed("abc123")

		want := f.freshTokens(time.Hour)
		f.exchanger.exchangeFn = func(code string) (*TokenSet, error) {
			if code != "XYZ" {
				t.Errorf("expected code XYZ, got %s", code)
			}
			return want, nil
		}

		if err := f.controller.HandleRedirect(context.Background(), "app://callback?code=XYZ&state=abc123"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if got := f.controller.Status().Phase; got != PhaseAuthenticated {
			t.Errorf("expected authenticated, got %v", got)
		}

		saved := f.sessions.current()
		if saved == nil || saved.AccessToken != "A" || saved.CustomToken != "F" {
			t.Errorf("expected token set persisted, got %+v", saved)
		}
	})

	t.Run("Exchange Failure Reverts", func(t *testing.T) {
		f := newFixture(t, nil)
		f.states.IssueFixed("abc123")
		f.exchanger.exchangeFn = func(code string) (*TokenSet, error) {
			return nil, fmt.Errorf("%w: status 502", shared.ErrHTTPFailure)
		}

		err := f.controller.HandleRedirect(context.Background(), "app://callback?code=XYZ&state=abc123")
		if !errors.Is(err, shared.ErrHTTPFailure) {
			t.Fatalf("expected ErrHTTPFailure, got %v", err)
		}

		if got := f.controller.Status().Phase; got != PhaseUnauthenticated {
			t.Errorf("expected auto-revert to unauthenticated, got %v", got)
		}
		if cause := f.controller.LastError(); !errors.Is(cause, shared.ErrHTTPFailure) {
			t.Errorf("expected last error preserved, got %v", cause)
		}
		if f.sessions.current() != nil {
			t.Error("expected nothing persisted on failed exchange")
		}
	})

	t.Run("Forged State Never Reaches Exchange", func(t *testing.T) {
		f := newFixture(t, nil)

		err := f.controller.HandleRedirect(context.Background(), "app://callback?code=XYZ&state=forged")
		if !errors.Is(err, shared.ErrCSRFValidation) {
			t.Fatalf("expected ErrCSRFValidation, got %v", err)
		}
		if f.exchanger.exchangeCnt != 0 {
			t.Errorf("expected zero exchange calls, got %d", f.exchanger.exchangeCnt)
		}
	})

	t.Run("Publishes Transitions", func(t *testing.T) {
		f := newFixture(t, nil)
		sub := f.controller.Subscribe()

		f.states.IssueFixed("abc123")
		f.exchanger.exchangeFn = func(code string) (*TokenSet, error) {
			return nil, fmt.Errorf("%w: status 500", shared.ErrHTTPFailure)
		}
		f.controller.HandleRedirect(context.Background(), "app://callback?code=XYZ&state=abc123")

		var phases []Phase
		for range 3 {
			phases = append(phases, (<-sub).Phase)
		}

		want := []Phase{PhaseAuthenticating, PhaseError, PhaseUnauthenticated}
		for i, phase := range want {
			if phases[i] != phase {
				t.Fatalf("expected transition %d to be %v, got %v", i, phase, phases[i])
			}
		}
	})
}

func TestGetValidToken(t *testing.T) {
	t.Run("Unauthenticated", func(t *testing.T) {
		f := newFixture(t, nil)

		_, err := f.controller.GetValidToken(context.Background())
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Fresh Token Skips Refresh", func(t *testing.T) {
		clock := time.Unix(1_000_000, 0)
		f := newFixture(t, &TokenSet{
			AccessToken: "A", TokenType: "Bearer", RefreshToken: "R",
			ExpiresAt: clock.Add(time.Hour), CustomToken: "F",
		})

		token, err := f.controller.GetValidToken(context.Background())
		if err != nil || token != "A" {
			t.Fatalf("expected token A, got %q (%v)", token, err)
		}
		if f.exchanger.refreshCalls() != 0 {
			t.Errorf("expected zero refresh calls, got %d", f.exchanger.refreshCalls())
		}
	})

	t.Run("Expired Token Refreshes", func(t *testing.T) {
		clock := time.Unix(1_000_000, 0)
		f := newFixture(t, &TokenSet{
			AccessToken: "A", TokenType: "Bearer", RefreshToken: "R",
			ExpiresAt: clock.Add(time.Hour), CustomToken: "F",
		})
		f.exchanger.refreshFn = func(refreshToken string) (*TokenSet, error) {
			if refreshToken != "R" {
				t.Errorf("expected refresh token R, got %s", refreshToken)
			}
			return &TokenSet{
				AccessToken: "A2", TokenType: "Bearer", RefreshToken: "R",
				ExpiresAt: f.clock.Now().Add(time.Hour),
			}, nil
		}

		f.clock.Advance(2 * time.Hour)

		token, err := f.controller.GetValidToken(context.Background())
		if err != nil || token != "A2" {
			t.Fatalf("expected refreshed token A2, got %q (%v)", token, err)
		}

		saved := f.sessions.current()
		if saved == nil || saved.AccessToken != "A2" {
			t.Errorf("expected refreshed set persisted, got %+v", saved)
		}
		if saved != nil && saved.CustomToken != "F" {
			t.Errorf("expected custom token carried forward, got %q", saved.CustomToken)
		}
	})

	t.Run("Concurrent Callers Coalesce", func(t *testing.T) {
		clock := time.Unix(1_000_000, 0)
		f := newFixture(t, &TokenSet{
			AccessToken: "A", TokenType: "Bearer", RefreshToken: "R",
			ExpiresAt: clock.Add(time.Hour), CustomToken: "F",
		})
		f.exchanger.refreshFn = func(refreshToken string) (*TokenSet, error) {
			time.Sleep(50 * time.Millisecond)
			return &TokenSet{
				AccessToken: "A2", TokenType: "Bearer", RefreshToken: "R",
				ExpiresAt: f.clock.Now().Add(time.Hour), CustomToken: "F",
			}, nil
		}

		f.clock.Advance(2 * time.Hour)

		const callers = 10
		var wg sync.WaitGroup
		results := make(chan string, callers)
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				token, err := f.controller.GetValidToken(context.Background())
				if err != nil {
					t.Errorf("expected no error, got %v", err)
					return
				}
				results <- token
			}()
		}
		wg.Wait()
		close(results)

		for token := range results {
			if token != "A2" {
				t.Errorf("expected every caller to get A2, got %q", token)
			}
		}
		if got := f.exchanger.refreshCalls(); got != 1 {
			t.Errorf("expected exactly one refresh request, got %d", got)
		}
	})

	t.Run("Invalid Refresh Token Forces Relogin", func(t *testing.T) {
		clock := time.Unix(1_000_000, 0)
		f := newFixture(t, &TokenSet{
			AccessToken: "A", TokenType: "Bearer", RefreshToken: "R",
			ExpiresAt: clock.Add(time.Hour), CustomToken: "F",
		})
		f.exchanger.refreshFn = func(refreshToken string) (*TokenSet, error) {
			return nil, fmt.Errorf("%w: status 401", shared.ErrRefreshInvalid)
		}

		f.clock.Advance(2 * time.Hour)

		_, err := f.controller.GetValidToken(context.Background())
		if !errors.Is(err, shared.ErrRefreshInvalid) {
			t.Fatalf("expected ErrRefreshInvalid, got %v", err)
		}

		if got := f.controller.Status().Phase; got != PhaseUnauthenticated {
			t.Errorf("expected unauthenticated, got %v", got)
		}
		if f.sessions.current() != nil {
			t.Error("expected persisted session cleared")
		}
	})

	t.Run("Transient Refresh Failure Keeps Session", func(t *testing.T) {
		clock := time.Unix(1_000_000, 0)
		f := newFixture(t, &TokenSet{
			AccessToken: "A", TokenType: "Bearer", RefreshToken: "R",
			ExpiresAt: clock.Add(time.Hour), CustomToken: "F",
		})
		f.exchanger.refreshFn = func(refreshToken string) (*TokenSet, error) {
			return nil, fmt.Errorf("%w: connection reset", shared.ErrNetworkFailure)
		}

		f.clock.Advance(2 * time.Hour)

		_, err := f.controller.GetValidToken(context.Background())
		if !errors.Is(err, shared.ErrNetworkFailure) {
			t.Fatalf("expected ErrNetworkFailure, got %v", err)
		}

		if got := f.controller.Status().Phase; got != PhaseAuthenticated {
			t.Errorf("expected session to survive a transient failure, got %v", got)
		}
		if f.sessions.current() == nil {
			t.Error("expected persisted session intact")
		}
	})
}

func TestLogout(t *testing.T) {
	t.Run("Clears Session", func(t *testing.T) {
		clock := time.Unix(1_000_000, 0)
		f := newFixture(t, &TokenSet{
			AccessToken: "A", TokenType: "Bearer", RefreshToken: "R",
			ExpiresAt: clock.Add(time.Hour), CustomToken: "F",
		})

		if err := f.controller.Logout(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if got := f.controller.Status().Phase; got != PhaseUnauthenticated {
			t.Errorf("expected unauthenticated, got %v", got)
		}
		if f.sessions.current() != nil {
			t.Error("expected persisted session cleared")
		}
		if _, err := f.controller.GetValidToken(context.Background()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated after logout, got %v", err)
		}
	})

	t.Run("Discards In-Flight Refresh", func(t *testing.T) {
		clock := time.Unix(1_000_000, 0)
		f := newFixture(t, &TokenSet{
			AccessToken: "A", TokenType: "Bearer", RefreshToken: "R",
			ExpiresAt: clock.Add(time.Hour), CustomToken: "F",
		})

		f.exchanger.refreshEnter = make(chan struct{}, 1)
		f.exchanger.refreshGate = make(chan struct{})
		f.exchanger.refreshFn = func(refreshToken string) (*TokenSet, error) {
			return &TokenSet{
				AccessToken: "A2", TokenType: "Bearer", RefreshToken: "R",
				ExpiresAt: f.clock.Now().Add(time.Hour), CustomToken: "F",
			}, nil
		}

		f.clock.Advance(2 * time.Hour)

		result := make(chan error, 1)
		go func() {
			_, err := f.controller.GetValidToken(context.Background())
			result <- err
		}()

		<-f.exchanger.refreshEnter // refresh request is now in flight

		if err := f.controller.Logout(); err != nil {
			t.Fatalf("logout failed: %v", err)
		}
		close(f.exchanger.refreshGate)

		if err := <-result; !errors.Is(err, shared.ErrSessionEnded) {
			t.Fatalf("expected ErrSessionEnded, got %v", err)
		}

		if f.sessions.current() != nil {
			t.Error("expected stale refresh result not persisted")
		}
		if got := f.controller.Status().Phase; got != PhaseUnauthenticated {
			t.Errorf("expected unauthenticated, got %v", got)
		}
	})
}

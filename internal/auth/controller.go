package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cadence/internal/shared"
	"golang.org/x/sync/singleflight"
)

// DefaultSkew is the safety margin subtracted from token expiry so refresh
// happens before the provider actually rejects the token.
const DefaultSkew = 60 * time.Second

// Phase identifies the controller's current authentication state.
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the controller's observable state.
// Err is set only while Phase is [PhaseError].
type Status struct {
	Phase Phase
	Err   error
}

// Controller is the auth session state machine. It owns the only mutable
// shared state in the subsystem and is the single source of truth for
// "are we logged in" and "what token do I attach to this request".
//
// All transitions are serialized through one mutex; concurrent refreshes
// are coalesced so at most one refresh request is in flight per session.
type Controller struct {
	mu         sync.Mutex
	phase      Phase
	lastErr    error
	tokens     *TokenSet
	generation string
	subs       []chan Status

	urls      *URLBuilder
	redirects *RedirectInterpreter
	exchanger Exchanger
	sessions  SessionStore
	logger    *log.Logger
	skew      time.Duration
	now       func() time.Time

	group singleflight.Group
}

// ControllerOpts contains the dependencies for creating a Controller.
//
// Everything is injected at process-composition time; the controller keeps
// no ambient global state.
type ControllerOpts struct {
	URLs      *URLBuilder
	Redirects *RedirectInterpreter
	Exchanger Exchanger
	Sessions  SessionStore
	Logger    *log.Logger
	Skew      time.Duration
	Now       func() time.Time
}

// NewController creates a Controller and restores the session from the
// persisted record: an unexpired TokenSet means the process starts out
// authenticated without re-running the OAuth handshake.
func NewController(opts ControllerOpts) (*Controller, error) {
	if opts.URLs == nil || opts.Redirects == nil || opts.Exchanger == nil || opts.Sessions == nil {
		return nil, fmt.Errorf("%w: controller requires url builder, redirect interpreter, exchanger and session store", shared.ErrInvalidArgument)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Skew <= 0 {
		opts.Skew = DefaultSkew
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Controller{
		phase:      PhaseUnauthenticated,
		generation: shared.GenerateID(),
		urls:       opts.URLs,
		redirects:  opts.Redirects,
		exchanger:  opts.Exchanger,
		sessions:   opts.Sessions,
		logger:     opts.Logger,
		skew:       opts.Skew,
		now:        opts.Now,
	}

	tokens, err := c.sessions.Load()
	if err != nil {
		// A read failure means "no session", not a dead controller.
		c.logger.Warn("failed to load persisted session", "error", err)
		return c, nil
	}

	if tokens != nil && !tokens.Expired(c.now(), 0) {
		c.tokens = tokens
		c.phase = PhaseAuthenticated
		c.logger.Info("restored persisted session", "expires_at", tokens.ExpiresAt)
	}

	return c, nil
}

// BeginLogin issues a fresh state token and returns the authorization URL to
// hand to the external browser. The state machine does not move; transitions
// happen only when the redirect comes back.
func (c *Controller) BeginLogin() (string, error) {
	authURL, state, err := c.urls.Build()
	if err != nil {
		return "", err
	}

	c.logger.Info("authorization URL built", "state_issued_at", state.CreatedAt)
	return authURL, nil
}

// HandleRedirect is the single inbound path for OAuth callbacks. It
// interprets the redirect, exchanges the code, persists the TokenSet and
// establishes the federated session.
//
// Any failure surfaces as an error transition followed by an automatic
// revert to unauthenticated, so the application is never stuck mid-login.
func (c *Controller) HandleRedirect(ctx context.Context, callbackURI string) error {
	code, err := c.redirects.Handle(callbackURI)
	if err != nil {
		c.fail(err)
		return err
	}

	c.transition(Status{Phase: PhaseAuthenticating})

	tokens, err := c.exchanger.ExchangeCode(ctx, code, c.urls.RedirectURI())
	if err != nil {
		c.fail(err)
		return err
	}

	if claims, cerr := tokens.CustomTokenClaims(); cerr == nil {
		if sub, serr := claims.GetSubject(); serr == nil && sub != "" {
			c.logger.Info("federated session established", "subject", sub)
		}
	} else {
		c.logger.Debug("custom token claims not decodable", "error", cerr)
	}

	c.mu.Lock()
	if err := c.sessions.Save(tokens); err != nil {
		c.mu.Unlock()
		werr := fmt.Errorf("%w: %v", shared.ErrPersistenceFailure, err)
		c.fail(werr)
		return werr
	}
	c.tokens = tokens
	c.generation = shared.GenerateID()
	c.transitionLocked(Status{Phase: PhaseAuthenticated})
	c.mu.Unlock()

	return nil
}

// GetValidToken returns an access token guaranteed to be inside its validity
// window. This is the only entry point protected calls use.
//
// When the token is inside the expiry skew a refresh runs first; concurrent
// callers arriving while a refresh is outstanding await the same in-flight
// result rather than issuing duplicate requests.
func (c *Controller) GetValidToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.phase != PhaseAuthenticated || c.tokens == nil {
		c.mu.Unlock()
		return "", shared.ErrNotAuthenticated
	}
	if !c.tokens.Expired(c.now(), c.skew) {
		token := c.tokens.AccessToken
		c.mu.Unlock()
		return token, nil
	}
	generation := c.generation
	c.mu.Unlock()

	result, err, _ := c.group.Do(generation, func() (any, error) {
		return c.refresh(ctx, generation)
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

// refresh performs one refresh exchange for the given session generation.
// Results are discarded when the generation changed while the request was in
// flight, so a logged-out session cannot be resurrected by a stale response.
func (c *Controller) refresh(ctx context.Context, generation string) (string, error) {
	c.mu.Lock()
	if c.generation != generation || c.tokens == nil {
		c.mu.Unlock()
		return "", shared.ErrSessionEnded
	}
	if !c.tokens.Expired(c.now(), c.skew) {
		// Another flight already replaced the tokens.
		token := c.tokens.AccessToken
		c.mu.Unlock()
		return token, nil
	}
	prior := *c.tokens
	c.mu.Unlock()

	if prior.RefreshToken == "" {
		c.logger.Warn("access token expired with no refresh token, forcing re-login")
		c.invalidate(generation)
		return "", shared.ErrRefreshInvalid
	}

	fresh, err := c.exchanger.Refresh(ctx, prior.RefreshToken)
	if err != nil {
		if errors.Is(err, shared.ErrRefreshInvalid) {
			c.logger.Warn("refresh token rejected, forcing re-login")
			c.invalidate(generation)
		}
		return "", err
	}

	// Refresh responses omit the custom token; the committed record keeps it.
	if fresh.CustomToken == "" {
		fresh.CustomToken = prior.CustomToken
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != generation {
		c.logger.Info("discarding refresh result from ended session")
		return "", shared.ErrSessionEnded
	}
	if err := c.sessions.Save(fresh); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPersistenceFailure, err)
	}
	c.tokens = fresh

	return fresh.AccessToken, nil
}

// Logout clears the persisted record and ends the federated session. Safe to
// call while a refresh is in flight: the generation bump makes the in-flight
// result land in a dead session.
func (c *Controller) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sessions.Clear(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPersistenceFailure, err)
	}

	c.tokens = nil
	c.generation = shared.GenerateID()
	c.transitionLocked(Status{Phase: PhaseUnauthenticated})

	return nil
}

// invalidate tears down the session for the given generation after the
// provider declared its refresh token dead.
func (c *Controller) invalidate(generation string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != generation {
		return
	}

	if err := c.sessions.Clear(); err != nil {
		c.logger.Warn("failed to clear persisted session", "error", err)
	}
	c.tokens = nil
	c.generation = shared.GenerateID()
	c.transitionLocked(Status{Phase: PhaseUnauthenticated})
}

// Status returns the current state snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{Phase: c.phase}
}

// LastError returns the cause of the most recent error transition, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Tokens returns a copy of the committed TokenSet, or nil when unauthenticated.
func (c *Controller) Tokens() *TokenSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil {
		return nil
	}
	tokens := *c.tokens
	return &tokens
}

// Subscribe returns a channel receiving every state transition. Slow
// consumers drop transitions rather than blocking the state machine.
func (c *Controller) Subscribe() <-chan Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Status, 8)
	c.subs = append(c.subs, ch)
	return ch
}

// fail publishes an error transition and reverts to unauthenticated so the
// machine remains usable for the next BeginLogin.
func (c *Controller) fail(cause error) {
	c.logger.Warn("auth flow failed", "error", cause)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = cause
	c.transitionLocked(Status{Phase: PhaseError, Err: cause})
	c.transitionLocked(Status{Phase: PhaseUnauthenticated})
}

func (c *Controller) transition(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionLocked(s)
}

// transitionLocked applies a state change and notifies subscribers.
// Callers must hold c.mu.
func (c *Controller) transitionLocked(s Status) {
	c.phase = s.Phase
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Package auth implements the OAuth 2.0 authorization-code flow against the
// music provider and bridges the resulting credential into the cadence
// backend session.
//
// # Flow
//
// The [URLBuilder] issues a CSRF state token through a [StateStore] and
// composes the provider authorize URL. The user completes consent in an
// external browser; the redirect comes back through the local callback
// server and is handed to [Controller.HandleRedirect], which runs the
// [RedirectInterpreter] (state consumption and code extraction) before any
// network call, then exchanges the code through the [Exchanger].
//
// On success the backend response carries provider tokens plus a federated
// custom token, persisted as a [TokenSet] through a [SessionStore] so the
// session survives process restarts.
//
// # State machine
//
// The [Controller] owns the only mutable shared state in the subsystem: a
// closed set of phases (unauthenticated, authenticating, authenticated,
// error). Every transition is serialized through one mutex. [Controller.GetValidToken]
// is the single entry point for protected calls; it never returns an
// expired token, refreshes proactively inside the expiry skew, and
// coalesces concurrent refreshes through [singleflight.Group] so N callers
// on an expired token trigger exactly one refresh request.
//
// # State tokens
//
// State tokens are 32 random bytes, base64url without padding, valid for
// ten minutes and consumed on first validation attempt regardless of
// outcome. Validation failures are uniform: callers cannot tell a missing
// record from an expired or replayed one.
package auth

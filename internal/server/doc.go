// Package server provides the temporary local HTTP server that catches the
// OAuth redirect during CLI login.
//
// # Callback delivery
//
// [CallbackHandler] is the single inbound event path for redirects: it
// forwards the raw callback URI to a [RedirectSink] (the auth controller)
// and reports the outcome once through [CallbackHandler.Result]. The
// controller's reaction to that event is the only place auth state mutates
// from this source, so the single-writer discipline of the state machine
// holds.
//
// The handler processes one callback and rejects the rest; state validation,
// code extraction and the token exchange all live behind the sink.
//
// # Lifecycle
//
// The login command starts an [http.Server] over [Router] on localhost,
// waits on the result channel (or a timeout), then shuts the server down.
package server

package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// RedirectSink consumes the raw callback URI. The auth controller satisfies
// this; keeping it behind an interface means the handler never touches the
// token machinery itself.
type RedirectSink interface {
	HandleRedirect(ctx context.Context, callbackURI string) error
}

// CallbackHandler receives the OAuth redirect and forwards it to the auth
// controller as the single inbound event path for login completion.
//
// It processes exactly one callback; later deliveries (double redirects,
// replayed URLs) get a 400 without reaching the controller again.
type CallbackHandler struct {
	sink       RedirectSink
	resultChan chan error
	once       sync.Once
	handled    bool
	mu         sync.Mutex
}

// NewCallbackHandler creates a CallbackHandler delivering into the given sink.
func NewCallbackHandler(sink RedirectSink) *CallbackHandler {
	return &CallbackHandler{
		sink:       sink,
		resultChan: make(chan error, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"/callback"}
}

// ServeHTTP handles the OAuth callback request.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.handled {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.handled = true
	h.mu.Unlock()

	err := h.sink.HandleRedirect(r.Context(), r.URL.String())
	h.send(err)

	if err != nil {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, failurePage)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successPage)
}

// send delivers the flow result through the channel (only once).
func (h *CallbackHandler) send(err error) {
	h.once.Do(func() {
		h.resultChan <- err
		close(h.resultChan)
	})
}

// Result returns the channel receiving the login flow outcome.
//
// The channel receives exactly one value and is then closed.
func (h *CallbackHandler) Result() <-chan error {
	return h.resultChan
}

const successPage = `
<!DOCTYPE html>
<html>
<head>
    <title>Login Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>&#10003; Login Successful</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`

const failurePage = `
<!DOCTYPE html>
<html>
<head>
    <title>Login Failed</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #CC0000; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>&#10007; Login Failed</h1>
        <p>Return to the terminal and try again.</p>
    </div>
</body>
</html>
`

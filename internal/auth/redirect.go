package auth

import (
	"fmt"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cadence/internal/shared"
)

// RedirectInterpreter parses the OAuth callback URI and validates its state
// parameter before anything else touches the network.
type RedirectInterpreter struct {
	states StateStore
	logger *log.Logger
}

// NewRedirectInterpreter creates a RedirectInterpreter backed by the given state store.
func NewRedirectInterpreter(states StateStore, logger *log.Logger) *RedirectInterpreter {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &RedirectInterpreter{states: states, logger: logger}
}

// Handle extracts error, code and state from the callback URI and returns the
// authorization code on success.
//
// The pending state record is always consumed first, whether or not the
// redirect carries an error or a code, so a given callback burns its state
// exactly once. Reported errors take precedence in this order:
// provider error parameter, missing code, state validation failure.
func (ri *RedirectInterpreter) Handle(callbackURI string) (string, error) {
	u, err := url.Parse(callbackURI)
	if err != nil {
		return "", fmt.Errorf("%w: unparsable callback URI: %v", shared.ErrInvalidArgument, err)
	}

	query := u.Query()

	// Consume the state up front: forged, stale and replayed redirects must
	// never reach the token endpoint, and an error redirect still burns its
	// pending record.
	stateOK := ri.states.ValidateAndConsume(query.Get("state"))
	if !stateOK {
		ri.logger.Warn("callback state failed validation", "uri_host", u.Host)
	}

	if reason := query.Get("error"); reason != "" {
		return "", fmt.Errorf("%w: %s", shared.ErrProviderDenied, reason)
	}

	code := query.Get("code")
	if code == "" {
		return "", shared.ErrMissingAuthCode
	}

	if !stateOK {
		return "", shared.ErrCSRFValidation
	}

	return code, nil
}

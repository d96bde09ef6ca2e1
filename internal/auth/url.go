package auth

import (
	"fmt"

	"github.com/desertthunder/cadence/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// URLBuilder composes the provider authorization URL for the code flow.
//
// Aside from issuing the state token it is a pure composition function:
// [oauth2.Config.AuthCodeURL] serializes response_type=code, client_id,
// redirect_uri, the space-joined scope list (order preserved) and state.
type URLBuilder struct {
	config *oauth2.Config
	states StateStore
}

// NewURLBuilder creates a URLBuilder for the given Spotify client settings.
func NewURLBuilder(clientID, redirectURI string, scopes []string, states StateStore) (*URLBuilder, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: client_id", shared.ErrMissingCredentials)
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("%w: redirect_uri", shared.ErrMissingCredentials)
	}

	config := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURI,
		Scopes:      scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &URLBuilder{config: config, states: states}, nil
}

// Build issues a new state token and returns the authorization URL along with it.
func (b *URLBuilder) Build() (string, StateToken, error) {
	state, err := b.states.Issue()
	if err != nil {
		return "", StateToken{}, fmt.Errorf("failed to issue state token: %w", err)
	}
	return b.config.AuthCodeURL(state.Value), state, nil
}

// RedirectURI returns the configured callback URI, echoed to the token endpoint on exchange.
func (b *URLBuilder) RedirectURI() string {
	return b.config.RedirectURL
}

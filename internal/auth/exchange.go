package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cadence/internal/shared"
)

const (
	tokenPath   = "/auth/token"
	refreshPath = "/auth/refresh"

	// DefaultExchangeTimeout bounds a single token endpoint call. There is no
	// cancellation mid-exchange in normal operation; this is the only
	// termination mechanism, after which the call resolves to a network failure.
	DefaultExchangeTimeout = 30 * time.Second
)

// Exchanger performs the code and refresh exchanges against the backend token endpoints.
type Exchanger interface {
	// ExchangeCode trades a single-use authorization code for a TokenSet.
	// Never retried: a failed exchange means re-running the whole
	// authorization flow, not this call.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error)

	// Refresh trades a refresh token for a new TokenSet. When the response
	// omits a rotated refresh token the prior one is carried forward.
	// A failure wrapping [shared.ErrRefreshInvalid] means the refresh token
	// itself is dead and the caller must force a full re-login.
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
}

// ExchangeClient implements [Exchanger] over the cadence backend, which
// validates the provider identity and mints the federated custom token.
type ExchangeClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	now        func() time.Time
}

// NewExchangeClient creates an ExchangeClient for the backend at baseURL.
//
// The client defaults to one with [DefaultExchangeTimeout].
func NewExchangeClient(baseURL string, client *http.Client, logger *log.Logger) *ExchangeClient {
	if client == nil {
		client = &http.Client{Timeout: DefaultExchangeTimeout}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &ExchangeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		logger:     logger,
		now:        time.Now,
	}
}

// tokenResponse is the backend token endpoint payload. The custom token is
// required on code exchange and absent on refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	CustomToken  string `json:"firebaseCustomToken"`
}

// ExchangeCode implements [Exchanger].
func (c *ExchangeClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	form := url.Values{
		"code":         {code},
		"redirect_uri": {redirectURI},
	}

	body, err := c.post(ctx, tokenPath, form, true)
	if err != nil {
		return nil, err
	}

	if body.AccessToken == "" || body.CustomToken == "" {
		return nil, fmt.Errorf("%w: missing access or custom token", shared.ErrMalformedResponse)
	}

	return c.toTokenSet(body), nil
}

// Refresh implements [Exchanger].
func (c *ExchangeClient) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{"refresh_token": {refreshToken}}

	body, err := c.post(ctx, refreshPath, form, false)
	if err != nil {
		return nil, err
	}

	if body.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", shared.ErrMalformedResponse)
	}

	tokens := c.toTokenSet(body)
	if tokens.RefreshToken == "" {
		// Providers commonly do not rotate the refresh token every time.
		tokens.RefreshToken = refreshToken
	}

	return tokens, nil
}

// post issues one form-encoded POST and classifies the outcome.
//
// exchange distinguishes the code-exchange call, where 4xx means the code
// was bad or expired, from refresh, where 400/401 invalidates the refresh
// token itself.
func (c *ExchangeClient) post(ctx context.Context, path string, form url.Values, exchange bool) (*tokenResponse, error) {
	endpoint := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("token endpoint returned error", "path", path, "status", resp.StatusCode)

		switch {
		case exchange && resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, fmt.Errorf("%w: status %d", shared.ErrProviderRejected, resp.StatusCode)
		case !exchange && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized):
			return nil, fmt.Errorf("%w: status %d", shared.ErrRefreshInvalid, resp.StatusCode)
		default:
			return nil, fmt.Errorf("%w: status %d", shared.ErrHTTPFailure, resp.StatusCode)
		}
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
	}

	return &body, nil
}

// toTokenSet maps the wire payload to a TokenSet with an absolute expiry.
func (c *ExchangeClient) toTokenSet(body *tokenResponse) *TokenSet {
	expiresIn := time.Duration(body.ExpiresIn) * time.Second
	if body.ExpiresIn <= 0 {
		expiresIn = DefaultExpiry
	}

	tokenType := body.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &TokenSet{
		AccessToken:  body.AccessToken,
		TokenType:    tokenType,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    c.now().Add(expiresIn),
		CustomToken:  body.CustomToken,
	}
}

package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication flow errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrCSRFValidation   = fmt.Errorf("state validation failed")
	ErrProviderDenied   = fmt.Errorf("provider denied authorization")
	ErrMissingAuthCode  = fmt.Errorf("missing authorization code")
	ErrSessionEnded     = fmt.Errorf("session ended")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Token endpoint errors
	ErrNetworkFailure     = fmt.Errorf("network failure")
	ErrHTTPFailure        = fmt.Errorf("unexpected HTTP status")
	ErrMalformedResponse  = fmt.Errorf("malformed token response")
	ErrProviderRejected   = fmt.Errorf("provider rejected authorization code")
	ErrRefreshInvalid     = fmt.Errorf("refresh token invalid")
	ErrPersistenceFailure = fmt.Errorf("session persistence failed")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrArtistNotFound     = fmt.Errorf("artist not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/cadence/internal/auth"
	"github.com/desertthunder/cadence/internal/server"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin runs the full OAuth2 authorization flow.
//
// Builds the authorization URL, opens the browser, serves the redirect on a
// temporary local server and waits for the controller to finish the
// exchange.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireAuth(); err != nil {
		return err
	}

	authURL, err := r.controller.BeginLogin()
	if err != nil {
		return fmt.Errorf("failed to begin login: %w", err)
	}

	handler := server.NewCallbackHandler(r.controller)
	router := server.NewRouter()
	router.Use(server.Logging(r.logger))
	router.Handler(handler)

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	httpServer := &http.Server{Addr: serverAddr, Handler: router}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting callback server at %v", serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	r.writePlain("Open this URL to log in:\n\n  %s\n\n", authURL)
	if !cmd.Bool("no-browser") {
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser %v", err)
		}
	}

	timeout := time.Duration(cmd.Int("timeout")) * time.Second

	var flowErr error
	select {
	case flowErr = <-handler.Result():
	case flowErr = <-serverErrors:
	case <-time.After(timeout):
		flowErr = fmt.Errorf("%w: no callback received within %v", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		flowErr = ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warnf("callback server shutdown failed %v", err)
	}

	if flowErr != nil {
		r.writePlain("%s %v\n", r.palette.Err("✗"), flowErr)
		return flowErr
	}

	r.writePlain("%s\n", r.palette.OK("✓ Login successful"))
	if tokens := r.controller.Tokens(); tokens != nil {
		r.writePlain("Access token valid until %s\n", tokens.ExpiresAt.Format(time.RFC1123))
	}
	r.writePlain("%s\n", r.palette.Help("You can now use: cadence library tracks"))

	return nil
}

// AuthStatus reports the controller's current state and token expiry.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireAuth(); err != nil {
		return err
	}

	status := r.controller.Status()

	switch status.Phase {
	case auth.PhaseAuthenticated:
		r.writePlain("%s\n", r.palette.OK("✓ Authenticated"))
	case auth.PhaseAuthenticating:
		r.writePlain("%s\n", r.palette.Warn("… Login in progress"))
	default:
		r.writePlain("%s\n", r.palette.Err("✗ Not authenticated"))
	}

	tokens := r.controller.Tokens()
	if tokens == nil {
		if cause := r.controller.LastError(); cause != nil {
			r.writePlain("Last error: %v\n", cause)
		}
		return nil
	}

	r.writePlain("Token type: %s\n", tokens.TokenType)
	r.writePlain("Expires at: %s\n", tokens.ExpiresAt.Format(time.RFC1123))
	if tokens.RefreshToken != "" {
		r.writePlain("Refresh token: present\n")
	}

	if claims, err := tokens.CustomTokenClaims(); err == nil {
		if sub, serr := claims.GetSubject(); serr == nil && sub != "" {
			r.writePlain("Federated subject: %s\n", sub)
		}
	}

	return nil
}

// AuthLogout clears the persisted session.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireAuth(); err != nil {
		return err
	}

	if err := r.controller.Logout(); err != nil {
		return err
	}

	r.logger.Info("session cleared")
	r.writePlain("%s\n", r.palette.OK("✓ Logged out"))
	return nil
}

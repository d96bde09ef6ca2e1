package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/desertthunder/cadence/internal/auth"
	"github.com/desertthunder/cadence/internal/repositories"
	"github.com/desertthunder/cadence/internal/services"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loaded, err := shared.LoadConfig("config.toml"); err == nil {
			config = loaded
		} else {
			logger.Warnf("failed to load config.toml, using defaults %v", err)
		}
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		logger.Fatalf("failed to open database %v", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		logger.Fatalf("failed to run migrations %v", err)
	}

	states := repositories.NewStateRepository(db, logger)
	if evicted, err := states.EvictExpired(); err != nil {
		logger.Warnf("failed to evict expired states %v", err)
	} else if evicted > 0 {
		logger.Debugf("evicted %d expired state tokens", evicted)
	}

	sessions := repositories.NewSessionRepository(db, logger)

	var controller *auth.Controller
	var spotify *services.Spotify
	var artists *repositories.ArtistCache

	if config.Credentials.Spotify.ClientID != "" {
		urls, err := auth.NewURLBuilder(
			config.Credentials.Spotify.ClientID,
			config.Credentials.Spotify.RedirectURI,
			config.Credentials.Spotify.Scopes,
			states,
		)
		if err != nil {
			logger.Fatalf("failed to build authorization config %v", err)
		}

		timeout := time.Duration(config.Backend.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = auth.DefaultExchangeTimeout
		}
		exchanger := auth.NewExchangeClient(config.Backend.BaseURL, &http.Client{Timeout: timeout}, logger)
		redirects := auth.NewRedirectInterpreter(states, logger)

		controller, err = auth.NewController(auth.ControllerOpts{
			URLs:      urls,
			Redirects: redirects,
			Exchanger: exchanger,
			Sessions:  sessions,
			Logger:    logger,
		})
		if err != nil {
			logger.Fatalf("failed to create auth controller %v", err)
		}

		spotify = services.NewSpotify(controller, nil, logger)
		artists = repositories.NewArtistCache(spotify, logger)
	} else {
		logger.Warn("no Spotify client ID configured, auth commands disabled")
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		Controller: controller,
		Spotify:    spotify,
		Artists:    artists,
		Logger:     logger,
	})

	root := &cli.Command{
		Name:     "cadence",
		Usage:    "Workout music companion for Spotify",
		Commands: runner.register(),
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

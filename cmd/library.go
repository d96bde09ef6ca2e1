package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/cadence/internal/shared"
	"github.com/urfave/cli/v3"
)

// LibraryProfile prints the authenticated user's Spotify profile.
func (r *Runner) LibraryProfile(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireAuth(); err != nil {
		return err
	}

	user, err := r.spotify.UserProfile(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, cmd.Bool("pretty"))
	}

	r.writePlain("%s\n", r.palette.Title(user.DisplayName))
	r.writePlain("ID: %s\n", user.ID)
	if user.Email != "" {
		r.writePlain("Email: %s\n", user.Email)
	}
	if user.Product != "" {
		r.writePlain("Plan: %s\n", user.Product)
	}

	return nil
}

// LibraryTracks lists the user's saved tracks with pagination.
func (r *Runner) LibraryTracks(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireAuth(); err != nil {
		return err
	}

	limit := cmd.Int("limit")
	offset := cmd.Int("offset")

	r.logger.Infof("listing saved tracks limit %v offset %v", limit, offset)

	page, err := r.spotify.SavedTracks(ctx, int(limit), int(offset))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(page, cmd.Bool("pretty"))
	}

	r.writePlain("Saved tracks %d-%d of %d:\n\n", page.Offset+1, page.Offset+len(page.Items), page.Total)
	for i, item := range page.Items {
		artist := ""
		if len(item.Track.Artists) > 0 {
			artist = item.Track.Artists[0].Name + " - "
		}
		r.writePlain("%d. %s%s\n", page.Offset+i+1, artist, item.Track.Name)
	}

	return nil
}

// LibraryArtists resolves the artists behind a workout's track mix, served
// from the artist cache when warm.
func (r *Runner) LibraryArtists(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireAuth(); err != nil {
		return err
	}

	workoutID := cmd.String("workout")
	artistIDs := cmd.StringSlice("id")

	if workoutID == "" {
		return fmt.Errorf("%w: --workout flag is required", shared.ErrMissingArgument)
	}
	if len(artistIDs) == 0 {
		return fmt.Errorf("%w: at least one --id is required", shared.ErrMissingArgument)
	}

	artists, err := r.artists.ForWorkout(ctx, workoutID, artistIDs)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(artists, cmd.Bool("pretty"))
	}

	r.writePlain("Artists for workout %s:\n\n", workoutID)
	for i, artist := range artists {
		r.writePlain("%d. %s\n", i+1, artist.Name)
		if len(artist.Genres) > 0 {
			r.writePlain("   Genres: %v\n", artist.Genres)
		}
	}

	return nil
}

package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cadence/internal/services"
	"github.com/desertthunder/cadence/internal/shared"
	gocache "github.com/patrickmn/go-cache"
)

// ArtistSource fetches artists from the upstream API.
// [services.Spotify] satisfies this.
type ArtistSource interface {
	Artist(ctx context.Context, artistID string) (*services.Artist, error)
}

// ArtistCache memoizes artists-for-workout lookups.
//
// Entries expire after one hour; the cache library does its own atomic
// check-then-act on expiry, so concurrent readers never see a stale entry.
type ArtistCache struct {
	cache  *gocache.Cache
	source ArtistSource
	logger *log.Logger
}

// NewArtistCache creates an ArtistCache in front of the given source.
func NewArtistCache(source ArtistSource, logger *log.Logger) *ArtistCache {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &ArtistCache{
		cache:  gocache.New(time.Hour, 10*time.Minute),
		source: source,
		logger: logger,
	}
}

// ForWorkout resolves the artist records behind a workout's track mix,
// serving from cache when the workout was resolved within the last hour.
func (c *ArtistCache) ForWorkout(ctx context.Context, workoutID string, artistIDs []string) ([]services.Artist, error) {
	if workoutID == "" {
		return nil, fmt.Errorf("%w: workout ID", shared.ErrMissingArgument)
	}

	if cached, ok := c.cache.Get(workoutID); ok {
		artists, ok := cached.([]services.Artist)
		if ok {
			c.logger.Debug("artist cache hit", "workout", workoutID)
			return artists, nil
		}
	}

	artists := make([]services.Artist, 0, len(artistIDs))
	for _, id := range artistIDs {
		artist, err := c.source.Artist(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", shared.ErrArtistNotFound, id, err)
		}
		artists = append(artists, *artist)
	}

	c.cache.SetDefault(workoutID, artists)
	c.logger.Debug("artist cache filled", "workout", workoutID, "artists", len(artists))

	return artists, nil
}

// Invalidate drops the cached entry for a workout.
func (c *ArtistCache) Invalidate(workoutID string) {
	c.cache.Delete(workoutID)
}

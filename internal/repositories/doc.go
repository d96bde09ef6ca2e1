// Package repositories provides the persistence layer behind the auth
// interfaces plus caching for music-domain lookups.
//
// [StateRepository] and [SessionRepository] implement auth.StateStore and
// auth.SessionStore over SQLite, so both the committed session and any
// pending login state survive process restarts. [ArtistCache] keeps
// artists-by-workout lookups in an expiring in-memory cache in front of the
// Spotify client.
package repositories

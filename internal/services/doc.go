// Package services contains clients for the external APIs the application
// talks to once a session exists.
//
// The [Spotify] client never holds credentials itself: every request asks
// the auth controller for a currently valid token through [TokenProvider],
// so expiry and refresh stay the controller's problem. Requests are paced
// with a client-side [rate.Limiter] to stay under the Web API quota.
package services

// Package services contains the clients for the two external services the sync engine depends on.
//
// # Playback
//
// [PlaybackClient] implements [PlaybackSource] against the Spotify Web API. It runs an ordered cascade of
// [Strategy] values, each yielding a [Result] with a tri-state [Outcome]:
//
//   - [CurrentlyPlaying] : /me/player/currently-playing with market and episode support
//   - [PlayerState] : /me/player, the superset endpoint
//   - [RecentlyPlayed] : /me/player/recently-played?limit=1, marked as not playing
//
// When every strategy comes up empty a device diagnostic is logged. Nothing playing is a nil track, not an error.
//
// # Session
//
// [Session] owns the OAuth2 token built on [oauth2.Config]. Tokens are refreshed before any request once they are
// within five minutes of expiry. An unauthorized response triggers at most one refresh per poll cycle.
//
// # Lyrics
//
// [LrclibClient] implements [LyricsIndex] on top of [APIService], throttled with [rate.Limiter].
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : no token has been issued or restored
//   - [shared.ErrTokenExpired] : the API answered 401
//   - [shared.ErrRefreshFailed] : the token endpoint rejected the refresh
//   - [shared.ErrAPIRequest] : HTTP request failed or returned a non-success status
//   - [shared.ErrTimeout] : a request exceeded its deadline
package services

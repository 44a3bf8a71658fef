package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrNoBrowser        = fmt.Errorf("cannot open a browser")

	// Fetch errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrTimeout            = fmt.Errorf("operation timed out")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrMalformedResponse  = fmt.Errorf("malformed response")

	// Lyrics and sync errors
	ErrLyricsNotFound = fmt.Errorf("lyrics not found")
	ErrNoCurrentTrack = fmt.Errorf("no current track")
	ErrLockContention = fmt.Errorf("engine state is busy")
	ErrPersistence    = fmt.Errorf("persistence failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

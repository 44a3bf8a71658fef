package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lyrx/internal/shared"
	"golang.org/x/oauth2"
)

// refreshMargin is how long before expiry a token is proactively refreshed.
const refreshMargin = 300 * time.Second

// SessionState is the authentication state of a [Session].
type SessionState int

const (
	Unauthenticated SessionState = iota
	Authenticated
	Expired
)

// MarshalText implements [encoding.TextMarshaler].
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s SessionState) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// SessionStatus describes a session without exposing its credentials.
type SessionStatus struct {
	State           SessionState `json:"state"`
	Expiry          time.Time    `json:"expiry"`
	HasRefreshToken bool         `json:"has_refresh_token"`
}

// Session owns the Spotify bearer token.
//
// Its lifecycle is explicit: [Session.Exchange] or [Session.Restore] create it, [Session.Refresh] renews it and
// [Session.Invalidate] drops it. The token never leaves the session except through the OnRefresh hook used to
// persist it.
type Session struct {
	mu         sync.Mutex
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	onRefresh  func(*oauth2.Token)
	logger     *log.Logger
	now        func() time.Time
}

// SessionOption configures a [Session].
type SessionOption func(*Session)

// WithTokenURL points token exchange and refresh at a different endpoint.
func WithTokenURL(tokenURL string) SessionOption {
	return func(s *Session) { s.config.Endpoint.TokenURL = tokenURL }
}

// WithSessionHTTPClient sets the client used to reach the token endpoint.
func WithSessionHTTPClient(c *http.Client) SessionOption {
	return func(s *Session) { s.httpClient = c }
}

// WithSessionClock replaces the session clock.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *log.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// OnRefresh registers fn to receive a copy of every newly issued token.
func OnRefresh(fn func(*oauth2.Token)) SessionOption {
	return func(s *Session) { s.onRefresh = fn }
}

// NewSession creates an unauthenticated session for the configured client credentials.
func NewSession(cfg shared.SpotifyConfig, opts ...SessionOption) (*Session, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	s := &Session{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURI,
			Scopes:       spotifyScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyAuthURL,
				TokenURL:  spotifyTokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     shared.NewLogger(nil),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AuthURL returns the authorization URL for the interactive login.
func (s *Session) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// RedirectURL returns the configured OAuth redirect URL.
func (s *Session) RedirectURL() string {
	return s.config.RedirectURL
}

// Exchange trades an authorization code for a token.
func (s *Session) Exchange(ctx context.Context, code string) error {
	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return fmt.Errorf("%w: failed to exchange auth code: %w", shared.ErrAuthFailed, err)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	s.notify(token)
	return nil
}

// Restore installs a previously persisted token.
func (s *Session) Restore(token *oauth2.Token) error {
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return shared.ErrNotAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := *token
	s.token = &c
	return nil
}

// Invalidate drops the token, returning the session to the unauthenticated state.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
}

// Status reports the session state at the current time.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return SessionStatus{State: Unauthenticated}
	}

	status := SessionStatus{State: Authenticated, Expiry: s.token.Expiry, HasRefreshToken: s.token.RefreshToken != ""}
	if s.needsRefreshLocked() {
		status.State = Expired
	}
	return status
}

// NeedsRefresh reports whether the token is within the refresh margin of its expiry.
func (s *Session) NeedsRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsRefreshLocked()
}

func (s *Session) needsRefreshLocked() bool {
	if s.token == nil {
		return false
	}
	if s.token.AccessToken == "" {
		return true
	}
	if s.token.Expiry.IsZero() {
		return false
	}
	return !s.now().Before(s.token.Expiry.Add(-refreshMargin))
}

// Refresh obtains a new access token with the refresh token. The previous refresh token is kept when the response
// does not carry a new one. A rejected refresh token invalidates the session.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	token, err := s.refreshLocked(ctx)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify(token)
	return nil
}

func (s *Session) refreshLocked(ctx context.Context) (*oauth2.Token, error) {
	if s.token == nil {
		return nil, shared.ErrNotAuthenticated
	}
	if s.token.RefreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	prev := s.token.RefreshToken
	expired := &oauth2.Token{RefreshToken: prev, Expiry: time.Unix(1, 0)}
	token, err := s.config.TokenSource(s.oauthContext(ctx), expired).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 {
			s.logger.Error("refresh token rejected, session invalidated", "status", re.Response.StatusCode)
			s.token = nil
		}
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	if token.RefreshToken == "" {
		token.RefreshToken = prev
	}
	s.token = token
	s.logger.Info("access token refreshed", "expiry", token.Expiry)
	return token, nil
}

// Authorize sets the bearer header on req, refreshing first when the token is close to expiry.
func (s *Session) Authorize(ctx context.Context, req *http.Request) error {
	s.mu.Lock()
	if s.token == nil {
		s.mu.Unlock()
		return shared.ErrNotAuthenticated
	}

	var refreshed *oauth2.Token
	if s.needsRefreshLocked() {
		s.logger.Debug("token near expiry, refreshing before request")
		token, err := s.refreshLocked(ctx)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		refreshed = token
	}
	s.token.SetAuthHeader(req)
	s.mu.Unlock()

	if refreshed != nil {
		s.notify(refreshed)
	}
	return nil
}

func (s *Session) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func (s *Session) notify(token *oauth2.Token) {
	if s.onRefresh == nil {
		return
	}
	c := *token
	s.onRefresh(&c)
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultMarket         = "from_token"
)

// PlaybackClient determines what is playing by cascading through ordered [Strategy] values.
type PlaybackClient struct {
	session    *Session
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	strategies []Strategy
	logger     *log.Logger

	mu     sync.RWMutex
	market string
}

// PlaybackOption configures a [PlaybackClient].
type PlaybackOption func(*PlaybackClient)

// WithBaseURL points API requests at a different host.
func WithBaseURL(u string) PlaybackOption {
	return func(c *PlaybackClient) { c.baseURL = u }
}

// WithHTTPClient sets the client used for API requests.
func WithHTTPClient(h *http.Client) PlaybackOption {
	return func(c *PlaybackClient) { c.httpClient = h }
}

// WithRequestTimeout sets the per-strategy timeout.
func WithRequestTimeout(d time.Duration) PlaybackOption {
	return func(c *PlaybackClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMarket sets the market parameter sent with playback queries.
func WithMarket(m string) PlaybackOption {
	return func(c *PlaybackClient) {
		if m != "" {
			c.market = m
		}
	}
}

// WithStrategies replaces the default cascade.
func WithStrategies(s ...Strategy) PlaybackOption {
	return func(c *PlaybackClient) { c.strategies = s }
}

// WithPlaybackLogger sets the client logger.
func WithPlaybackLogger(l *log.Logger) PlaybackOption {
	return func(c *PlaybackClient) { c.logger = l }
}

// NewPlaybackClient creates a client that authenticates through session.
func NewPlaybackClient(session *Session, opts ...PlaybackOption) *PlaybackClient {
	c := &PlaybackClient{
		session:    session,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
		timeout:    defaultRequestTimeout,
		strategies: DefaultStrategies(),
		logger:     shared.NewLogger(nil),
		market:     defaultMarket,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Market returns the market parameter in use.
func (c *PlaybackClient) Market() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.market
}

// CurrentTrack returns what is playing, or nil when nothing is.
//
// Strategies run in order and the first [Found] result wins. An unauthorized response triggers one refresh and
// ends the cycle with no result. An error is returned only for authentication faults; transient failures of
// individual strategies are logged and skipped.
func (c *PlaybackClient) CurrentTrack(ctx context.Context) (*models.TrackSnapshot, error) {
	if c.session.Status().State == Unauthenticated {
		return nil, shared.ErrNotAuthenticated
	}

	for _, strategy := range c.strategies {
		sctx, cancel := context.WithTimeout(ctx, c.timeout)
		res := strategy.Fetch(sctx, c)
		cancel()

		switch res.Outcome {
		case Found:
			c.logger.Debug("playback resolved", "strategy", strategy.Name(), "track", res.Track.Title)
			return res.Track, nil
		case Empty:
			c.logger.Debug("strategy found nothing", "strategy", strategy.Name())
		case Fault:
			if errors.Is(res.Err, shared.ErrTokenExpired) {
				return nil, c.recoverAuth(ctx, strategy.Name(), res.Err)
			}
			if isAuthFault(res.Err) {
				return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, res.Err)
			}
			c.logger.Warn("strategy failed", "strategy", strategy.Name(), "error", res.Err)
		}
	}

	c.diagnoseDevices(ctx)
	return nil, nil
}

// recoverAuth performs the single refresh allowed per cycle. Success yields no result for this cycle; failure is
// surfaced as an auth fault.
func (c *PlaybackClient) recoverAuth(ctx context.Context, strategy string, cause error) error {
	c.logger.Warn("unauthorized, refreshing token", "strategy", strategy, "error", cause)
	if err := c.session.Refresh(ctx); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}
	return nil
}

// isAuthFault reports errors raised by the session itself, where another refresh would not help.
func isAuthFault(err error) bool {
	return errors.Is(err, shared.ErrNotAuthenticated) ||
		errors.Is(err, shared.ErrRefreshFailed) ||
		errors.Is(err, shared.ErrNoRefreshToken)
}

// diagnoseDevices logs device availability after every strategy came up empty.
func (c *PlaybackClient) diagnoseDevices(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	devices, err := c.Devices(ctx)
	if err != nil {
		c.logger.Warn("device diagnostic failed", "error", err)
		return
	}

	active := 0
	for _, d := range devices {
		if d.IsActive {
			active++
		}
		c.logger.Debug("device", "name", d.Name, "type", d.Type, "active", d.IsActive)
	}

	if active == 0 {
		c.logger.Warn("nothing playing: no active devices", "devices", len(devices))
		return
	}
	c.logger.Info("nothing playing on active device", "active", active)
}

// Devices lists the user's Connect devices.
func (c *PlaybackClient) Devices(ctx context.Context) ([]SpotifyDevice, error) {
	var body spotifyDevices
	status, err := c.get(ctx, "/me/player/devices", nil, &body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return body.Devices, nil
}

// RecentTracks returns up to limit distinct tracks from play history, most recent first. limit is clamped to 1-50.
func (c *PlaybackClient) RecentTracks(ctx context.Context, limit int) ([]*models.TrackSnapshot, error) {
	limit = min(max(limit, 1), 50)

	var body spotifyPlayHistory
	status, err := c.get(ctx, "/me/player/recently-played", url.Values{"limit": {strconv.Itoa(limit)}}, &body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}

	seen := make(map[string]bool, len(body.Items))
	tracks := make([]*models.TrackSnapshot, 0, len(body.Items))
	for _, item := range body.Items {
		if item.Track.ID == "" || seen[item.Track.ID] {
			continue
		}
		seen[item.Track.ID] = true

		track := item.Track.snapshot()
		track.FromHistory = true
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// UserProfile retrieves the current authenticated user's profile.
func (c *PlaybackClient) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if _, err := c.get(ctx, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DetectMarket replaces the market parameter with the user's country.
func (c *PlaybackClient) DetectMarket(ctx context.Context) (string, error) {
	user, err := c.UserProfile(ctx)
	if err != nil {
		return "", err
	}
	if user.Country == "" {
		return c.Market(), nil
	}

	c.mu.Lock()
	c.market = user.Country
	c.mu.Unlock()
	c.logger.Info("detected market", "country", user.Country)
	return user.Country, nil
}

// ProbeResult is the outcome of [PlaybackClient.ProbeNoContent].
type ProbeResult struct {
	Attempts int `json:"attempts"`
	Status   int `json:"status"`
}

// ProbeNoContent polls the current-item endpoint while it answers 204, waiting step, 2*step, ... between attempts,
// for at most attempts tries. It is diagnostic only and never part of a normal poll cycle.
func (c *PlaybackClient) ProbeNoContent(ctx context.Context, attempts int, step time.Duration) (ProbeResult, error) {
	attempts = min(max(attempts, 1), 5)

	var res ProbeResult
	for i := 1; i <= attempts; i++ {
		res.Attempts = i

		rctx, cancel := context.WithTimeout(ctx, c.timeout)
		status, err := c.get(rctx, "/me/player/currently-playing", c.playbackQuery(), nil)
		cancel()

		res.Status = status
		if err != nil {
			return res, err
		}
		if status != http.StatusNoContent {
			return res, nil
		}
		if i == attempts {
			break
		}

		c.logger.Debug("no content, backing off", "attempt", i, "delay", step*time.Duration(i))
		select {
		case <-time.After(step * time.Duration(i)):
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
	return res, nil
}

func (c *PlaybackClient) playbackQuery() url.Values {
	return url.Values{"market": {c.Market()}, "additional_types": {"track,episode"}}
}

// get performs an authenticated GET and decodes a JSON body into result when the status is 200.
//
// 204 returns the status with a nil error. 401 returns [shared.ErrTokenExpired]. Other non-2xx statuses return
// [shared.ErrAPIRequest] along with the status.
func (c *PlaybackClient) get(ctx context.Context, endpoint string, query url.Values, result any) (int, error) {
	apiURL := c.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	if err := c.session.Authorize(ctx, req); err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %s: %w", shared.ErrTimeout, endpoint, err)
		}
		return 0, fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, fmt.Errorf("%w: %s", shared.ErrTokenExpired, endpoint)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, fmt.Errorf("%w: %s status %d", shared.ErrAPIRequest, endpoint, resp.StatusCode)
	}

	if result == nil {
		return resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: failed to read response: %w", shared.ErrAPIRequest, err)
	}
	if len(body) == 0 {
		return http.StatusNoContent, nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %s: %w", shared.ErrMalformedResponse, endpoint, err)
	}
	return resp.StatusCode, nil
}

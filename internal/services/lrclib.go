// Lyrics index client for the lrclib.net search API
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
	"golang.org/x/time/rate"
)

const (
	lrclibBaseURL   = "https://lrclib.net/api"
	lrclibUserAgent = "lyrx/1.0"
	lrclibTimeout   = 10 * time.Second
)

// LrclibClient queries the lyrics index. Requests are throttled by a token bucket shared by every caller.
type LrclibClient struct {
	api     *APIService
	limiter *rate.Limiter
	timeout time.Duration
	logger  *log.Logger
}

// NewLrclibClient builds a client from the lyrics configuration. A zero requests-per-second disables throttling.
func NewLrclibClient(cfg shared.LyricsConfig, client *http.Client, logger *log.Logger) *LrclibClient {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if client == nil {
		client = &http.Client{}
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = lrclibUserAgent
	}

	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = lrclibTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &LrclibClient{
		api:     NewAPIService(cfg.BaseURL, client).WithUserAgent(ua),
		limiter: limiter,
		timeout: timeout,
		logger:  logger,
	}
}

// Search runs an exact (artist and title) or free-text query and returns candidates in index order.
func (c *LrclibClient) Search(ctx context.Context, q models.LyricsQuery) ([]models.LyricsCandidate, error) {
	params := url.Values{}
	switch {
	case q.Text != "":
		params.Set("q", q.Text)
	case q.Artist != "" || q.Title != "":
		params.Set("artist_name", q.Artist)
		params.Set("track_name", q.Title)
	default:
		return nil, fmt.Errorf("%w: empty lyrics query", shared.ErrInvalidArgument)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", shared.ErrTimeout, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("lyrics index search", "query", params.Encode())

	resp, err := c.api.Get(ctx, "/search", params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", shared.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("%w: lyrics index status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var candidates []models.LyricsCandidate
	if err := resp.Decode(&candidates); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrMalformedResponse, err)
	}
	return candidates, nil
}

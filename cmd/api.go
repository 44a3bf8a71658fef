package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/desertthunder/lyrx/internal/services"
	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/urfave/cli/v3"
)

// lyricsAPI returns a raw client for the configured lyrics index.
func (r *Runner) lyricsAPI() *services.APIService {
	return services.NewAPIService(r.config.Lyrics.BaseURL, r.httpClient).WithUserAgent(r.config.Lyrics.UserAgent)
}

// APIGet makes a direct GET request to the lyrics index and prints the response body.
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path is required", shared.ErrMissingArgument)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	query := url.Values{}
	for _, p := range cmd.StringSlice("param") {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return fmt.Errorf("%w: parameter %q is not key=value", shared.ErrInvalidArgument, p)
		}
		query.Add(k, v)
	}

	r.logger.Info("GET request", "path", path)

	resp, err := r.lyricsAPI().Get(ctx, path, query)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}

	if !resp.OK() {
		return fmt.Errorf("%w: status %d, body: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}

	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, cmd.Bool("pretty"))
	}
	r.output.Write(resp.Body)
	r.output.Write([]byte("\n"))
	return nil
}

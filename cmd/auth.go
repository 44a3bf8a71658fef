package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/lyrx/internal/server"
	"github.com/desertthunder/lyrx/internal/services"
	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin performs the OAuth2 authorization code flow for Spotify.
//
// Starts a local HTTP server on the redirect address, opens the browser for user authorization and waits for the
// callback to exchange the code. The issued token is saved to the config file through the session's refresh hook.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	session, err := r.newSession()
	if err != nil {
		return err
	}

	if err := r.doOAuth(ctx, session, cmd.Duration("timeout"), !cmd.Bool("no-browser")); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	if r.configPath != "" {
		r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	}
	r.writePlain("You can now use: lyrx watch\n")
	return nil
}

// doOAuth serves the callback until the exchange finishes, ctx ends or timeout elapses.
func (r *Runner) doOAuth(ctx context.Context, session *services.Session, timeout time.Duration, browser bool) error {
	state := shared.GenerateID()
	authURL := session.AuthURL(state)

	oauthHandler := server.NewOAuthHandler(session, state)
	router := server.NewBasicRouter()
	router.Use(server.RecoverMiddleware(r.logger))
	router.Handler(oauthHandler)

	addr := callbackAddr(session.RedirectURL(), r.config.Server.Addr())
	srv := server.New(addr, router, shared.WithLogger(r.logger, "component", "oauth"))

	srvCtx, stop := context.WithCancel(ctx)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server at %v", addr)
		serverErrors <- srv.Run(srvCtx)
	}()

	if browser {
		r.writePlain("→ Opening browser for Spotify authorization...\n")
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warn("failed to open browser automatically", "error", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			browser = false
		}
	}
	if !browser {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		if err == nil {
			return ctx.Err()
		}
		return fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := result.Error(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}
	return nil
}

// callbackAddr derives the listen address from the redirect URL, falling back to the configured server address.
func callbackAddr(redirect, fallback string) string {
	u, err := url.Parse(redirect)
	if err != nil || u.Host == "" {
		return fallback
	}
	if u.Port() == "" {
		return fallback
	}
	return u.Host
}

// AuthStatus reports the stored session state without touching the network.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	session, err := r.newSession()
	if err != nil {
		return err
	}
	status := session.Status()

	if cmd.Bool("json") {
		return r.writeJSON(status, cmd.Bool("pretty"))
	}

	switch status.State {
	case services.Authenticated:
		r.writePlain("Authentication: ✓ Authenticated\n")
	case services.Expired:
		r.writePlain("Authentication: ⚠ Expired (refreshed on next use)\n")
	default:
		r.writePlain("Authentication: ✗ Not authenticated\n")
		return r.writePlain("Run 'lyrx auth login' to authorize Spotify\n")
	}

	if !status.Expiry.IsZero() {
		r.writePlain("Expires: %s (%s)\n", status.Expiry.Local().Format(time.RFC1123),
			time.Until(status.Expiry).Round(time.Second))
	}
	if status.HasRefreshToken {
		r.writePlain("Refresh token: present\n")
	} else {
		r.writePlain("Refresh token: missing\n")
	}
	return nil
}

// AuthRefresh forces a token refresh.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	session, err := r.newSession()
	if err != nil {
		return err
	}
	if session.Status().State == services.Unauthenticated {
		return fmt.Errorf("%w: nothing to refresh", shared.ErrNotAuthenticated)
	}

	r.logger.Info("refreshing access token")
	if err := session.Refresh(ctx); err != nil {
		return err
	}

	status := session.Status()
	return r.writePlain("✓ Token refreshed, expires %s\n", status.Expiry.Local().Format(time.RFC1123))
}

// AuthLogout drops the session and removes stored tokens from the config file.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	session, err := r.newSession()
	if err != nil {
		return err
	}
	session.Invalidate()

	r.mu.Lock()
	spotify := &r.config.Credentials.Spotify
	spotify.AccessToken = ""
	spotify.RefreshToken = ""
	spotify.TokenExpiry = time.Time{}
	r.mu.Unlock()

	if r.configPath != "" {
		if err := shared.SaveConfig(r.configPath, r.config); err != nil {
			return err
		}
	}
	return r.writePlain("✓ Logged out\n")
}

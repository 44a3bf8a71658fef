package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lyrx/internal/lyrics"
	"github.com/desertthunder/lyrx/internal/offsets"
	"github.com/desertthunder/lyrx/internal/repositories"
	"github.com/desertthunder/lyrx/internal/services"
	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/desertthunder/lyrx/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage and network collaborators are built on first use so commands that need neither stay cheap.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	mu       sync.Mutex
	db       *sql.DB
	stack    *stack
	session  *services.Session
	playback *services.PlaybackClient
	apiBase  string
}

// stack is the storage and lyrics layer shared by every command that touches lyrics or offsets.
type stack struct {
	lyricsRepo *repositories.LyricsRepository
	cache      *repositories.LyricsCache
	offsets    *offsets.Store
	index      *services.LrclibClient
	resolver   *lyrics.Resolver
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer

	// DB replaces the configured database, mainly for tests.
	DB *sql.DB
	// Session replaces the session built from the configured credentials.
	Session *services.Session
	// SpotifyBaseURL points playback queries at a different host.
	SpotifyBaseURL string
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		db:         opts.DB,
		session:    opts.Session,
		apiBase:    opts.SpotifyBaseURL,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, trackCommand, lyricsCommand, offsetCommand, cacheCommand, apiCommand,
		watchCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the runner logger, used when the terminal is handed to the lyrics view.
func (r *Runner) SetLogger(l *log.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
}

// loadConfig is the root Before hook. A missing file keeps the defaults.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	path := cmd.String("config")
	if path == "" {
		return ctx, nil
	}
	r.configPath = path

	if _, err := os.Stat(path); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return ctx, nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return ctx, err
	}
	r.config = config
	return ctx, nil
}

// Close releases the database handle, if one was opened.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.stack = nil
	return err
}

// openStack opens the database and builds the lyrics and offset layer.
func (r *Runner) openStack(ctx context.Context) (*stack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stack != nil {
		return r.stack, nil
	}

	if r.db == nil {
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		r.db = db
	} else if err := shared.RunMigrations(r.db); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrPersistence, err)
	}

	lyricsRepo := repositories.NewLyricsRepository(r.db)
	store := offsets.NewStore(
		repositories.NewOffsetRepository(r.db),
		offsets.WithLogger(shared.WithLogger(r.logger, "component", "offsets")),
	)
	if err := store.Load(ctx); err != nil {
		return nil, err
	}

	index := services.NewLrclibClient(r.config.Lyrics, r.httpClient, shared.WithLogger(r.logger, "component", "lrclib"))
	r.stack = &stack{
		lyricsRepo: lyricsRepo,
		cache: repositories.NewLyricsCache(
			lyricsRepo,
			r.config.Lyrics.MemoryCacheSize,
			r.config.Lyrics.CacheTTL(),
			shared.WithLogger(r.logger, "component", "cache"),
		),
		offsets:  store,
		index:    index,
		resolver: lyrics.NewResolver(index, shared.WithLogger(r.logger, "component", "resolver")),
	}
	return r.stack, nil
}

// newSession creates a session from the configured credentials and restores the stored token, if any.
// Refreshed tokens are written back to the config file.
func (r *Runner) newSession() (*services.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return r.session, nil
	}

	cfg := r.config.Credentials.Spotify
	session, err := services.NewSession(cfg,
		services.WithSessionLogger(shared.WithLogger(r.logger, "component", "session")),
		services.OnRefresh(r.persistToken),
	)
	if err != nil {
		return nil, err
	}

	if cfg.AccessToken != "" || cfg.RefreshToken != "" {
		token := &oauth2.Token{
			AccessToken:  cfg.AccessToken,
			RefreshToken: cfg.RefreshToken,
			Expiry:       cfg.TokenExpiry,
			TokenType:    "Bearer",
		}
		if err := session.Restore(token); err != nil {
			r.logger.Warn("stored token rejected", "error", err)
		}
	}

	r.session = session
	return session, nil
}

// persistToken copies a newly issued token into the config and saves it.
func (r *Runner) persistToken(token *oauth2.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	spotify := &r.config.Credentials.Spotify
	spotify.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		spotify.RefreshToken = token.RefreshToken
	}
	spotify.TokenExpiry = token.Expiry

	if r.configPath == "" {
		return
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		r.logger.Warn("failed to persist token", "error", err)
		return
	}
	r.logger.Debug("token saved", "path", r.configPath)
}

// playbackClient returns the Spotify playback client, requiring an authenticated session.
func (r *Runner) playbackClient() (*services.PlaybackClient, error) {
	session, err := r.newSession()
	if err != nil {
		return nil, err
	}
	if session.Status().State == services.Unauthenticated {
		return nil, fmt.Errorf("%w: run 'lyrx auth login' first", shared.ErrNotAuthenticated)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playback != nil {
		return r.playback, nil
	}

	opts := []services.PlaybackOption{
		services.WithHTTPClient(r.httpClient),
		services.WithRequestTimeout(r.config.Sync.RequestTimeout()),
		services.WithMarket(r.config.Sync.Market),
		services.WithPlaybackLogger(shared.WithLogger(r.logger, "component", "playback")),
	}
	if r.apiBase != "" {
		opts = append(opts, services.WithBaseURL(r.apiBase))
	}
	r.playback = services.NewPlaybackClient(session, opts...)
	return r.playback, nil
}

// newEngine builds a sync engine over the storage stack.
func (r *Runner) newEngine(st *stack) *tasks.Engine {
	return tasks.NewEngine(st.resolver, st.cache, st.offsets,
		tasks.WithUserLock(r.config.Sync.UserLock()),
		tasks.WithLockTimeout(r.config.Sync.LockTimeout()),
		tasks.WithEngineLogger(shared.WithLogger(r.logger, "component", "engine")),
	)
}

// describe turns well-known errors into a short hint for the terminal.
func describe(err error) string {
	switch {
	case errors.Is(err, shared.ErrMissingCredentials):
		return "set credentials.spotify.client_id and client_secret in the config file or environment"
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrAuthFailed):
		return "run 'lyrx auth login' to authorize Spotify"
	case errors.Is(err, shared.ErrLyricsNotFound):
		return "no lyrics were found for this track"
	default:
		return ""
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

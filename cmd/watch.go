package main

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/lyrx/internal/server"
	"github.com/desertthunder/lyrx/internal/services"
	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/desertthunder/lyrx/internal/tasks"
	"github.com/desertthunder/lyrx/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Watch follows playback in the terminal. The poller, the local API and the lyrics view share one engine; quitting
// the view stops the rest.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	// the view owns the terminal, so logs go to a file
	fileLogger, closer, err := shared.NewFileLogger(r.config.Sync.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()
	if r.logger.GetLevel() == log.DebugLevel {
		shared.SetLogLevel(fileLogger, log.DebugLevel)
	}
	r.SetLogger(fileLogger)

	playback, engine, err := r.syncStack(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return tasks.NewPoller(playback, engine, r.config.Sync.PollInterval(),
			shared.WithLogger(r.logger, "component", "poller")).Run(gctx, nil)
	})

	if !cmd.Bool("no-server") {
		srv := r.newServer(cmd.String("addr"), engine, playback)
		g.Go(func() error { return srv.Run(gctx) })
	}

	g.Go(func() error {
		defer cancel()

		model := ui.NewModel(gctx, engine, playback)
		defer model.Close()

		_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(gctx)).Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	return g.Wait()
}

// Serve follows playback and exposes the engine over HTTP and WebSocket until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	playback, engine, err := r.syncStack(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	srv := r.newServer(addr, engine, playback)

	r.writePlain("→ Serving sync state on http://%s (ctrl+c to stop)\n", addr)

	progressCh := make(chan tasks.ProgressUpdate, 10)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return tasks.NewPoller(playback, engine, r.config.Sync.PollInterval(),
			shared.WithLogger(r.logger, "component", "poller")).Run(gctx, progressCh)
	})
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		r.reportProgress(gctx, progressCh)
		return nil
	})

	return g.Wait()
}

// syncStack builds the playback client and an engine over the storage stack.
func (r *Runner) syncStack(ctx context.Context) (*services.PlaybackClient, *tasks.Engine, error) {
	playback, err := r.playbackClient()
	if err != nil {
		return nil, nil, err
	}
	if playback.Market() == "from_token" {
		if _, err := playback.DetectMarket(ctx); err != nil {
			r.logger.Warn("market detection failed, keeping from_token", "error", err)
		}
	}

	st, err := r.openStack(ctx)
	if err != nil {
		return nil, nil, err
	}
	return playback, r.newEngine(st), nil
}

func (r *Runner) newServer(addr string, engine *tasks.Engine, source tasks.PlaybackSource) *server.Server {
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	logger := shared.WithLogger(r.logger, "component", "server")

	router := server.NewBasicRouter()
	router.Use(server.RecoverMiddleware(logger), server.LoggingMiddleware(logger))
	router.Handler(server.NewAPIHandler(engine, source, logger))
	router.Handler(server.NewEventsHandler(engine, logger))

	return server.New(addr, router, logger)
}

// reportProgress prints track changes and poll faults until ctx ends.
func (r *Runner) reportProgress(ctx context.Context, progress <-chan tasks.ProgressUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-progress:
			switch update.Phase {
			case tasks.TrackChanged:
				r.writePlain("♪ %s\n", update.Message)
			case tasks.PollFault:
				r.writePlain("⚠ %s\n", update.Message)
			}
		}
	}
}

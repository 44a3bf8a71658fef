package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})
	defer runner.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(runner).Run(ctx, os.Args); err != nil {
		if hint := describe(err); hint != "" {
			logger.Error("application error", "error", err, "hint", hint)
		} else {
			logger.Error("application error", "error", err)
		}
		runner.Close()
		os.Exit(1)
	}
}

// newApp builds the root command around runner.
func newApp(runner *Runner) *cli.Command {
	return &cli.Command{
		Name:    "lyrx",
		Usage:   "Synchronized lyrics for whatever Spotify is playing",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("LYRX_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   runner.loadConfig,
		Commands: runner.register(),
	}
}

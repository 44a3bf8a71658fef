// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// trackFlags identify a track by artist and title. Commands fall back to the current track when both are empty.
func trackFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "artist",
			Aliases: []string{"a"},
			Usage:   "Track artist",
		},
		&cli.StringFlag{
			Name:    "title",
			Aliases: []string{"t"},
			Usage:   "Track title",
		},
	}
}

func outputFlags(pretty bool) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: pretty,
		},
	}
}

// setupCommand handles setup operations for the database and configuration file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write a config file from the built-in template",
				Action: r.SetupConfig,
			},
		},
	}
}

// authCommand handles Spotify authentication
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize with Spotify using OAuth2 in the browser",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: 2 * time.Minute,
					},
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the stored session state",
				Flags:  outputFlags(true),
				Action: r.AuthStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Refresh the access token now",
				Action: r.AuthRefresh,
			},
			{
				Name:   "logout",
				Usage:  "Forget stored tokens",
				Action: r.AuthLogout,
			},
		},
	}
}

// trackCommand handles playback queries
func trackCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "track",
		Usage: "Query Spotify playback",
		Commands: []*cli.Command{
			{
				Name:   "now",
				Usage:  "Show what is playing",
				Flags:  outputFlags(true),
				Action: r.TrackNow,
			},
			{
				Name:  "recent",
				Usage: "List recently played tracks",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of tracks (1-50)",
						Value: 20,
					},
				}, outputFlags(true)...),
				Action: r.TrackRecent,
			},
			{
				Name:   "devices",
				Usage:  "List Spotify Connect devices",
				Flags:  outputFlags(true),
				Action: r.TrackDevices,
			},
			{
				Name:  "probe",
				Usage: "Poll the current-item endpoint with backoff while it answers 204",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "attempts",
						Usage: "Maximum attempts (1-5)",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "step",
						Usage: "Backoff step between attempts",
						Value: 500 * time.Millisecond,
					},
				},
				Action: r.TrackProbe,
			},
		},
	}
}

// lyricsCommand handles lyric lookups and exports
func lyricsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "lyrics",
		Usage: "Look up and export lyrics",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Print lyrics for a track (default: the current track)",
				Flags: append(trackFlags(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: lrc, srt, txt, markdown, json",
						Value:   "txt",
					},
				),
				Action: r.LyricsGet,
			},
			{
				Name:  "export",
				Usage: "Write lyrics files for a track or for recent history",
				Flags: append(trackFlags(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: lrc, srt, txt, markdown, json",
						Value:   "lrc",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory",
						Value:   ".",
					},
					&cli.IntFlag{
						Name:  "recent",
						Usage: "Export this many recently played tracks instead of one",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent lookups for --recent",
						Value: 3,
					},
				),
				Action: r.LyricsExport,
			},
			{
				Name:  "search",
				Usage: "Show raw lyrics index candidates",
				Flags: append(trackFlags(),
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Free-text query",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				),
				Action: r.LyricsSearch,
			},
		},
	}
}

// offsetCommand handles stored timing corrections
func offsetCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "offset",
		Usage: "Manage per-track timing corrections",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show corrections for a track, or all tracks",
				Flags:  append(trackFlags(), outputFlags(true)...),
				Action: r.OffsetShow,
			},
			{
				Name:  "adjust",
				Usage: "Add to a track's global correction",
				Flags: append(trackFlags(),
					&cli.Int64Flag{
						Name:     "delta",
						Aliases:  []string{"d"},
						Usage:    "Milliseconds to add (negative shows lyrics later)",
						Required: true,
					},
				),
				Action: r.OffsetAdjust,
			},
			{
				Name:  "set",
				Usage: "Replace a track's global correction",
				Flags: append(trackFlags(),
					&cli.Int64Flag{
						Name:     "value",
						Usage:    "Correction in milliseconds",
						Required: true,
					},
				),
				Action: r.OffsetSet,
			},
			{
				Name:  "anchor",
				Usage: "Set a correction that applies from a playback position onward",
				Flags: append(trackFlags(),
					&cli.Int64Flag{
						Name:     "at",
						Usage:    "Playback position in milliseconds",
						Required: true,
					},
					&cli.Int64Flag{
						Name:     "value",
						Usage:    "Correction in milliseconds",
						Required: true,
					},
				),
				Action: r.OffsetAnchor,
			},
			{
				Name:  "unanchor",
				Usage: "Remove the anchor at a playback position",
				Flags: append(trackFlags(),
					&cli.Int64Flag{
						Name:     "at",
						Usage:    "Playback position in milliseconds",
						Required: true,
					},
				),
				Action: r.OffsetUnanchor,
			},
			{
				Name:  "reset",
				Usage: "Clear a track's corrections",
				Flags: append(trackFlags(),
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Clear every stored correction",
					},
				),
				Action: r.OffsetReset,
			},
			{
				Name:  "export",
				Usage: "Write all corrections to a YAML or JSON file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output path (.yaml or .json)",
						Value:   "offsets.yaml",
					},
				},
				Action: r.OffsetExport,
			},
			{
				Name:  "import",
				Usage: "Load corrections from a YAML or JSON file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Action: r.OffsetImport,
			},
		},
	}
}

// cacheCommand handles the lyrics cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and clear cached lyrics",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List cached lyrics",
				Flags:  outputFlags(true),
				Action: r.CacheList,
			},
			{
				Name:   "clear",
				Usage:  "Remove every cached timeline",
				Action: r.CacheClear,
			},
			{
				Name:  "purge",
				Usage: "Remove cached timelines older than a duration",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Age cutoff",
						Value: 24 * time.Hour,
					},
				},
				Action: r.CachePurge,
			},
		},
	}
}

// apiCommand handles direct lyrics index calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the lyrics index",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET to the lyrics index, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "param",
						Usage: "Query parameter as key=value (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.APIGet,
			},
		},
	}
}

func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "Listen address (default: server.host:server.port from config)",
		},
	}
}

// watchCommand follows playback with the lyrics view, the local API and the poller
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"ui", "tui"},
		Usage:   "Follow playback with synchronized lyrics in the terminal",
		Flags: append(serverFlags(),
			&cli.BoolFlag{
				Name:  "no-server",
				Usage: "Do not start the local HTTP/WebSocket API",
			},
		),
		Action: r.Watch,
	}
}

// serveCommand runs the poller and the local API without a terminal view
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Follow playback and serve sync state over HTTP and WebSocket",
		Flags:  serverFlags(),
		Action: r.Serve,
	}
}

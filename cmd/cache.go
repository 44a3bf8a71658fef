package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

type cachedEntry struct {
	Key      string    `json:"key"`
	Artist   string    `json:"artist"`
	Title    string    `json:"title"`
	Source   string    `json:"source"`
	Quality  string    `json:"quality"`
	Lines    int       `json:"lines"`
	Resolved time.Time `json:"resolved_at"`
}

// CacheList lists cached lyrics ordered by artist and title.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStack(ctx)
	if err != nil {
		return err
	}

	rows, err := st.lyricsRepo.List(ctx)
	if err != nil {
		return err
	}

	entries := make([]cachedEntry, 0, len(rows))
	for _, row := range rows {
		e := cachedEntry{Key: row.Key, Artist: row.Artist, Title: row.Title}
		if t := row.Timeline; t != nil {
			e.Source, e.Quality, e.Lines, e.Resolved = t.Source, t.Quality.String(), len(t.Lines), t.ResolvedAt
		}
		entries = append(entries, e)
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d cached timelines:\n\n", len(entries))
	for i, e := range entries {
		r.writePlain("%d. %s - %s\n", i+1, e.Artist, e.Title)
		r.writePlain("   %s (%s), %d lines\n", e.Source, e.Quality, e.Lines)
		if !e.Resolved.IsZero() {
			r.writePlain("   Resolved: %s\n", e.Resolved.Local().Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

// CacheClear drops every cached timeline from memory and disk.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStack(ctx)
	if err != nil {
		return err
	}

	n, err := st.cache.Clear(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	r.logger.Info("lyrics cache cleared", "rows", n)
	return r.writePlain("✓ Removed %d cached timelines\n", n)
}

// CachePurge drops timelines resolved before now minus --older-than.
func (r *Runner) CachePurge(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStack(ctx)
	if err != nil {
		return err
	}

	age := cmd.Duration("older-than")
	n, err := st.lyricsRepo.Purge(ctx, time.Now().Add(-age))
	if err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}
	r.logger.Info("lyrics cache purged", "rows", n, "older_than", age)
	return r.writePlain("✓ Removed %d timelines older than %s\n", n, age)
}

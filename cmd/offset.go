package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/lyrx/internal/formatter"
	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/urfave/cli/v3"
)

// OffsetShow prints the corrections for one track, or every stored record when no track is named.
func (r *Runner) OffsetShow(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStack(ctx)
	if err != nil {
		return err
	}

	var records []*models.TrackOffsetRecord
	if cmd.String("artist") != "" || cmd.String("title") != "" {
		track, err := r.currentTrack(ctx, cmd)
		if err != nil {
			return err
		}
		rec, ok := st.offsets.Record(track.Key())
		if !ok {
			rec = models.NewTrackOffsetRecord(track.Key())
		}
		records = []*models.TrackOffsetRecord{rec}
	} else {
		records = st.offsets.Records()
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, cmd.Bool("pretty"))
	}

	if len(records) == 0 {
		return r.writePlain("No corrections stored\n")
	}

	for _, rec := range records {
		r.writePlain("%s\n", rec.TrackID)
		r.writePlain("   Global: %+dms\n", rec.GlobalCorrection)
		for _, a := range rec.Anchors {
			r.writePlain("   From %s: %+dms\n", clock(a.Timestamp), a.Correction)
		}
		if !rec.LastModified.IsZero() {
			r.writePlain("   Modified: %s\n", rec.LastModified.Local().Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

// OffsetAdjust adds --delta to a track's global correction.
func (r *Runner) OffsetAdjust(ctx context.Context, cmd *cli.Command) error {
	track, st, err := r.offsetTarget(ctx, cmd)
	if err != nil {
		return err
	}

	id := track.Key()
	value := st.offsets.GlobalCorrection(id) + cmd.Int64("delta")
	if err := st.offsets.SetGlobalCorrection(ctx, id, value); err != nil {
		return err
	}

	r.logger.Info("correction adjusted", "track", id, "delta", cmd.Int64("delta"), "correction", value)
	return r.writePlain("✓ %s: %+dms\n", id, value)
}

// OffsetSet replaces a track's global correction.
func (r *Runner) OffsetSet(ctx context.Context, cmd *cli.Command) error {
	track, st, err := r.offsetTarget(ctx, cmd)
	if err != nil {
		return err
	}

	id, value := track.Key(), cmd.Int64("value")
	if err := st.offsets.SetGlobalCorrection(ctx, id, value); err != nil {
		return err
	}
	return r.writePlain("✓ %s: %+dms\n", id, value)
}

// OffsetAnchor sets the correction that applies from --at onward.
func (r *Runner) OffsetAnchor(ctx context.Context, cmd *cli.Command) error {
	track, st, err := r.offsetTarget(ctx, cmd)
	if err != nil {
		return err
	}

	at := cmd.Int64("at")
	if at < 0 {
		return fmt.Errorf("%w: --at must not be negative", shared.ErrInvalidArgument)
	}

	id, value := track.Key(), cmd.Int64("value")
	if err := st.offsets.SetAnchor(ctx, id, at, value); err != nil {
		return err
	}
	return r.writePlain("✓ %s: %+dms from %s\n", id, value, clock(at))
}

// OffsetUnanchor removes the anchor at --at.
func (r *Runner) OffsetUnanchor(ctx context.Context, cmd *cli.Command) error {
	track, st, err := r.offsetTarget(ctx, cmd)
	if err != nil {
		return err
	}

	id, at := track.Key(), cmd.Int64("at")
	if err := st.offsets.RemoveAnchor(ctx, id, at); err != nil {
		return err
	}
	return r.writePlain("✓ %s: anchor at %s removed\n", id, clock(at))
}

// OffsetReset clears one track's corrections, or all of them with --all.
func (r *Runner) OffsetReset(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("all") {
		st, err := r.openStack(ctx)
		if err != nil {
			return err
		}
		n := len(st.offsets.Records())
		if err := st.offsets.ClearAll(ctx); err != nil {
			return err
		}
		return r.writePlain("✓ Cleared corrections for %d tracks\n", n)
	}

	track, st, err := r.offsetTarget(ctx, cmd)
	if err != nil {
		return err
	}
	if err := st.offsets.ResetTrack(ctx, track.Key()); err != nil {
		return err
	}
	return r.writePlain("✓ %s: corrections cleared\n", track.Key())
}

// OffsetExport writes every record to --output as YAML, or JSON for a .json path.
func (r *Runner) OffsetExport(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStack(ctx)
	if err != nil {
		return err
	}

	path := cmd.String("output")
	records := st.offsets.Records()

	if err := formatter.WriteOffsetsExport(records, path); err != nil {
		return err
	}
	r.logger.Info("offsets exported", "path", path, "records", len(records))
	return r.writePlain("✓ Exported %d records to %s\n", len(records), path)
}

// OffsetImport merges records from a YAML or JSON file, replacing records with the same track id.
func (r *Runner) OffsetImport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path is required", shared.ErrMissingArgument)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}
	records, err := formatter.ParseOffsets(data)
	if err != nil {
		return err
	}

	st, err := r.openStack(ctx)
	if err != nil {
		return err
	}
	if err := st.offsets.Import(ctx, records); err != nil {
		return err
	}

	r.logger.Info("offsets imported", "path", path, "records", len(records))
	return r.writePlain("✓ Imported %d records from %s\n", len(records), path)
}

func (r *Runner) offsetTarget(ctx context.Context, cmd *cli.Command) (*models.TrackSnapshot, *stack, error) {
	track, err := r.currentTrack(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}
	st, err := r.openStack(ctx)
	if err != nil {
		return nil, nil, err
	}
	return track, st, nil
}

package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
)

const defaultPollInterval = time.Second

// PlaybackSource reports what is currently playing. A nil track with a nil error means nothing is.
type PlaybackSource interface {
	CurrentTrack(ctx context.Context) (*models.TrackSnapshot, error)
}

// Poller feeds playback observations into an [Engine] at a fixed interval.
type Poller struct {
	source   PlaybackSource
	engine   *Engine
	interval time.Duration
	logger   *log.Logger
}

// NewPoller creates a poller. A non-positive interval polls every second.
func NewPoller(source PlaybackSource, engine *Engine, interval time.Duration, logger *log.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Poller{source: source, engine: engine, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled. Cancellation is observed between cycles, after the inter-poll delay starts.
//
// No single failure stops the loop; faults are logged and reported on progress.
func (p *Poller) Run(ctx context.Context, progress chan<- ProgressUpdate) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for cycle := 1; ; cycle++ {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		p.Poll(ctx, cycle, progress)
		timer.Reset(p.interval)
	}
}

// Poll runs one cycle: query the source, then push the track and its progress into the engine.
func (p *Poller) Poll(ctx context.Context, cycle int, progress chan<- ProgressUpdate) {
	track, err := p.source.CurrentTrack(ctx)
	switch {
	case errors.Is(err, shared.ErrAuthFailed) || errors.Is(err, shared.ErrNotAuthenticated):
		p.logger.Error("playback authentication failed", "cycle", cycle, "error", err)
		sendProgress(progress, pollFaultUpdate(cycle, err))
		return
	case err != nil:
		p.logger.Warn("playback poll failed", "cycle", cycle, "error", err)
		sendProgress(progress, pollFaultUpdate(cycle, err))
		return
	case track == nil:
		p.logger.Debug("nothing playing", "cycle", cycle)
		sendProgress(progress, nothingPlayingUpdate(cycle))
		return
	}

	changed, err := p.engine.UpdateTrack(ctx, track)
	if err != nil {
		p.logger.Warn("failed to update track", "cycle", cycle, "error", err)
		return
	}
	if changed {
		sendProgress(progress, trackChangedUpdate(cycle, track))
	}

	if _, err := p.engine.UpdateProgress(ctx, track.ProgressMS); err != nil {
		p.logger.Warn("failed to update progress", "cycle", cycle, "error", err)
		return
	}
	sendProgress(progress, pollUpdate(cycle, track))
}

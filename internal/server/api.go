package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/desertthunder/lyrx/internal/tasks"
)

const maxBodyBytes = 1 << 16

// SyncEngine is the engine surface the handlers drive.
type SyncEngine interface {
	UpdateTrack(ctx context.Context, track *models.TrackSnapshot) (bool, error)
	CurrentTrack(ctx context.Context) (*models.TrackSnapshot, error)
	Snapshot(ctx context.Context) (models.SyncSnapshot, error)
	FetchLyrics(ctx context.Context, artist, title string) (*models.LyricTimeline, error)
	AdjustOffset(ctx context.Context, delta int64) (int64, error)
	ResetOffset(ctx context.Context) error
	SetUserScrolled(ctx context.Context, scrolled bool) error
	Subscribe() *tasks.Subscription
	Unsubscribe(id string)
}

// APIHandler serves the JSON command surface.
type APIHandler struct {
	engine SyncEngine
	source tasks.PlaybackSource
	logger *log.Logger
}

// NewAPIHandler creates a handler. source may be nil, in which case /api/track reports the engine's last observation.
func NewAPIHandler(engine SyncEngine, source tasks.PlaybackSource, logger *log.Logger) *APIHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &APIHandler{engine: engine, source: source, logger: logger}
}

// Routes returns the command surface. POST routes only accept JSON bodies.
func (h *APIHandler) Routes() []Route {
	return []Route{
		{Pattern: "GET /api/track", Handler: http.HandlerFunc(h.track)},
		{Pattern: "GET /api/lyrics", Handler: http.HandlerFunc(h.lyrics)},
		{Pattern: "GET /api/state", Handler: http.HandlerFunc(h.state)},
		{Pattern: "POST /api/offset/adjust", Handler: h.requireJSON(h.adjust)},
		{Pattern: "POST /api/offset/reset", Handler: h.requireJSON(h.reset)},
		{Pattern: "POST /api/scroll", Handler: h.requireJSON(h.scroll)},
	}
}

type adjustRequest struct {
	Delta int64 `json:"delta"`
}

type scrollRequest struct {
	Scrolled bool `json:"scrolled"`
}

type correctionResponse struct {
	Correction int64 `json:"correction"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// requireJSON rejects requests whose Content-Type is not application/json. Browsers cannot send that type
// cross-origin without a preflight, which this server never answers.
func (h *APIHandler) requireJSON(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/json" {
			h.logger.Debug("rejected request body type", "path", r.URL.Path, "content_type", r.Header.Get("Content-Type"))
			writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: "content type must be application/json"})
			return
		}
		next(w, r)
	})
}

func (h *APIHandler) track(w http.ResponseWriter, r *http.Request) {
	var (
		track *models.TrackSnapshot
		err   error
	)
	if h.source != nil {
		track, err = h.source.CurrentTrack(r.Context())
		if err == nil && track != nil {
			if _, uerr := h.engine.UpdateTrack(r.Context(), track); uerr != nil {
				h.logger.Warn("engine update failed", "error", uerr)
			}
		}
	} else {
		track, err = h.engine.CurrentTrack(r.Context())
	}

	if err != nil {
		h.writeError(w, err)
		return
	}
	if track == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (h *APIHandler) lyrics(w http.ResponseWriter, r *http.Request) {
	artist := strings.TrimSpace(r.URL.Query().Get("artist"))
	title := strings.TrimSpace(r.URL.Query().Get("title"))

	if artist == "" && title == "" {
		track, err := h.engine.CurrentTrack(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
		if track == nil {
			h.writeError(w, shared.ErrNoCurrentTrack)
			return
		}
		artist, title = track.Artist, track.Title
	}
	if artist == "" || title == "" {
		h.writeError(w, shared.ErrMissingArgument)
		return
	}

	timeline, err := h.engine.FetchLyrics(r.Context(), artist, title)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timeline)
}

func (h *APIHandler) state(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *APIHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	corr, err := h.engine.AdjustOffset(r.Context(), req.Delta)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, correctionResponse{Correction: corr})
}

func (h *APIHandler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResetOffset(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, correctionResponse{})
}

func (h *APIHandler) scroll(w http.ResponseWriter, r *http.Request) {
	var req scrollRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.SetUserScrolled(r.Context(), req.Scrolled); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps error kinds to status codes and writes a JSON body.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	} else {
		h.logger.Debug("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// StatusFor returns the HTTP status that reports err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrAuthFailed), errors.Is(err, shared.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrLyricsNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrNoCurrentTrack):
		return http.StatusConflict
	case errors.Is(err, shared.ErrLockContention), errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, shared.ErrAPIRequest), errors.Is(err, shared.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

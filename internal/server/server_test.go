package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/desertthunder/lyrx/internal/tasks"
	"github.com/gorilla/websocket"
)

type fakeEngine struct {
	mu       sync.Mutex
	hub      *tasks.Hub
	track    *models.TrackSnapshot
	lyrics   *models.LyricTimeline
	corr     int64
	scrolled bool
	updated  int

	adjustErr error
	lyricsErr error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{hub: tasks.NewHub(8)}
}

func (f *fakeEngine) UpdateTrack(_ context.Context, t *models.TrackSnapshot) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated++
	changed := !f.track.SameTrack(t)
	f.track = t
	return changed, nil
}

func (f *fakeEngine) CurrentTrack(context.Context) (*models.TrackSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.track, nil
}

func (f *fakeEngine) Snapshot(context.Context) (models.SyncSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.SyncSnapshot{Track: f.track, Lyrics: f.lyrics, Correction: f.corr, UserScrolled: f.scrolled}, nil
}

func (f *fakeEngine) FetchLyrics(_ context.Context, artist, title string) (*models.LyricTimeline, error) {
	if f.lyricsErr != nil {
		return nil, f.lyricsErr
	}
	return &models.LyricTimeline{
		Lines:  []models.LyricLine{{Start: 0, End: 1000, Text: artist + " " + title}},
		Source: "lrclib",
	}, nil
}

func (f *fakeEngine) AdjustOffset(_ context.Context, delta int64) (int64, error) {
	if f.adjustErr != nil {
		return 0, f.adjustErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.track == nil {
		return 0, shared.ErrNoCurrentTrack
	}
	f.corr += delta
	return f.corr, nil
}

func (f *fakeEngine) ResetOffset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.track == nil {
		return shared.ErrNoCurrentTrack
	}
	f.corr = 0
	return nil
}

func (f *fakeEngine) SetUserScrolled(_ context.Context, scrolled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolled = scrolled
	return nil
}

func (f *fakeEngine) Subscribe() *tasks.Subscription { return f.hub.Subscribe() }
func (f *fakeEngine) Unsubscribe(id string)          { f.hub.Unsubscribe(id) }

type fakeSource struct {
	track *models.TrackSnapshot
	err   error
}

func (s fakeSource) CurrentTrack(context.Context) (*models.TrackSnapshot, error) { return s.track, s.err }

type fakeExchanger struct {
	code string
	err  error
}

func (e *fakeExchanger) Exchange(_ context.Context, code string) error {
	e.code = code
	return e.err
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(&strings.Builder{}, log.Options{Level: log.FatalLevel})
}

func newTestRouter(engine SyncEngine, source tasks.PlaybackSource) *BasicRouter {
	r := NewBasicRouter()
	r.Use(RecoverMiddleware(quietLogger()), LoggingMiddleware(quietLogger()))
	r.Handler(NewAPIHandler(engine, source, quietLogger()))
	r.Handler(NewEventsHandler(engine, quietLogger()))
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

var current = &models.TrackSnapshot{ID: "t1", Title: "Song", Artist: "Band", ProgressMS: 1200, IsPlaying: true}

func TestBasicRouter(t *testing.T) {
	t.Run("Handle enforces method", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle("GET /ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		if rec := do(t, r, http.MethodGet, "/ping", ""); rec.Code != http.StatusTeapot {
			t.Errorf("expected 418, got %d", rec.Code)
		}
		if rec := do(t, r, http.MethodPost, "/ping", ""); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
		if rec := do(t, r, http.MethodGet, "/pong", ""); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("Handler registers every route", func(t *testing.T) {
		r := NewBasicRouter()
		h := NewAPIHandler(newFakeEngine(), nil, quietLogger())
		r.Handler(h)

		for _, route := range h.Routes() {
			method, path, _ := strings.Cut(route.Pattern, " ")
			if rec := do(t, r, method, path, "{}"); rec.Code == http.StatusNotFound || rec.Code == http.StatusMethodNotAllowed {
				t.Errorf("%s not registered, got %d", route.Pattern, rec.Code)
			}
		}
	})

	t.Run("middleware runs in order added", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mw("first"), mw("second"))
		r.Handle("GET /", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		do(t, r, http.MethodGet, "/", "")

		if strings.Join(order, ",") != "first,second" {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("recover middleware", func(t *testing.T) {
		r := NewBasicRouter()
		r.Use(RecoverMiddleware(quietLogger()))
		r.Handle("GET /boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

		if rec := do(t, r, http.MethodGet, "/boom", ""); rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}

func TestAPIHandler(t *testing.T) {
	t.Run("track from engine", func(t *testing.T) {
		engine := newFakeEngine()
		r := newTestRouter(engine, nil)

		if rec := do(t, r, http.MethodGet, "/api/track", ""); rec.Code != http.StatusNoContent {
			t.Errorf("expected 204 with nothing playing, got %d", rec.Code)
		}

		engine.track = current
		rec := do(t, r, http.MethodGet, "/api/track", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := decode[models.TrackSnapshot](t, rec); got.ID != "t1" || got.ProgressMS != 1200 {
			t.Errorf("unexpected track %+v", got)
		}
	})

	t.Run("track from live source feeds engine", func(t *testing.T) {
		engine := newFakeEngine()
		r := newTestRouter(engine, fakeSource{track: current})

		rec := do(t, r, http.MethodGet, "/api/track", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if engine.updated != 1 || engine.track != current {
			t.Errorf("expected engine to observe the track, updated=%d", engine.updated)
		}
	})

	t.Run("auth fault maps to 401", func(t *testing.T) {
		r := newTestRouter(newFakeEngine(), fakeSource{err: fmt.Errorf("%w: nope", shared.ErrAuthFailed)})

		rec := do(t, r, http.MethodGet, "/api/track", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if body := decode[errorResponse](t, rec); !strings.Contains(body.Error, "authentication failed") {
			t.Errorf("unexpected error body %q", body.Error)
		}
	})

	t.Run("lyrics", func(t *testing.T) {
		engine := newFakeEngine()
		r := newTestRouter(engine, nil)

		rec := do(t, r, http.MethodGet, "/api/lyrics?artist=Band&title=Song", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := decode[models.LyricTimeline](t, rec); len(got.Lines) != 1 || got.Lines[0].Text != "Band Song" {
			t.Errorf("unexpected timeline %+v", got)
		}

		if rec := do(t, r, http.MethodGet, "/api/lyrics", ""); rec.Code != http.StatusConflict {
			t.Errorf("expected 409 without a current track, got %d", rec.Code)
		}
		if rec := do(t, r, http.MethodGet, "/api/lyrics?artist=Band", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 with a missing title, got %d", rec.Code)
		}

		engine.track = current
		rec = do(t, r, http.MethodGet, "/api/lyrics", "")
		if got := decode[models.LyricTimeline](t, rec); got.Lines[0].Text != "Band Song" {
			t.Errorf("expected current track lyrics, got %+v", got)
		}

		engine.lyricsErr = shared.ErrLyricsNotFound
		if rec := do(t, r, http.MethodGet, "/api/lyrics?artist=a&title=b", ""); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("offset adjust and reset", func(t *testing.T) {
		engine := newFakeEngine()
		r := newTestRouter(engine, nil)

		if rec := do(t, r, http.MethodPost, "/api/offset/adjust", `{"delta":100}`); rec.Code != http.StatusConflict {
			t.Errorf("expected 409 without a track, got %d", rec.Code)
		}

		engine.track = current
		do(t, r, http.MethodPost, "/api/offset/adjust", `{"delta":100}`)
		rec := do(t, r, http.MethodPost, "/api/offset/adjust", `{"delta":-250}`)
		if got := decode[correctionResponse](t, rec); got.Correction != -150 {
			t.Errorf("expected -150, got %d", got.Correction)
		}

		rec = do(t, r, http.MethodPost, "/api/offset/reset", "")
		if rec.Code != http.StatusOK || engine.corr != 0 {
			t.Errorf("expected reset, code=%d corr=%d", rec.Code, engine.corr)
		}
	})

	t.Run("invalid bodies", func(t *testing.T) {
		engine := newFakeEngine()
		engine.track = current
		r := newTestRouter(engine, nil)

		for _, body := range []string{"", "{", `{"delta":"x"}`, `{"offset":1}`} {
			if rec := do(t, r, http.MethodPost, "/api/offset/adjust", body); rec.Code != http.StatusBadRequest {
				t.Errorf("body %q: expected 400, got %d", body, rec.Code)
			}
		}
	})

	t.Run("lock contention maps to 503", func(t *testing.T) {
		engine := newFakeEngine()
		engine.adjustErr = fmt.Errorf("%w: adjust", shared.ErrLockContention)
		r := newTestRouter(engine, nil)

		if rec := do(t, r, http.MethodPost, "/api/offset/adjust", `{"delta":1}`); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})

	t.Run("scroll and state", func(t *testing.T) {
		engine := newFakeEngine()
		engine.track = current
		r := newTestRouter(engine, nil)

		if rec := do(t, r, http.MethodPost, "/api/scroll", `{"scrolled":true}`); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}

		rec := do(t, r, http.MethodGet, "/api/state", "")
		got := decode[models.SyncSnapshot](t, rec)
		if !got.UserScrolled || got.Track == nil || got.Track.ID != "t1" {
			t.Errorf("unexpected snapshot %+v", got)
		}
	})

	t.Run("post bodies must be json", func(t *testing.T) {
		engine := newFakeEngine()
		engine.track = current
		r := newTestRouter(engine, nil)

		for _, ct := range []string{"", "text/plain", "application/x-www-form-urlencoded", "multipart/form-data; boundary=x"} {
			for _, path := range []string{"/api/offset/adjust", "/api/offset/reset", "/api/scroll"} {
				req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"delta":500}`))
				if ct != "" {
					req.Header.Set("Content-Type", ct)
				}
				rec := httptest.NewRecorder()
				r.ServeHTTP(rec, req)
				if rec.Code != http.StatusUnsupportedMediaType {
					t.Errorf("%s with %q: expected 415, got %d", path, ct, rec.Code)
				}
			}
		}
		if engine.corr != 0 {
			t.Errorf("rejected request changed the correction to %d", engine.corr)
		}

		req := httptest.NewRequest(http.MethodPost, "/api/offset/adjust", strings.NewReader(`{"delta":500}`))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected json with charset accepted, got %d", rec.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		r := newTestRouter(newFakeEngine(), nil)
		if rec := do(t, r, http.MethodGet, "/api/offset/reset", ""); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid argument", shared.ErrInvalidArgument, http.StatusBadRequest},
		{"not authenticated", shared.ErrNotAuthenticated, http.StatusUnauthorized},
		{"lyrics not found", fmt.Errorf("%w: x", shared.ErrLyricsNotFound), http.StatusNotFound},
		{"no current track", shared.ErrNoCurrentTrack, http.StatusConflict},
		{"contention", shared.ErrLockContention, http.StatusServiceUnavailable},
		{"timeout", shared.ErrTimeout, http.StatusGatewayTimeout},
		{"upstream", fmt.Errorf("%w: 500", shared.ErrAPIRequest), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestEventsHandler(t *testing.T) {
	engine := newFakeEngine()
	engine.track = current
	srv := httptest.NewServer(newTestRouter(engine, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	read := func(t *testing.T) StreamMessage {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		return msg
	}

	t.Run("initial snapshot", func(t *testing.T) {
		msg := read(t)
		if msg.Type != "snapshot" || msg.Snapshot == nil || msg.Snapshot.Track.ID != "t1" {
			t.Errorf("unexpected first message %+v", msg)
		}
	})

	t.Run("forwards events", func(t *testing.T) {
		deadline := time.Now().Add(2 * time.Second)
		for engine.hub.Count() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		engine.hub.Publish(models.Event{Kind: models.EventOffset, Correction: 300})

		msg := read(t)
		if msg.Type != "event" || msg.Event == nil || msg.Event.Kind != models.EventOffset || msg.Event.Correction != 300 {
			t.Errorf("unexpected event message %+v", msg)
		}
	})

	t.Run("commands", func(t *testing.T) {
		if err := conn.WriteJSON(StreamMessage{Type: "snapshot"}); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if msg := read(t); msg.Type != "snapshot" {
			t.Errorf("expected snapshot, got %+v", msg)
		}

		if err := conn.WriteJSON(StreamMessage{Type: "bogus"}); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if msg := read(t); msg.Type != "error" || !strings.Contains(msg.Error, "bogus") {
			t.Errorf("expected error, got %+v", msg)
		}
	})

	t.Run("rejects foreign origin", func(t *testing.T) {
		header := http.Header{"Origin": []string{"http://evil.example"}}
		foreign, resp, err := websocket.DefaultDialer.Dial(url, header)
		if err == nil {
			foreign.Close()
			t.Fatal("expected handshake from a foreign origin to fail")
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403, got %+v", resp)
		}

		header = http.Header{"Origin": []string{srv.URL}}
		same, _, err := websocket.DefaultDialer.Dial(url, header)
		if err != nil {
			t.Fatalf("same-origin dial failed: %v", err)
		}
		same.Close()
	})

	t.Run("unsubscribes on close", func(t *testing.T) {
		conn.Close()
		deadline := time.Now().Add(2 * time.Second)
		for engine.hub.Count() != 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if n := engine.hub.Count(); n != 0 {
			t.Errorf("expected no subscribers, got %d", n)
		}
	})
}

func TestOAuthHandler(t *testing.T) {
	t.Run("exchanges code", func(t *testing.T) {
		ex := &fakeExchanger{}
		h := NewOAuthHandler(ex, "state123")

		rec := do(t, h, http.MethodGet, "/callback?state=state123&code=abc", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ex.code != "abc" {
			t.Errorf("expected code abc, got %q", ex.code)
		}
		if res := <-h.Result(); res.Error() != nil {
			t.Errorf("unexpected error %v", res.Error())
		}

		if rec := do(t, h, http.MethodGet, "/callback?state=state123&code=abc", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("expected second callback rejected, got %d", rec.Code)
		}
	})

	t.Run("rejects state mismatch", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{}, "state123")
		if rec := do(t, h, http.MethodGet, "/callback?state=other&code=abc", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if res := <-h.Result(); res.Error() == nil {
			t.Error("expected state error")
		}
	})

	t.Run("reports provider error", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{}, "s")
		do(t, h, http.MethodGet, "/callback?state=s&error=access_denied", "")
		if res := <-h.Result(); res.Error() == nil || !strings.Contains(res.Error().Error(), "access_denied") {
			t.Errorf("expected access_denied, got %v", res.Error())
		}
	})

	t.Run("exchange failure", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{err: shared.ErrAuthFailed}, "s")
		if rec := do(t, h, http.MethodGet, "/callback?state=s&code=c", ""); rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		if res := <-h.Result(); !errors.Is(res.Error(), shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", res.Error())
		}
	})
}

func TestServerRun(t *testing.T) {
	s := New("127.0.0.1:0", http.NotFoundHandler(), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("server did not stop")
	}
}

package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/lyrx/internal/shared"
	"golang.org/x/oauth2"
)

const currentlyPlayingBody = `{
	"is_playing": true,
	"progress_ms": 42000,
	"currently_playing_type": "track",
	"item": {
		"id": "track1",
		"name": "Song",
		"type": "track",
		"duration_ms": 200000,
		"artists": [{"id": "a1", "name": "First"}, {"id": "a2", "name": "Second"}],
		"album": {"id": "al1", "name": "Album", "images": [{"url": "https://img/1", "width": 640, "height": 640}]}
	}
}`

const episodeBody = `{
	"is_playing": true,
	"progress_ms": 1000,
	"currently_playing_type": "episode",
	"item": {
		"id": "ep1",
		"name": "Episode",
		"type": "episode",
		"duration_ms": 3600000,
		"show": {"id": "s1", "name": "Show", "publisher": "Publisher", "images": [{"url": "https://img/show"}]}
	}
}`

const historyBody = `{"items": [{"played_at": "2025-01-01T00:00:00Z", "track": {
	"id": "old1", "name": "Old Song", "type": "track", "duration_ms": 1000,
	"artists": [{"name": "Someone"}], "album": {"name": "Old Album"}
}}]}`

// fakeSpotify routes API paths to fixed responses and counts hits per path.
type fakeSpotify struct {
	mu     sync.Mutex
	routes map[string]func(w http.ResponseWriter, r *http.Request)
	hits   map[string]int
}

func newFakeSpotify() *fakeSpotify {
	return &fakeSpotify{routes: map[string]func(http.ResponseWriter, *http.Request){}, hits: map[string]int{}}
}

func (f *fakeSpotify) respond(path string, status int, body string) {
	f.routes[path] = func(w http.ResponseWriter, r *http.Request) {
		if body != "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		if body != "" {
			w.Write([]byte(body))
		}
	}
}

func (f *fakeSpotify) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	route, ok := f.routes[r.URL.Path]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	route(w, r)
}

func (f *fakeSpotify) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func newTestPlaybackClient(t *testing.T, api *fakeSpotify, tokenURL string) (*PlaybackClient, *Session) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	session := newTestSession(t, tokenURL)
	if err := session.Restore(&oauth2.Token{AccessToken: "valid", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	client := NewPlaybackClient(session,
		WithBaseURL(srv.URL),
		WithRequestTimeout(time.Second),
		WithPlaybackLogger(shared.NewLogger(io.Discard)),
	)
	return client, session
}

func TestPlaybackClient(t *testing.T) {
	ctx := context.Background()

	t.Run("currently playing", func(t *testing.T) {
		api := newFakeSpotify()
		api.routes["/me/player/currently-playing"] = func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("market"); got != "from_token" {
				t.Errorf("market = %q", got)
			}
			if got := r.URL.Query().Get("additional_types"); got != "track,episode" {
				t.Errorf("additional_types = %q", got)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer valid" {
				t.Errorf("Authorization = %q", got)
			}
			w.Write([]byte(currentlyPlayingBody))
		}
		client, _ := newTestPlaybackClient(t, api, "http://unused")

		track, err := client.CurrentTrack(ctx)
		if err != nil {
			t.Fatalf("CurrentTrack() error = %v", err)
		}
		if track == nil {
			t.Fatal("expected a track")
		}
		if track.ID != "track1" || track.Artist != "First, Second" || track.Album != "Album" {
			t.Errorf("unexpected track %+v", track)
		}
		if !track.IsPlaying || track.ProgressMS != 42000 || len(track.Artwork) != 1 {
			t.Errorf("unexpected playback fields %+v", track)
		}
		if api.count("/me/player") != 0 {
			t.Error("cascade should stop at the first found result")
		}
	})

	t.Run("falls through to player state on no content", func(t *testing.T) {
		api := newFakeSpotify()
		api.respond("/me/player/currently-playing", http.StatusNoContent, "")
		api.respond("/me/player", http.StatusOK, episodeBody)
		client, _ := newTestPlaybackClient(t, api, "http://unused")

		track, err := client.CurrentTrack(ctx)
		if err != nil {
			t.Fatalf("CurrentTrack() error = %v", err)
		}
		if track == nil || track.ID != "ep1" || track.Artist != "Publisher" || track.Album != "Show" {
			t.Errorf("unexpected track %+v", track)
		}
	})

	t.Run("falls through on server errors to history", func(t *testing.T) {
		api := newFakeSpotify()
		api.respond("/me/player/currently-playing", http.StatusInternalServerError, "")
		api.respond("/me/player", http.StatusBadGateway, "")
		api.respond("/me/player/recently-played", http.StatusOK, historyBody)
		client, _ := newTestPlaybackClient(t, api, "http://unused")

		track, err := client.CurrentTrack(ctx)
		if err != nil {
			t.Fatalf("CurrentTrack() error = %v", err)
		}
		if track == nil || track.ID != "old1" {
			t.Fatalf("unexpected track %+v", track)
		}
		if track.IsPlaying || !track.FromHistory || track.ProgressMS != 0 {
			t.Errorf("history track should be marked not playing: %+v", track)
		}
	})

	t.Run("nothing playing runs device diagnostic", func(t *testing.T) {
		api := newFakeSpotify()
		api.respond("/me/player/currently-playing", http.StatusNoContent, "")
		api.respond("/me/player", http.StatusNoContent, "")
		api.respond("/me/player/recently-played", http.StatusOK, `{"items": []}`)
		api.respond("/me/player/devices", http.StatusOK, `{"devices": [{"id": "d", "name": "Phone", "type": "Smartphone", "is_active": false}]}`)
		client, _ := newTestPlaybackClient(t, api, "http://unused")

		track, err := client.CurrentTrack(ctx)
		if err != nil || track != nil {
			t.Fatalf("expected (nil, nil), got (%+v, %v)", track, err)
		}
		if api.count("/me/player/devices") != 1 {
			t.Errorf("expected one device diagnostic, got %d", api.count("/me/player/devices"))
		}
	})

	t.Run("item without id is empty", func(t *testing.T) {
		api := newFakeSpotify()
		api.respond("/me/player/currently-playing", http.StatusOK, `{"is_playing": true, "item": null}`)
		api.respond("/me/player", http.StatusOK, currentlyPlayingBody)
		client, _ := newTestPlaybackClient(t, api, "http://unused")

		track, _ := client.CurrentTrack(ctx)
		if track == nil || track.ID != "track1" {
			t.Errorf("expected fallthrough to player state, got %+v", track)
		}
	})

	t.Run("unauthorized refreshes once and yields nothing", func(t *testing.T) {
		var tokenCalls int32
		tokens := tokenServer(t, http.StatusOK, "", &tokenCalls)
		defer tokens.Close()

		api := newFakeSpotify()
		api.respond("/me/player/currently-playing", http.StatusUnauthorized, `{"error": {"status": 401}}`)
		api.respond("/me/player", http.StatusOK, currentlyPlayingBody)
		client, _ := newTestPlaybackClient(t, api, tokens.URL)

		track, err := client.CurrentTrack(ctx)
		if err != nil || track != nil {
			t.Fatalf("expected (nil, nil) after refresh, got (%+v, %v)", track, err)
		}
		if got := atomic.LoadInt32(&tokenCalls); got != 1 {
			t.Errorf("expected exactly one refresh, got %d", got)
		}
		if api.count("/me/player") != 0 {
			t.Error("cycle should end after the refresh")
		}
	})

	t.Run("unauthorized with failing refresh is an auth fault", func(t *testing.T) {
		var tokenCalls int32
		tokens := tokenServer(t, http.StatusBadRequest, "", &tokenCalls)
		defer tokens.Close()

		api := newFakeSpotify()
		api.respond("/me/player/currently-playing", http.StatusUnauthorized, "")
		client, session := newTestPlaybackClient(t, api, tokens.URL)

		_, err := client.CurrentTrack(ctx)
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		if session.Status().State != Unauthenticated {
			t.Errorf("expected session to be invalidated")
		}

		if _, err := client.CurrentTrack(ctx); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated on next cycle, got %v", err)
		}
	})

	t.Run("strategy timeout is transient", func(t *testing.T) {
		api := newFakeSpotify()
		api.routes["/me/player/currently-playing"] = func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}
		api.respond("/me/player", http.StatusOK, currentlyPlayingBody)
		client, _ := newTestPlaybackClient(t, api, "http://unused")
		client.timeout = 50 * time.Millisecond

		track, err := client.CurrentTrack(ctx)
		if err != nil || track == nil {
			t.Fatalf("expected fallthrough after timeout, got (%+v, %v)", track, err)
		}
	})

	t.Run("malformed body is transient", func(t *testing.T) {
		api := newFakeSpotify()
		api.respond("/me/player/currently-playing", http.StatusOK, `{not json`)
		api.respond("/me/player", http.StatusOK, currentlyPlayingBody)
		client, _ := newTestPlaybackClient(t, api, "http://unused")

		if track, err := client.CurrentTrack(ctx); err != nil || track == nil {
			t.Fatalf("expected fallthrough, got (%+v, %v)", track, err)
		}
	})

	t.Run("unauthenticated session", func(t *testing.T) {
		api := newFakeSpotify()
		client, session := newTestPlaybackClient(t, api, "http://unused")
		session.Invalidate()

		if _, err := client.CurrentTrack(ctx); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("DetectMarket", func(t *testing.T) {
		api := newFakeSpotify()
		api.respond("/me", http.StatusOK, `{"id": "u", "country": "BR"}`)
		client, _ := newTestPlaybackClient(t, api, "http://unused")

		market, err := client.DetectMarket(ctx)
		if err != nil {
			t.Fatalf("DetectMarket() error = %v", err)
		}
		if market != "BR" || client.Market() != "BR" {
			t.Errorf("expected market BR, got %q", client.Market())
		}
	})

	t.Run("ProbeNoContent", func(t *testing.T) {
		t.Run("bounded attempts", func(t *testing.T) {
			api := newFakeSpotify()
			api.respond("/me/player/currently-playing", http.StatusNoContent, "")
			client, _ := newTestPlaybackClient(t, api, "http://unused")

			res, err := client.ProbeNoContent(ctx, 3, time.Millisecond)
			if err != nil {
				t.Fatalf("ProbeNoContent() error = %v", err)
			}
			if res.Attempts != 3 || res.Status != http.StatusNoContent {
				t.Errorf("unexpected result %+v", res)
			}
			if api.count("/me/player/currently-playing") != 3 {
				t.Errorf("expected 3 requests, got %d", api.count("/me/player/currently-playing"))
			}
		})

		t.Run("stops on content", func(t *testing.T) {
			api := newFakeSpotify()
			var n int32
			api.routes["/me/player/currently-playing"] = func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&n, 1) == 1 {
					w.WriteHeader(http.StatusNoContent)
					return
				}
				w.Write([]byte(currentlyPlayingBody))
			}
			client, _ := newTestPlaybackClient(t, api, "http://unused")

			res, err := client.ProbeNoContent(ctx, 3, time.Millisecond)
			if err != nil {
				t.Fatalf("ProbeNoContent() error = %v", err)
			}
			if res.Attempts != 2 || res.Status != http.StatusOK {
				t.Errorf("unexpected result %+v", res)
			}
		})
	})

	t.Run("RecentTracks", func(t *testing.T) {
		api := newFakeSpotify()
		api.routes["/me/player/recently-played"] = func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("limit"); got != "50" {
				t.Errorf("limit = %q, want clamped 50", got)
			}
			w.Write([]byte(`{"items": [
				{"track": {"id": "t1", "name": "One", "artists": [{"name": "A"}]}},
				{"track": {"id": "t1", "name": "One", "artists": [{"name": "A"}]}},
				{"track": {"id": "", "name": "Local"}},
				{"track": {"id": "t2", "name": "Two", "artists": [{"name": "B"}]}}
			]}`))
		}
		client, _ := newTestPlaybackClient(t, api, "http://unused")

		tracks, err := client.RecentTracks(ctx, 500)
		if err != nil {
			t.Fatalf("RecentTracks() error = %v", err)
		}
		if len(tracks) != 2 || tracks[0].ID != "t1" || tracks[1].ID != "t2" {
			t.Fatalf("unexpected tracks %+v", tracks)
		}
		if !tracks[0].FromHistory {
			t.Error("history tracks should be marked")
		}
	})

	t.Run("custom strategies", func(t *testing.T) {
		api := newFakeSpotify()
		client, _ := newTestPlaybackClient(t, api, "http://unused")
		client.strategies = []Strategy{stubStrategy{res: Result{Outcome: Fault, Err: shared.ErrAPIRequest}}, stubStrategy{res: Result{Outcome: Empty}}}
		api.respond("/me/player/devices", http.StatusOK, `{"devices": []}`)

		track, err := client.CurrentTrack(ctx)
		if err != nil || track != nil {
			t.Errorf("expected (nil, nil), got (%+v, %v)", track, err)
		}
	})
}

type stubStrategy struct{ res Result }

func (s stubStrategy) Name() string { return "stub" }

func (s stubStrategy) Fetch(ctx context.Context, c *PlaybackClient) Result { return s.res }

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{Found: "found", Empty: "empty", Fault: "fault"} {
		if o.String() != want {
			t.Errorf("%d.String() = %q, want %q", o, o.String(), want)
		}
	}
}

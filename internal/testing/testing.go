// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/lyrx/internal/models"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

// MockPlaybackSource returns queued tracks in order, repeating the last one.
type MockPlaybackSource struct {
	mu     sync.Mutex
	Tracks []*models.TrackSnapshot
	Err    error
	Calls  int
}

func (m *MockPlaybackSource) CurrentTrack(ctx context.Context) (*models.TrackSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Tracks) == 0 {
		return nil, nil
	}
	t := m.Tracks[0]
	if len(m.Tracks) > 1 {
		m.Tracks = m.Tracks[1:]
	}
	if t == nil {
		return nil, nil
	}
	c := *t
	return &c, nil
}

// MockResolver resolves every request to Timeline, or fails with Err.
type MockResolver struct {
	mu       sync.Mutex
	Timeline *models.LyricTimeline
	Err      error
	Calls    int
	// Block, when set, is received from before answering.
	Block chan struct{}
}

func (m *MockResolver) Resolve(ctx context.Context, artist, title string) (*models.LyricTimeline, error) {
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Timeline.Clone(), nil
}

// CallCount returns the number of Resolve calls.
func (m *MockResolver) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// MemoryLyricsCache is an in-memory lyrics cache keyed by artist and title.
type MemoryLyricsCache struct {
	mu       sync.Mutex
	Entries  map[string]*models.LyricTimeline
	StoreErr error
}

func NewMemoryLyricsCache() *MemoryLyricsCache {
	return &MemoryLyricsCache{Entries: make(map[string]*models.LyricTimeline)}
}

func (m *MemoryLyricsCache) GetLyrics(ctx context.Context, artist, title string) (*models.LyricTimeline, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Entries[models.TrackKey(artist, title)]
	return t.Clone(), ok, nil
}

func (m *MemoryLyricsCache) StoreLyrics(ctx context.Context, artist, title string, t *models.LyricTimeline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StoreErr != nil {
		return m.StoreErr
	}
	m.Entries[models.TrackKey(artist, title)] = t.Clone()
	return nil
}

// Len returns the number of cached timelines.
func (m *MemoryLyricsCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries)
}

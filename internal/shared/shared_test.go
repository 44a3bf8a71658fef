package shared

import (
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeKey(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  string
	}{
		{name: "basic normalization", input: "Song Title", want: "song title"},
		{name: "extra whitespace", input: "  Song   Title  ", want: "song title"},
		{name: "mixed case", input: "SoNg TiTlE", want: "song title"},
		{name: "empty", input: "   ", want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeKey(tt.input); got != tt.want {
				t.Errorf("NormalizeKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheKey(t *testing.T) {
	tc := []struct {
		name   string
		artist string
		title  string
		want   string
	}{
		{name: "simple", artist: "Daft Punk", title: "One More Time", want: "daft punk\tone more time"},
		{name: "padded", artist: "  Björk ", title: "Army  of Me", want: "björk\tarmy of me"},
		{name: "tabs in input", artist: "Foo\tBar", title: "Baz", want: "foo bar\tbaz"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := CacheKey(tt.artist, tt.title); got != tt.want {
				t.Errorf("CacheKey() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("split point is part of the key", func(t *testing.T) {
		pairs := [][2]string{
			{"Foo Bar", "Baz"},
			{"Foo", "Bar Baz"},
			{"Foo_Bar", "Baz"},
			{"Foo", "Bar_Baz"},
		}
		seen := map[string][2]string{}
		for _, p := range pairs {
			key := CacheKey(p[0], p[1])
			if prev, ok := seen[key]; ok {
				t.Errorf("%v and %v share key %q", prev, p, key)
			}
			seen[key] = p
		}
	})
}

func TestLoggers(t *testing.T) {
	t.Run("NewLogger writes to the given writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		WithLogger(logger, "component", "test").Info("hello")

		if !strings.Contains(buf.String(), "component=test") {
			t.Errorf("expected key-value pair in output, got %q", buf.String())
		}
	})

	t.Run("NewFileLogger creates the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "lyrx.log")
		logger, closer, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger() error = %v", err)
		}
		defer closer.Close()

		logger.Info("written")
	})

	t.Run("GenerateID is unique", func(t *testing.T) {
		if GenerateID() == GenerateID() {
			t.Error("expected distinct ids")
		}
	})
}

func TestBrowserCommand(t *testing.T) {
	const url = "https://accounts.spotify.com/authorize?state=x"

	tests := []struct {
		name     string
		goos     string
		env      string
		wantName string
		wantArgs []string
	}{
		{name: "darwin", goos: "darwin", wantName: "open", wantArgs: []string{url}},
		{name: "linux", goos: "linux", wantName: "xdg-open", wantArgs: []string{url}},
		{name: "windows", goos: "windows", wantName: "rundll32", wantArgs: []string{"url.dll,FileProtocolHandler", url}},
		{name: "BROWSER overrides platform", goos: "linux", env: "firefox", wantName: "firefox", wantArgs: []string{url}},
		{name: "BROWSER with args", goos: "darwin", env: "chromium --new-window", wantName: "chromium", wantArgs: []string{"--new-window", url}},
		{name: "BROWSER list uses first", goos: "linux", env: "w3m:lynx", wantName: "w3m", wantArgs: []string{url}},
		{name: "blank BROWSER ignored", goos: "linux", env: "  ", wantName: "xdg-open", wantArgs: []string{url}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args, err := browserCommand(tt.goos, tt.env, url)
			if err != nil {
				t.Fatalf("browserCommand() error = %v", err)
			}
			if name != tt.wantName || !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("browserCommand() = %s %v, want %s %v", name, args, tt.wantName, tt.wantArgs)
			}
		})
	}

	t.Run("unsupported platform", func(t *testing.T) {
		if _, _, err := browserCommand("plan9", "", url); !errors.Is(err, ErrNoBrowser) {
			t.Errorf("expected ErrNoBrowser, got %v", err)
		}
	})
}

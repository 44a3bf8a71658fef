package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	tu "github.com/desertthunder/lyrx/internal/testing"
)

func TestAPIService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL and Client", func(t *testing.T) {
			customClient := &http.Client{}
			srv := NewAPIService("http://example.com", customClient)

			if srv.baseURL != "http://example.com" {
				t.Errorf("expected baseURL 'http://example.com', got %s", srv.baseURL)
			}
			if srv.httpClient != customClient {
				t.Error("expected custom client to be used")
			}
		})

		t.Run("With Empty BaseURL", func(t *testing.T) {
			srv := NewAPIService("", nil)

			if srv.baseURL != lrclibBaseURL {
				t.Errorf("expected default baseURL %s, got %s", lrclibBaseURL, srv.baseURL)
			}
			if srv.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("Successful Request With JSON Response", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET method, got %s", r.Method)
				}
				if r.URL.Path != "/test" {
					t.Errorf("expected path '/test', got %s", r.URL.Path)
				}
				if r.URL.Query().Get("q") != "a b" {
					t.Errorf("expected query q='a b', got %q", r.URL.Query().Get("q"))
				}
				if r.Header.Get("User-Agent") != "ua/1" {
					t.Errorf("expected user agent, got %q", r.Header.Get("User-Agent"))
				}

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{"status": "success"})
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil).WithUserAgent("ua/1")
			resp, err := srv.Get(context.Background(), "/test", url.Values{"q": {"a b"}})

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !resp.OK() {
				t.Errorf("expected status 200, got %d", resp.StatusCode)
			}
			if !resp.IsJSON || resp.JSONData == nil {
				t.Error("expected response to be JSON")
			}

			var decoded map[string]string
			if err := resp.Decode(&decoded); err != nil || decoded["status"] != "success" {
				t.Errorf("Decode() = %v, %v", decoded, err)
			}
		})

		t.Run("Successful Request With Non-JSON Response", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				w.Write([]byte("plain text response"))
			}))
			defer server.Close()

			resp, err := NewAPIService(server.URL, nil).Get(context.Background(), "/test", nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.IsJSON {
				t.Error("expected response to not be JSON")
			}
			if string(resp.Body) != "plain text response" {
				t.Errorf("expected body 'plain text response', got %s", string(resp.Body))
			}

			var v any
			if err := resp.Decode(&v); err == nil {
				t.Error("expected decode error for plain text")
			}
		})

		t.Run("Failed Request Creation", func(t *testing.T) {
			_, err := NewAPIService("http://example.com", nil).Get(context.Background(), "/test\x00invalid", nil)
			if err == nil || !strings.Contains(err.Error(), "failed to create request") {
				t.Errorf("expected 'failed to create request' error, got %v", err)
			}
		})

		t.Run("Failed HTTP Request", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed"))}

			_, err := NewAPIService("http://example.com", client).Get(context.Background(), "/test", nil)
			if err == nil || !strings.Contains(err.Error(), "request failed") {
				t.Errorf("expected 'request failed' error, got %v", err)
			}
		})

		t.Run("Failed Response Body Read", func(t *testing.T) {
			resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(&tu.FCloser{}), Header: http.Header{}}
			client := &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}

			_, err := NewAPIService("http://example.com", client).Get(context.Background(), "/test", nil)
			if err == nil || !strings.Contains(err.Error(), "failed to read response") {
				t.Errorf("expected 'failed to read response' error, got %v", err)
			}
		})

		t.Run("With Canceled Context", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			defer server.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			if _, err := NewAPIService(server.URL, nil).Get(ctx, "/test", nil); err == nil {
				t.Error("expected error for canceled context")
			}
		})

		t.Run("Response Headers Are Preserved", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Custom-Header", "custom-value")
				w.WriteHeader(http.StatusNotFound)
			}))
			defer server.Close()

			resp, err := NewAPIService(server.URL, nil).Get(context.Background(), "/test", nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.Headers.Get("X-Custom-Header") != "custom-value" {
				t.Error("expected custom header to be preserved")
			}
			if resp.OK() {
				t.Error("404 should not be OK")
			}
		})
	})
}

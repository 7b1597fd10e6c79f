package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func completion(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Fatalf("encoding response: %v", err)
	}
}

func newTestClient(url string, retries int) *Client {
	return NewClient(ClientOptions{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "gpt-4o",
		MaxRetries: retries,
		Throttle:   NewThrottle(0),
	})
}

func TestAnalyzeSuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		completion(t, w, `{"findings": [], "summary": "clean"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	got, err := c.Analyze(context.Background(), "you review code", "the code", nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got != `{"findings": [], "summary": "clean"}` {
		t.Errorf("content = %q", got)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v", gotReq.ResponseFormat)
	}
}

func TestAnalyzeAuthErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.Analyze(context.Background(), "s", "u", nil)

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *AuthError", err)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", authErr.Status)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", n)
	}
}

func TestAnalyzeTooLargeNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.Analyze(context.Background(), "s", "u", nil)

	var tooLarge *TooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("error = %v, want *TooLargeError", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", n)
	}
}

func TestAnalyzeRateLimitRampsThrottle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	_, err := c.Analyze(context.Background(), "s", "u", nil)
	if err == nil {
		t.Fatal("Analyze() error = nil, want rate limit failure")
	}

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("error = %v, want wrapped *RateLimitError", err)
	}
	if rl.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %s, want 3s", rl.RetryAfter)
	}
	// The penalty is raised at least to the provider's hint.
	if got := c.Throttle().EffectiveDelay(); got < 3*time.Second {
		t.Errorf("EffectiveDelay = %s, want >= 3s", got)
	}
}

func TestAnalyzeRateLimitThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0.05")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		completion(t, w, `{"findings": [], "summary": "ok"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	got, err := c.Analyze(context.Background(), "s", "u", nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got == "" {
		t.Error("content is empty")
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestAnalyzeServerErrorRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		completion(t, w, `{"findings": [], "summary": "ok"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	start := time.Now()
	_, err := c.Analyze(context.Background(), "s", "u", nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
	// First backoff step is 2^1 seconds.
	if elapsed := time.Since(start); elapsed < 2*time.Second {
		t.Errorf("elapsed = %s, want >= 2s backoff before retry", elapsed)
	}
}

func TestAnalyzeAttemptCeiling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		completion(t, w, "not even json")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.Analyze(context.Background(), "s", "u", func(string) error {
		return fmt.Errorf("missing findings key")
	})
	if err == nil {
		t.Fatal("Analyze() error = nil, want exhaustion failure")
	}
	if n := calls.Load(); n != 5 {
		t.Errorf("calls = %d, want exactly 5", n)
	}
}

func TestAnalyzeAcceptRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			completion(t, w, "garbled")
			return
		}
		completion(t, w, `{"findings": [], "summary": "ok"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	got, err := c.Analyze(context.Background(), "s", "u", func(content string) error {
		if content == "garbled" {
			return fmt.Errorf("not valid JSON")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got != `{"findings": [], "summary": "ok"}` {
		t.Errorf("content = %q", got)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestAnalyzeEmptyCompletionRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprint(w, `{"choices": []}`)
			return
		}
		completion(t, w, `{"findings": [], "summary": "ok"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	if _, err := c.Analyze(context.Background(), "s", "u", nil); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestAnalyzeContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read and can
		// observe the client disconnect; otherwise the handler (and thus
		// srv.Close) blocks forever on older Go versions.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := newTestClient(srv.URL, 3)
	_, err := c.Analyze(ctx, "s", "u", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"0.5", 500 * time.Millisecond},
		{"-1", 0},
		{"Wed, 21 Oct 2026 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

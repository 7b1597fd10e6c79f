package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 300 * time.Second
	defaultRetries = 5

	maxErrorBody = 2048
)

// RateLimitError is a 429 response. RetryAfter carries the provider's
// Retry-After hint when present.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (429), retry after %s", e.RetryAfter)
	}
	return "rate limited (429)"
}

// AuthError is a 401 or 403 response. It is never retried.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%d): %s", e.Status, e.Body)
}

// TooLargeError is a 413 response: the request exceeds the provider's
// payload limit and retrying the same payload cannot succeed.
type TooLargeError struct {
	Body string
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("request too large (413): %s", e.Body)
}

// ServerError is a 5xx response, retried with backoff.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Body)
}

// APIError is any other non-success response, not retried.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Body)
}

// ClientOptions configures a Client. Zero values take the package defaults.
type ClientOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxRetries  int
	Timeout     time.Duration
	Throttle    *Throttle
	Logger      *slog.Logger
}

// Client sends analysis requests to an OpenAI-compatible chat-completions
// endpoint. It is safe for concurrent use.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxRetries  int
	http        *http.Client
	throttle    *Throttle
	log         *slog.Logger
}

// NewClient returns a client for opts. The throttle may be shared with
// other clients; a nil throttle gets a zero-delay one.
func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultRetries
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	throttle := opts.Throttle
	if throttle == nil {
		throttle = NewThrottle(0)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		apiKey:      opts.APIKey,
		baseURL:     baseURL,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxRetries:  retries,
		http:        &http.Client{Timeout: timeout},
		throttle:    throttle,
		log:         log,
	}
}

// Throttle returns the throttle the client dispatches through.
func (c *Client) Throttle() *Throttle { return c.throttle }

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze sends system and user messages and returns the assistant's
// content. If accept is non-nil it validates the content; rejection counts
// as a retriable failure, so a model that returns malformed output gets a
// fresh generation within the attempt budget.
//
// Each attempt waits on the shared throttle first. Rate limits ramp the
// throttle and retry; 5xx, timeouts, connection errors, and empty or
// invalid bodies retry with exponential backoff; auth and payload-size
// errors return immediately.
func (c *Client) Analyze(ctx context.Context, system, user string, accept func(string) error) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    c.temperature,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.throttle.Wait(ctx); err != nil {
			return "", err
		}

		content, err := c.send(ctx, payload)
		if err == nil {
			c.throttle.Decay()
			if accept != nil {
				if aerr := accept(content); aerr != nil {
					lastErr = fmt.Errorf("invalid model response: %w", aerr)
					c.log.Warn("model response rejected", "attempt", attempt, "error", aerr)
					continue
				}
			}
			return content, nil
		}

		switch e := err.(type) {
		case *RateLimitError:
			c.throttle.Ramp(e.RetryAfter)
			c.log.Warn("rate limited, ramping throttle",
				"attempt", attempt,
				"retry_after", e.RetryAfter,
				"effective_delay", c.throttle.EffectiveDelay())
			lastErr = err
			continue
		case *AuthError, *TooLargeError, *APIError:
			return "", err
		case *ServerError:
			lastErr = err
		default:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Timeouts and connection failures land here.
			lastErr = err
		}

		c.log.Warn("request failed, backing off", "attempt", attempt, "error", lastErr)
		if err := sleepBackoff(ctx, attempt); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, lastErr)
}

// send performs a single HTTP exchange and classifies the outcome.
func (c *Client) send(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.throttle.markCall()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// handled below
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &AuthError{Status: resp.StatusCode, Body: trimBody(body)}
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return "", &TooLargeError{Body: trimBody(body)}
	case resp.StatusCode >= 500:
		return "", &ServerError{Status: resp.StatusCode, Body: trimBody(body)}
	default:
		return "", &APIError{Status: resp.StatusCode, Body: trimBody(body)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &ServerError{Status: resp.StatusCode, Body: "malformed completion envelope"}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", &ServerError{Status: resp.StatusCode, Body: "empty completion"}
	}
	return parsed.Choices[0].Message.Content, nil
}

// parseRetryAfter handles the delta-seconds form of the header. The HTTP
// date form is rare from these providers and is treated as absent.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func trimBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}

func sleepBackoff(ctx context.Context, attempt int) error {
	d := time.Duration(1<<uint(attempt)) * time.Second
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

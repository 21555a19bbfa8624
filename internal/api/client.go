package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenSource supplies the bearer token for each request. An empty token
// sends the request unauthenticated.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource with a fixed value.
type StaticToken string

// Token returns the fixed token.
func (s StaticToken) Token() string { return string(s) }

// Client is a thin HTTP client for the workdesk REST API.
// It handles Bearer token authentication, JSON marshaling, and
// automatic retry with exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a new API client. The baseURL is the API root
// (e.g., http://localhost:5000/api). tokens is consulted on every request
// so that login and logout take effect without rebuilding the client.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if tokens == nil {
		tokens = StaticToken("")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: 3,
	}
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Post performs an HTTP POST request with a JSON body and unmarshals
// the JSON response.
func (c *Client) Post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// Put performs an HTTP PUT request.
func (c *Client) Put(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPut, path, body, result)
}

// Delete performs an HTTP DELETE request.
func (c *Client) Delete(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodDelete, path, nil, result)
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting with exponential backoff, and JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	url := c.baseURL + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	requestID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, path)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			msg := "session expired, please log in again"
			var eb errorBody
			if json.Unmarshal(respBody, &eb) == nil && eb.Message != "" {
				msg = eb.Message
			}
			return &AuthError{Message: msg}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{Method: method, Path: path, Status: resp.StatusCode}
			var eb errorBody
			if json.Unmarshal(respBody, &eb) == nil {
				statusErr.Message = eb.Message
				if statusErr.Message == "" {
					statusErr.Message = eb.Error
				}
			}
			return statusErr
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
		}

		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

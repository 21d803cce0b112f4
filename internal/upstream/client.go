// Package upstream forwards intercepted requests to the real chat backend,
// preserving the client's own credentials and streaming semantics.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/logging"
)

// DefaultBaseURL is the chat backend the meter fronts.
const DefaultBaseURL = "https://chatgpt.com"

// Client handles communication with the upstream chat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the configured upstream. METER_UPSTREAM
// overrides the default backend.
func NewClient() *Client {
	baseURL := strings.TrimSpace(os.Getenv("METER_UPSTREAM"))
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // Long timeout for streaming
		},
	}
}

// NewClientWithBase creates a client for an explicit base URL.
func NewClientWithBase(baseURL string) *Client {
	c := NewClient()
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// BaseURL returns the upstream base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Forward replays an intercepted request against the upstream backend. The
// original path, query, body, and sanitized headers are preserved; the caller
// owns the response body.
func (c *Client) Forward(ctx context.Context, method, path string, query url.Values, headers http.Header, body []byte) (*http.Response, error) {
	target := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	CopyForwardHeaders(req.Header, headers)
	if id := logging.GetRequestID(ctx); id != "" {
		req.Header.Set(logging.HeaderName, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	return resp, nil
}

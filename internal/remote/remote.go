// Package remote posts valley models to the external computation service.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sentinels for errors returned by Client.Post
var (
	ErrUnreachable = errors.New("service unreachable")
	ErrRejected    = errors.New("service rejected request")
)

// maxResponseBytes bounds how much of a response is read
const maxResponseBytes = 32 << 20

// excerptBytes bounds the body kept in a StatusError
const excerptBytes = 512

// StatusError is a non-2xx answer
type StatusError struct {
	URL     string
	Status  int
	Excerpt string
}

func (e *StatusError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("%s returned %d", e.URL, e.Status)
	}
	return fmt.Sprintf("%s returned %d: %s", e.URL, e.Status, e.Excerpt)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRejected
}

// Client posts JSON bodies to one endpoint with a bounded timeout
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a client for url. A zero timeout means no deadline beyond
// the caller's context.
func New(url string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		url:     url,
		timeout: timeout,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint
func (c *Client) URL() string {
	return c.url
}

// Post sends body as application/json and returns the response body.
// Transport failures and timeouts wrap ErrUnreachable; non-2xx statuses
// are *StatusError values matching ErrRejected.
func (c *Client) Post(ctx context.Context, body []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			URL:     c.url,
			Status:  resp.StatusCode,
			Excerpt: excerpt(data),
		}
	}
	return data, nil
}

func excerpt(data []byte) string {
	text := strings.TrimSpace(string(data))
	if len(text) > excerptBytes {
		text = text[:excerptBytes] + "..."
	}
	return text
}

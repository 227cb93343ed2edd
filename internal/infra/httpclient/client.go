// Package httpclient provides the shared pooled HTTP client used by functions.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: http %d", e.URL, e.StatusCode)
}

// Stats counts requests made through a Client.
type Stats struct {
	Requests  int
	Failures  int
	LastError string
}

// Client is a pooled HTTP client shared across invocations. Reusing it keeps
// connections warm instead of dialing per call.
type Client struct {
	httpClient *http.Client

	mu    sync.Mutex
	stats Stats
}

// New creates a client with a pooled transport.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Get fetches url and fails on any non-2xx status. The body is drained so the
// connection goes back to the pool.
func (c *Client) Get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return c.record(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.record(fmt.Errorf("get %s: %w", url, err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.record(&StatusError{URL: url, StatusCode: resp.StatusCode})
	}
	return c.record(nil)
}

// Stats returns a snapshot of the request counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Client) record(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Requests++
	if err != nil {
		c.stats.Failures++
		c.stats.LastError = err.Error()
	}
	return err
}

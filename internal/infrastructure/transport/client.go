// Package transport provides the retrying HTTP client shared by the
// marketplace and ledger API adapters. Transient failures (network errors,
// 429, 5xx) are retried with exponential backoff; every other status is
// returned to the caller to interpret.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxResponseSize is the maximum allowed response size from a remote API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Response carries the status, headers and bounded body of one HTTP exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is an HTTP client with bounded retries on transient failures.
type Client struct {
	httpClient      *http.Client
	initialInterval time.Duration
	maxElapsed      time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithRetryWindow overrides the backoff timing; mainly for tests.
func WithRetryWindow(initial, maxElapsed time.Duration) Option {
	return func(c *Client) {
		c.initialInterval = initial
		c.maxElapsed = maxElapsed
	}
}

// NewClient creates a Client with the given per-request timeout.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		initialInterval: 500 * time.Millisecond,
		maxElapsed:      2 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends the request and retries while the server answers 429 or 5xx or
// the connection fails. A delay-seconds Retry-After header on a retryable
// status is waited out before the next attempt. Non-retryable statuses, 4xx
// included, come back as a normal Response for the caller to interpret.
func (c *Client) Do(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*Response, error) {
	operation := func() (*Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("transport: failed to create request: %w", err))
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, fmt.Errorf("transport: failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if seconds := retryAfterSeconds(resp.Header); seconds > 0 {
				if err := waitRetryAfter(ctx, time.Duration(seconds)*time.Second); err != nil {
					return nil, backoff.Permanent(err)
				}
			}
			return nil, fmt.Errorf("transport: server returned HTTP %d", resp.StatusCode)
		}

		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       data,
		}, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	policy.MaxElapsedTime = c.maxElapsed

	return backoff.RetryWithData(operation, backoff.WithContext(policy, ctx))
}

// waitRetryAfter pauses for the server-requested delay before the next
// attempt, aborting when the request context ends first.
func waitRetryAfter(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfterSeconds parses a delay-seconds Retry-After header, 0 when absent
// or unusable.
func retryAfterSeconds(header http.Header) int {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}
	return seconds
}

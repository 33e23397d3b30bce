package scraper

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"grocery-price/internal/ratelimit"
)

// Client is an HTTP client for scraping. Every request, retries included,
// takes one permit from the shared limiter before it goes out.
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *ratelimit.Limiter
	maxRetries int
}

// NewClient creates a new scraper client
func NewClient(userAgent string, timeout time.Duration, limiter *ratelimit.Limiter) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent:  userAgent,
		limiter:    limiter,
		maxRetries: 2,
	}
}

// UserAgent returns the configured user agent
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Limiter returns the shared limiter
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// Acquire takes one permit, or returns nil when no limiter is configured
func (c *Client) Acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Acquire(ctx)
}

// Fetch fetches a URL and returns the body
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	return c.FetchWithRetry(ctx, url, c.maxRetries)
}

// FetchWithRetry fetches a URL with retry logic
func (c *Client) FetchWithRetry(ctx context.Context, url string, maxRetries int) (string, error) {
	body, err := c.do(ctx, maxRetries, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		return req, nil
	})
	return string(body), err
}

// PostJSON posts payload as JSON and decodes the response into out
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	body, err := c.do(ctx, c.maxRetries, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError is a non-2xx answer
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

func (c *Client) do(ctx context.Context, maxRetries int, build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.Acquire(ctx); err != nil {
			return nil, err
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept-Encoding", "gzip")
		if req.Header.Get("Accept-Language") == "" {
			req.Header.Set("Accept-Language", "en-CA,en;q=0.9")
		}

		body, err := c.send(req)
		if err == nil {
			return body, nil
		}
		lastErr = err

		// For non-retryable status codes, don't retry
		if se, ok := err.(*statusError); ok && !se.retryable() {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode}
	}

	var reader io.Reader = resp.Body

	// Handle gzip decompression
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return content, nil
}

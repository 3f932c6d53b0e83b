// Package fetch downloads company pages and reduces them to clean text.
// Every download runs through one shared capped client: response bodies are
// cut off at a byte cap, redirects are followed, and failures map onto the
// stable fetch error kinds the orchestrator and retry logic key on.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"prospect/internal/core"
)

const (
	// DefaultBodyCap is the maximum bytes read from any response body.
	DefaultBodyCap = 2 << 20 // 2 MiB
	// DefaultTimeout bounds a single page download.
	DefaultTimeout = 15 * time.Second
	// DefaultUserAgent mimics a desktop browser; corporate sites routinely
	// serve bot UAs an empty shell or a 403.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Client is a capped HTTP fetcher shared across all pipeline phases.
type Client struct {
	httpClient *http.Client
	userAgent  string
	bodyCap    int64
	timeout    time.Duration
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithBodyCap overrides the response body byte cap.
func WithBodyCap(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.bodyCap = n
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient swaps the underlying http.Client, mainly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient builds a fetcher with the default cap, timeout, and UA.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		userAgent: DefaultUserAgent,
		bodyCap:   DefaultBodyCap,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Result is one raw download before text extraction.
type Result struct {
	URL         string        // Requested URL
	FinalURL    string        // URL after redirects
	Status      int           // HTTP status code
	ContentType string        // Content-Type header value
	Body        string        // Response body, at most bodyCap bytes
	ByteLen     int64         // Bytes actually read
	Duration    time.Duration // Wall time of the request
}

// Get downloads a single URL. The body is read through a LimitReader one
// byte past the cap so an oversized page is detected without buffering it.
func (c *Client) Get(ctx context.Context, rawURL string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, core.Ef(core.KindInvalidURL, "cannot build request for %q: %v", rawURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, classifyTransportError(rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, core.E(core.KindFetchHTTPStatus,
			fmt.Sprintf("%s rejected the request", rawURL),
			&StatusError{URL: rawURL, Status: resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.bodyCap+1))
	if err != nil {
		return Result{}, classifyTransportError(rawURL, err)
	}
	if int64(len(body)) > c.bodyCap {
		return Result{}, core.Ef(core.KindFetchBodyCapExceed, "%s body exceeds %d bytes", rawURL, c.bodyCap)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return Result{
		URL:         rawURL,
		FinalURL:    finalURL,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(body),
		ByteLen:     int64(len(body)),
		Duration:    time.Since(start),
	}, nil
}

// classifyTransportError separates timeouts from other network failures.
func classifyTransportError(rawURL string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.Ef(core.KindFetchTimeout, "%s timed out", rawURL)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.Ef(core.KindFetchTimeout, "%s timed out", rawURL)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return core.E(core.KindFetchNetworkError, fmt.Sprintf("%s unreachable", rawURL), err)
}

// StatusError carries the HTTP status of a non-2xx response so callers can
// branch on the exact code instead of parsing error messages.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.Status)
}

// StatusOf returns the HTTP status carried in err's chain, or 0 when the
// error did not originate from a status check.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Retryable reports whether a fetch failure is worth one more attempt.
// Timeouts, network errors, and 5xx qualify; 4xx responses, 429 included,
// are permanent for the lifetime of the job.
func Retryable(err error) bool {
	switch core.KindOf(err) {
	case core.KindFetchTimeout, core.KindFetchNetworkError:
		return true
	case core.KindFetchHTTPStatus:
		return StatusOf(err) >= 500
	default:
		return false
	}
}

// IsHTML reports whether a Content-Type header names a page we can extract
// text from. Empty content types pass; plenty of small sites omit the header
// and serve HTML anyway.
func IsHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType := contentType
	if idx := strings.IndexByte(mediaType, ';'); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

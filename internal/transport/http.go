// ABOUTME: HTTP client for the SmartREST endpoint (POST <server>/s).
// ABOUTME: Handles basic auth, the X-Id header, timeouts and gzip-encoded responses.

package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// DefaultTimeout bounds every round trip when Options.Timeout is zero.
const DefaultTimeout = 20 * time.Second

// maxResponseSize caps how much of a response body is read.
var maxResponseSize int64 = 4 << 20

// ErrResponseTooLarge is returned when a response body exceeds the read
// limit. The body is discarded rather than dispatched truncated.
var ErrResponseTooLarge = errors.New("response body too large")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body)
}

// BasicAuth encodes user and password for Options.Auth.
func BasicAuth(user, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
}

// Options configures a Client.
type Options struct {
	// URL is the server base URL without trailing slash.
	URL string
	// XID is sent as the X-Id header when non-empty.
	XID string
	// Auth is the base64 basic authorization token.
	Auth    string
	Timeout time.Duration
}

// Client posts SmartREST request bodies.
type Client struct {
	endpoint string
	xid      string
	auth     string
	http     *http.Client
	logger   *slog.Logger
}

// New creates a client for opts.URL + "/s".
func New(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(opts.URL, "/") + "/s",
		xid:      opts.XID,
		auth:     opts.Auth,
		http:     &http.Client{Timeout: opts.Timeout},
		logger:   logger.With("component", "transport"),
	}
}

// WithXID returns a copy of c that sends xid as X-Id.
func (c *Client) WithXID(xid string) *Client {
	cp := *c
	cp.xid = xid
	return &cp
}

// Post sends body and returns the response body.
func (c *Client) Post(ctx context.Context, body string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "text/plain")
	// Setting Accept-Encoding ourselves disables net/http's transparent
	// decompression, so gzip is decoded below.
	req.Header.Set("Accept-Encoding", "gzip")
	if c.auth != "" {
		req.Header.Set("Authorization", "Basic "+c.auth)
	}
	if c.xid != "" {
		req.Header.Set("X-Id", c.xid)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting to %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("smartrest round trip",
		"status", resp.StatusCode,
		"request_bytes", len(body),
		"response_bytes", len(data),
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(data)}
	}
	return data, nil
}

func readBody(resp *http.Response) (string, error) {
	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("opening gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	data, err := io.ReadAll(io.LimitReader(r, maxResponseSize+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > maxResponseSize {
		return "", fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, maxResponseSize)
	}
	return string(data), nil
}

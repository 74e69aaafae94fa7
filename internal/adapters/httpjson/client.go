package httpjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/hearthd/hearth-core/internal/poll"
)

// Default limits for vendor HTTP exchanges.
const (
	defaultTimeout = 10 * time.Second

	// maxBodySize caps response bodies to prevent memory exhaustion
	// from misbehaving vendor endpoints (1MB).
	maxBodySize = 1024 * 1024
)

// Options configures a Client.
type Options struct {
	// Endpoint is the full URL of the vendor state document. Required.
	Endpoint string

	// Token is sent as a bearer token when non-empty.
	Token string

	// Timeout bounds each fetch. Default: 10 seconds.
	Timeout time.Duration
}

// Client fetches device state from a JSON-over-HTTP vendor endpoint.
// It implements poll.VendorClient and poll.Reconnector.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	transport  *http.Transport
}

// New creates a Client for the given endpoint.
func New(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("httpjson: endpoint required")
	}
	if !strings.HasPrefix(opts.Endpoint, "http://") && !strings.HasPrefix(opts.Endpoint, "https://") {
		return nil, fmt.Errorf("httpjson: endpoint must be an http or https URL: %s", opts.Endpoint)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// Own transport so Reconnect can drop pooled connections without
	// affecting other clients sharing http.DefaultTransport.
	transport := &http.Transport{
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		endpoint:  opts.Endpoint,
		token:     opts.Token,
		transport: transport,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// Fetch retrieves the current vendor state document.
//
// The response must be a JSON object; its top-level keys become the
// payload fields. Errors wrap the poll package's classes so the
// coordinator can route them.
func (c *Client) Fetch(ctx context.Context) (poll.Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", poll.ErrTransient, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	var payload poll.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %w", poll.ErrTransient, err)
	}

	return payload, nil
}

// Reconnect discards pooled keep-alive connections so the next fetch
// opens a fresh socket. Called by the coordinator after a dropped session.
func (c *Client) Reconnect(_ context.Context) error {
	c.transport.CloseIdleConnections()
	return nil
}

// Close releases pooled connections.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// classifyStatus maps HTTP status codes onto poll error classes.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", poll.ErrAuthFailed, code)
	default:
		// 5xx, 429 and unexpected 2xx/3xx/4xx all count as retryable.
		return fmt.Errorf("%w: status %d", poll.ErrTransient, code)
	}
}

// classifyTransportError maps network-level failures onto poll error classes.
//
// Resets and unexpected EOF mean the vendor dropped an established
// session; timeouts and refused connections are ordinary transient faults.
func classifyTransportError(err error) error {
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", poll.ErrDisconnected, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", poll.ErrTransient, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timeout: %w", poll.ErrTransient, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timeout: %w", poll.ErrTransient, err)
	}

	return fmt.Errorf("%w: %w", poll.ErrTransient, err)
}

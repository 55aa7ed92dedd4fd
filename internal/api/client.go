// Package api implements the HTTP client that delivers session records to the
// remote collector.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/afklabs/afkmon/internal/session"
)

// SendResult reports the outcome of a session submission. Transport and HTTP
// errors are folded into the failure shape; Send never returns a Go error.
type SendResult struct {
	Success bool
	// Data is the collector's response body on success, treated as opaque.
	Data json.RawMessage
	// Err is a human-readable failure description.
	Err string
}

// ProbeResult reports the outcome of a connectivity probe.
type ProbeResult struct {
	Success bool
	Message string
}

// Client posts session records to a collector. All calls are one-shot: no
// retries, no backoff, and no timeout beyond the transport default.
type Client struct {
	logger *slog.Logger
	http   *http.Client

	mu      sync.Mutex
	baseURL string
}

// NewClient returns a client targeting baseURL (trailing slash trimmed).
func NewClient(logger *slog.Logger, baseURL string) *Client {
	return &Client{
		logger:  logger.With(slog.String("component", "api")),
		http:    &http.Client{},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// UpdateURL changes the collector origin for subsequent calls.
func (c *Client) UpdateURL(baseURL string) {
	c.mu.Lock()
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	c.mu.Unlock()
}

// URL returns the current collector origin.
func (c *Client) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseURL
}

// SendSession POSTs the record to /api/sessions. Any non-2xx status or
// transport error is a failure; there is no partial success.
func (c *Client) SendSession(ctx context.Context, rec session.Record) SendResult {
	body, err := json.Marshal(rec)
	if err != nil {
		return SendResult{Err: fmt.Sprintf("encoding session: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL()+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return SendResult{Err: fmt.Sprintf("building request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("session send failed", slog.String("error", err.Error()))
		return SendResult{Err: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{Err: fmt.Sprintf("reading response: %v", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("collector rejected session", slog.String("status", resp.Status))
		return SendResult{Err: fmt.Sprintf("HTTP %s", resp.Status)}
	}

	c.logger.Debug("session sent", slog.String("file", rec.Session.FileName))
	return SendResult{Success: true, Data: data}
}

// TestConnection GETs /api/health; any 2xx response is healthy.
func (c *Client) TestConnection(ctx context.Context) ProbeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL()+"/api/health", nil)
	if err != nil {
		return ProbeResult{Message: fmt.Sprintf("building request: %v", err)}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ProbeResult{Message: fmt.Sprintf("connection failed: %v", err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ProbeResult{Message: fmt.Sprintf("server returned %s", resp.Status)}
	}
	return ProbeResult{Success: true, Message: "connected successfully"}
}

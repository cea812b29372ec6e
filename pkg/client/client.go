package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/rollout/pkg/api"
	"github.com/cuemby/rollout/pkg/engine"
	"github.com/cuemby/rollout/pkg/rollout"
	"github.com/cuemby/rollout/pkg/types"
)

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Message    string
	Reasons    []string
	Verdicts   []types.Verdict
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	if len(e.Reasons) > 0 {
		msg += " (" + strings.Join(e.Reasons, "; ") + ")"
	}
	return msg
}

// IsConflict reports whether err is a refused rollout transition
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// Client talks to a rollout server over HTTP
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithToken sends token as the admin bearer token on every request
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a client for the server at addr. addr may be a bare
// host:port or a full http(s) URL.
func NewClient(addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("server address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid server address: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Assignment returns the variant assignment for segment
func (c *Client) Assignment(ctx context.Context, segment string) (engine.Assignment, error) {
	var a engine.Assignment
	err := c.do(ctx, http.MethodGet, "/v1/assignment?segment="+url.QueryEscape(segment), nil, &a)
	return a, err
}

// RecordEvents reports a batch of UI events
func (c *Client) RecordEvents(ctx context.Context, events []api.EventRequest) (api.RecordEventsResponse, error) {
	var resp api.RecordEventsResponse
	err := c.do(ctx, http.MethodPost, "/v1/events", api.RecordEventsRequest{Events: events}, &resp)
	return resp, err
}

// Dashboard returns the dashboard snapshot
func (c *Client) Dashboard(ctx context.Context) (engine.Dashboard, error) {
	var d engine.Dashboard
	err := c.do(ctx, http.MethodGet, "/v1/dashboard", nil, &d)
	return d, err
}

// Status returns the planner state
func (c *Client) Status(ctx context.Context) (rollout.Status, error) {
	var st rollout.Status
	err := c.do(ctx, http.MethodGet, "/v1/rollout/status", nil, &st)
	return st, err
}

// Alerts returns up to limit recent alerts; zero returns all
func (c *Client) Alerts(ctx context.Context, limit int) ([]types.Alert, error) {
	var alerts []types.Alert
	err := c.do(ctx, http.MethodGet, "/v1/alerts?limit="+strconv.Itoa(limit), nil, &alerts)
	return alerts, err
}

// Advance asks the server to move to the next phase. A refusal is an
// *APIError with status 409 listing the failed gates.
func (c *Client) Advance(ctx context.Context) (types.RolloutPhase, error) {
	var resp api.AdvanceResponse
	err := c.do(ctx, http.MethodPost, "/v1/rollout/advance", nil, &resp)
	return resp.Phase, err
}

// Rollback returns the rollout to its first phase and holds it there
func (c *Client) Rollback(ctx context.Context, reason string) (types.AuditEntry, error) {
	var entry types.AuditEntry
	err := c.do(ctx, http.MethodPost, "/v1/rollout/rollback", api.ReasonRequest{Reason: reason}, &entry)
	return entry, err
}

// ClearHold re-enables advancement after a rollback
func (c *Client) ClearHold(ctx context.Context, reason string) (types.AuditEntry, error) {
	var entry types.AuditEntry
	err := c.do(ctx, http.MethodPost, "/v1/rollout/clear-hold", api.ReasonRequest{Reason: reason}, &entry)
	return entry, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var er api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error != "" {
			apiErr.Message = er.Error
			apiErr.Reasons = er.Reasons
			apiErr.Verdicts = er.Verdicts
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

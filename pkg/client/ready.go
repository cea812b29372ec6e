package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/rollout/pkg/metrics"
)

// Readiness fetches the server's /ready status. A server that answers but is
// not ready returns its status with a nil error.
func (c *Client) Readiness(ctx context.Context) (metrics.HealthStatus, error) {
	var st metrics.HealthStatus

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return st, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return st, fmt.Errorf("readiness check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return st, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("failed to decode readiness: %w", err)
	}
	return st, nil
}

// WaitReady polls /ready every interval until the server reports ready or
// ctx is done
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := "no response"
	for {
		st, err := c.Readiness(ctx)
		switch {
		case err != nil:
			last = err.Error()
		case st.Status == "ready":
			return nil
		default:
			last = st.Message
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for server readiness: %s", last)
		case <-ticker.C:
		}
	}
}

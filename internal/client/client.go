package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"switchyard/internal/api"
)

// DefaultTimeout bounds every request unless the caller's context is
// shorter.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the admin API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin api returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the admin API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is an admin API client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the API at baseURL. A bare host:port is
// treated as http. A zero timeout means DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Routes lists every route.
func (c *Client) Routes(ctx context.Context) ([]api.RouteInfo, error) {
	var out []api.RouteInfo
	return out, c.do(ctx, http.MethodGet, "/api/routes", &out)
}

// Route returns one route.
func (c *Client) Route(ctx context.Context, id string) (api.RouteInfo, error) {
	var out api.RouteInfo
	return out, c.do(ctx, http.MethodGet, "/api/routes/"+url.PathEscape(id), &out)
}

// RouteAction runs start, stop, suspend or resume on route id and returns
// the route as it is afterwards.
func (c *Client) RouteAction(ctx context.Context, id, action string) (api.RouteInfo, error) {
	var out api.RouteInfo
	return out, c.do(ctx, http.MethodPost, "/api/routes/"+url.PathEscape(id)+"/"+url.PathEscape(action), &out)
}

// Inflight lists inflight exchanges, optionally of one route, oldest first.
func (c *Client) Inflight(ctx context.Context, routeID string, limit int) ([]api.InflightInfo, error) {
	q := url.Values{"sort": {"duration"}}
	if routeID != "" {
		q.Set("route", routeID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out []api.InflightInfo
	return out, c.do(ctx, http.MethodGet, "/api/inflight?"+q.Encode(), &out)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach admin api at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Package client is the Go SDK for the topolord daemon. Client satisfies
// navigator.ViewSource, so a navigator.Session can run against a remote
// daemon exactly as it does against a local Loader.
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
	"time"

	"github.com/rmax-ai/topolord/pkg/api"
	"github.com/rmax-ai/topolord/pkg/hierarchy"
	"github.com/rmax-ai/topolord/pkg/index"
	"github.com/rmax-ai/topolord/pkg/navigator"
)

// ErrUnavailable is returned when the daemon keeps answering 5xx or cannot
// be reached after all retries.
var ErrUnavailable = errors.New("topolord daemon unavailable")

// Client is the topolord SDK client.
type Client struct {
	endpoint string
	http     *http.Client
	backoff  BackoffStrategy
	retries  int
}

// NewClient creates a new topolord client.
// endpoint defaults to "http://127.0.0.1:8091" if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8091"
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff: DefaultBackoff(),
		retries: 2,
	}
}

// SetRetry replaces the retry policy for reads. retries is the number of
// extra attempts after the first.
func (c *Client) SetRetry(b BackoffStrategy, retries int) {
	if retries < 0 {
		retries = 0
	}
	c.backoff = b
	c.retries = retries
}

// do sends the request, retrying transport errors and 5xx answers. A
// Retry-After hint on a 5xx answer stretches the next wait. Other non-200
// statuses are mapped to navigator errors.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var lastErr error
	var hint time.Duration
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay(c.backoff, attempt-1, hint)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, rdr)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			hint = 0
			continue
		}

		hint = retryAfter(resp.Header, time.Now())
		retry, err := decodeResponse(resp, out)
		if !retry {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func decodeResponse(resp *http.Response, out any) (retry bool, err error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if out == nil {
			return false, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var e struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&e)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return false, fmt.Errorf("%w: %s", navigator.ErrNotFound, e.Error)
	case http.StatusBadRequest:
		return false, fmt.Errorf("%w: %s", navigator.ErrInvalidLevel, e.Error)
	default:
		return false, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// View fetches the view for level, mapping each level to its endpoint.
func (c *Client) View(ctx context.Context, level hierarchy.Level, id string) (*navigator.View, error) {
	var (
		path string
		q    = url.Values{}
	)
	switch level {
	case hierarchy.LevelAll:
		path = "/v1/views/sites"
	case hierarchy.LevelSites:
		path = "/v1/views/equipment"
		q.Set("site_id", id)
	case hierarchy.LevelRacks:
		path = "/v1/views/rack"
		q.Set("rack_id", id)
	case hierarchy.LevelEquipment:
		path = "/v1/views/equipment"
		q.Set("equipment_id", id)
	case hierarchy.LevelServerDetails:
		path = "/v1/views/server"
		q.Set("server_id", id)
	default:
		return nil, fmt.Errorf("%w: %q", navigator.ErrInvalidLevel, level)
	}

	var v navigator.View
	if err := c.get(ctx, path, q, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SiteView fetches a site's racks, optionally a single rack.
func (c *Client) SiteView(ctx context.Context, siteID, rackID string) (*navigator.View, error) {
	q := url.Values{}
	if siteID != "" {
		q.Set("site_id", siteID)
	}
	if rackID != "" {
		q.Set("rack_id", rackID)
	}
	var v navigator.View
	if err := c.get(ctx, "/v1/views/equipment", q, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Ancestors resolves the breadcrumb trail of an entity.
func (c *Client) Ancestors(ctx context.Context, level hierarchy.Level, id string) ([]hierarchy.Entry, error) {
	q := url.Values{}
	switch level {
	case hierarchy.LevelAll:
		return nil, nil
	case hierarchy.LevelSites:
		q.Set("site_id", id)
	case hierarchy.LevelRacks:
		q.Set("rack_id", id)
	case hierarchy.LevelEquipment:
		q.Set("equipment_id", id)
	case hierarchy.LevelServerDetails:
		q.Set("server_id", id)
	default:
		return nil, fmt.Errorf("%w: %q", navigator.ErrInvalidLevel, level)
	}

	var resp api.ResolveResponse
	if err := c.get(ctx, "/v1/resolve", q, &resp); err != nil {
		return nil, err
	}
	return resp.Ancestors, nil
}

// ResolveNode asks the daemon where a clicked node title leads.
func (c *Client) ResolveNode(ctx context.Context, level hierarchy.Level, id, title string) (*api.ResolveNodeResponse, error) {
	q := url.Values{"title": {title}, "level": {string(level)}}
	if id != "" {
		q.Set("id", id)
	}
	var resp api.ResolveNodeResponse
	if err := c.get(ctx, "/v1/resolve-node", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Validate fetches reference issues and skipped documents.
func (c *Client) Validate(ctx context.Context) ([]index.Issue, []index.Skipped, error) {
	var resp api.ValidateResponse
	if err := c.get(ctx, "/v1/validate", nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Issues, resp.Skipped, nil
}

// InvalidateCache drops key from the daemon's lookup cache, or the whole
// cache when key is empty.
func (c *Client) InvalidateCache(ctx context.Context, key string) error {
	body, err := json.Marshal(api.InvalidateRequest{Key: key})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/v1/cache/invalidate", body, nil)
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	if err := c.get(ctx, "/v1/health", nil, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

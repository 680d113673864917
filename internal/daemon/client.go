package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"defaulter/internal/audit"
)

// ErrAPIUnavailable reports that no daemon answered at the configured bind.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// Client reads the daemon's JSON API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient targets the daemon listening on bind. Wildcard hosts such as
// 0.0.0.0 are dialled on loopback.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api bind address is empty")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	if host := base.Hostname(); host == "" || host == "0.0.0.0" || host == "::" {
		base.Host = net.JoinHostPort("127.0.0.1", base.Port())
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Status fetches GET /api/status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var status Status
	err := c.get(ctx, "/api/status", nil, &status)
	return status, err
}

// Runs fetches GET /api/runs.
func (c *Client) Runs(ctx context.Context, limit int) ([]audit.Run, error) {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Runs []audit.Run `json:"runs"`
	}
	if err := c.get(ctx, "/api/runs", values, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (c *Client) get(ctx context.Context, path string, values url.Values, out any) error {
	target := *c.base
	target.Path = path
	target.RawQuery = values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w at %s: %v", ErrAPIUnavailable, c.base.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("daemon API %s: %s (status %d)", path, body.Error, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

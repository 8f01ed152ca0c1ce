// Package jobapi implements the HTTP client for the remote scrape job API.
package jobapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/job"
)

// Route is a path relative to the configured API base URL.
type Route string

// Routes exposed by the remote job API.
const (
	RouteFilters   Route = "/filters"
	RouteStart     Route = "/start"
	RouteStop      Route = "/stop"
	RouteStatus    Route = "/status"
	RouteLimits    Route = "/limits"
	RouteFilesInfo Route = "/files-info"
	RouteDownload  Route = "/download"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// Config controls the Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the remote job API. Every call except Download is bounded
// by the configured per-request timeout.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

var _ job.API = (*Client)(nil)

// New validates the base URL and builds a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("base url is required")
	}
	base, err := url.Parse(strings.TrimSuffix(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", raw)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:       base,
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// URL returns the absolute URL for the route.
func (c *Client) URL(route Route, elem ...string) string {
	parts := append([]string{string(route)}, elem...)
	return c.base.JoinPath(parts...).String()
}

// PutFilters sends the filter payload to PUT /filters.
func (c *Client) PutFilters(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}
	return c.command(ctx, http.MethodPut, RouteFilters, body)
}

// Start requests a job start via POST /start.
func (c *Client) Start(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, RouteStart, nil)
}

// Stop requests a job stop via POST /stop. Success only means the request
// was accepted, not that the job has halted.
func (c *Client) Stop(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, RouteStop, nil)
}

// Status fetches GET /status.
func (c *Client) Status(ctx context.Context) (job.Status, error) {
	var st job.Status
	if err := c.query(ctx, RouteStatus, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&st)
	}); err != nil {
		return job.Status{}, err
	}
	return st, nil
}

// Limits fetches GET /limits. Both a bare JSON array and an object wrapping
// the array under "limits" are accepted.
func (c *Client) Limits(ctx context.Context) (job.Limits, error) {
	var limits job.Limits
	if err := c.query(ctx, RouteLimits, func(r io.Reader) error {
		raw, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		limits, err = decodeLimits(raw)
		return err
	}); err != nil {
		return nil, err
	}
	return limits, nil
}

// FilesInfo fetches GET /files-info.
func (c *Client) FilesInfo(ctx context.Context) (job.FilesInfo, error) {
	info := job.FilesInfo{}
	if err := c.query(ctx, RouteFilesInfo, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&info)
	}); err != nil {
		return nil, err
	}
	return info, nil
}

// DownloadURL returns the navigation target for an artifact endpoint.
func (c *Client) DownloadURL(endpoint string) string {
	return c.URL(RouteDownload, endpoint)
}

// Download opens the artifact stream at GET /download/{endpoint}. The caller
// owns the returned body. No per-request timeout is applied so large
// artifacts can stream; bound it through ctx instead.
func (c *Client) Download(ctx context.Context, endpoint string) (io.ReadCloser, string, error) {
	path := string(RouteDownload) + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(endpoint), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("GET %s: %w", path, err)
	}
	if !successful(resp.StatusCode) {
		defer closeBody(resp.Body)
		return nil, "", &StatusError{
			Method:     http.MethodGet,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
		}
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// command runs a mutating request whose success body is ignored. Non-2xx
// responses carry both status code and body text.
func (c *Client) command(ctx context.Context, method string, route Route, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(route), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.do(req, route)
	if err != nil {
		return err
	}
	defer closeBody(resp.Body)
	if !successful(resp.StatusCode) {
		return &StatusError{
			Method:     method,
			Path:       string(route),
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
		}
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// query runs a GET and decodes a successful body. Failures surface only the
// status code.
func (c *Client) query(ctx context.Context, route Route, decode func(io.Reader) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(route), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req, route)
	if err != nil {
		return err
	}
	defer closeBody(resp.Body)
	if !successful(resp.StatusCode) {
		return &StatusError{Method: http.MethodGet, Path: string(route), StatusCode: resp.StatusCode}
	}
	if err := decode(resp.Body); err != nil {
		return fmt.Errorf("decode %s: %w", route, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, route Route) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("route", string(route)),
			zap.Duration("dur", time.Since(start)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s %s: %w", req.Method, route, err)
	}
	c.logger.Debug("request completed",
		zap.String("method", req.Method),
		zap.String("route", string(route)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)
	return resp, nil
}

func decodeLimits(raw []byte) (job.Limits, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Limits job.Limits `json:"limits"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("unmarshal limits object: %w", err)
		}
		return wrapped.Limits, nil
	}
	var limits job.Limits
	if err := json.Unmarshal(trimmed, &limits); err != nil {
		return nil, fmt.Errorf("unmarshal limits: %w", err)
	}
	return limits, nil
}

func successful(code int) bool {
	return code >= 200 && code < 300
}

func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func closeBody(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}

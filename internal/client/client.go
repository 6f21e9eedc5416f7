package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/wolfeidau/smartschedule/internal/logger"
	"github.com/wolfeidau/smartschedule/internal/models"
	"github.com/wolfeidau/smartschedule/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration
	// CacheDir persists cached record responses, empty keeps them in memory.
	CacheDir string
	// Tokens supplies the bearer token for authenticated calls.
	Tokens oauth2.TokenSource
	// MaxTries bounds attempts for idempotent record reads.
	MaxTries uint
	// RetryInterval is the first backoff delay between record read attempts.
	RetryInterval time.Duration
	// Transport is the innermost round tripper, defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL:     "http://localhost:5000",
		Timeout:       30 * time.Second,
		MaxTries:      3,
		RetryInterval: 250 * time.Millisecond,
	}
}

// Client talks to the SmartSchedule REST backend.
type Client struct {
	baseURL       *url.URL
	maxTries      uint
	retryInterval time.Duration
	metrics       *telemetry.Metrics

	// anon carries no bearer token, used for login and explicit token calls.
	anon *http.Client
	// authed adds the bearer token from Config.Tokens.
	authed *http.Client
	// cached is authed with an HTTP cache for record reads.
	cached *http.Client
	cache  *resettableCache

	Teams       *TeamRecords
	Users       *Records[models.User]
	Assignments *Records[models.Assignment]
	Schedules   *Records[models.Schedule]
	Assigned    *Records[models.Assigned]
	Invites     *InviteRecords
}

// New creates a client. The transport chain, outermost first, is
// otelhttp, request logging, bearer token, HTTP cache (record reads only), gzip.
func New(cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server url is required")
	}

	baseURL, err := url.Parse(strings.TrimSuffix(cfg.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", cfg.ServerURL)
	}

	if cfg.MaxTries == 0 {
		cfg.MaxTries = 1
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultConfig().RetryInterval
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	compressed := gzhttp.Transport(base)

	cache, err := newResettableCache(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = missingTokenSource{}
	}

	wrap := func(rt http.RoundTripper, bearer bool) *http.Client {
		if bearer {
			rt = &oauth2.Transport{Source: tokens, Base: rt}
		}
		rt = logger.NewTransport(rt)
		rt = otelhttp.NewTransport(rt)
		return &http.Client{Transport: rt, Timeout: cfg.Timeout}
	}

	c := &Client{
		baseURL:       baseURL,
		maxTries:      cfg.MaxTries,
		retryInterval: cfg.RetryInterval,
		metrics:       telemetry.GetMetrics(),
		anon:          wrap(compressed, false),
		authed:        wrap(compressed, true),
		cached:        wrap(cache.transport(compressed), true),
		cache:         cache,
	}

	c.Teams = &TeamRecords{newRecords[models.Team](c, "Team")}
	c.Users = newRecords[models.User](c, "User")
	c.Assignments = newRecords[models.Assignment](c, "Assignment")
	c.Schedules = newRecords[models.Schedule](c, "Schedule")
	c.Assigned = newRecords[models.Assigned](c, "Assigned")
	c.Invites = &InviteRecords{newRecords[models.Invite](c, "Invite")}

	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// ResetCache drops every cached record response, called when the identity changes.
func (c *Client) ResetCache() error {
	return c.cache.Reset()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// do sends req with hc and returns the response body of a 2xx response.
// Non 2xx responses are returned as *APIError.
func (c *Client) do(hc *http.Client, req *http.Request) ([]byte, error) {
	c.metrics.BackendRequests.Add(req.Context(), 1)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(req, resp.StatusCode, body)
	}

	return body, nil
}

const maxBodySize = 8 << 20

type missingTokenSource struct{}

func (missingTokenSource) Token() (*oauth2.Token, error) {
	return nil, fmt.Errorf("no token source configured")
}

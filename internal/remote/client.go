package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultRateLimit      = 10 // requests per second
	defaultMaxRetries     = 3
	defaultInitialBackoff = 1 * time.Second
	maxBackoff            = 16 * time.Second
	maxErrorBody          = 512
)

// Config configures a Client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RateLimit      float64 // requests per second
	MaxRetries     int
	InitialBackoff time.Duration
	UserAgent      string

	// Token is sent as a bearer token when non-empty. Authentication itself
	// is handled outside this package.
	Token string

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the remote authority with rate limiting and retries.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	rateLimiter    *rate.Limiter
	userAgent      string
	token          string
	maxRetries     int
	initialBackoff time.Duration
	logger         *slog.Logger
}

// NewClient creates a new remote client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid remote base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = defaultMaxRetries
	}
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = defaultInitialBackoff
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "PokedexCompanion/1.0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:     httpClient,
		rateLimiter:    rate.NewLimiter(rate.Limit(limit), 1),
		userAgent:      userAgent,
		token:          cfg.Token,
		maxRetries:     retries,
		initialBackoff: backoff,
		logger:         logger.With("component", "remote"),
	}, nil
}

// SetToken replaces the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// FetchCatalog retrieves the full variant catalog and grouping lists.
func (c *Client) FetchCatalog(ctx context.Context) (*models.Catalog, error) {
	var catalog models.Catalog
	if _, err := c.doRequest(ctx, http.MethodGet, "/pokemons", nil, nil, &catalog); err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	if catalog.GroupingLists == nil {
		catalog.GroupingLists = models.GroupingLists{}
	}
	return &catalog, nil
}

// ApplyBatch replays updates in order and returns one result per key. A
// response without a result list means every update was accepted.
func (c *Client) ApplyBatch(ctx context.Context, updates []models.BatchedUpdate) ([]models.BatchResult, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	req := batchRequest{Updates: make([]batchEntry, 0, len(updates))}
	for _, u := range updates {
		req.Updates = append(req.Updates, batchEntry{
			Key:        u.Key,
			Operation:  u.Operation,
			Payload:    u.Payload,
			LastUpdate: u.LastUpdate,
		})
	}

	var resp batchResponse
	if _, err := c.doRequest(ctx, http.MethodPost, "/batchedUpdates", req, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to apply batched updates: %w", err)
	}

	if resp.Results == nil {
		results := make([]models.BatchResult, 0, len(updates))
		for _, u := range updates {
			results = append(results, models.BatchResult{Key: u.Key, OK: true})
		}
		return results, nil
	}
	return resp.Results, nil
}

// FetchTrades retrieves the trades and related instances visible to username.
func (c *Client) FetchTrades(ctx context.Context, username string) (*TradesSnapshot, error) {
	path := "/trades?username=" + url.QueryEscape(username)

	var snap TradesSnapshot
	if _, err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &snap); err != nil {
		return nil, fmt.Errorf("failed to fetch trades for %s: %w", username, err)
	}
	return &snap, nil
}

// FetchCollection retrieves a trainer's instances. Usernames are matched
// case-insensitively. A non-empty etag makes the request conditional.
func (c *Client) FetchCollection(ctx context.Context, username, etag string) (*Collection, error) {
	path := "/ownershipData/username/" + url.PathEscape(strings.ToLower(username))

	header := http.Header{}
	if etag != "" {
		header.Set("If-None-Match", etag)
	}

	var coll Collection
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, header, &coll)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch collection for %s: %w", username, err)
	}
	if resp.status == http.StatusNotModified {
		return &Collection{Username: username, ETag: etag, NotModified: true}, nil
	}
	if coll.Username == "" {
		coll.Username = username
	}
	if coll.Instances == nil {
		coll.Instances = map[string]*models.Instance{}
	}
	coll.ETag = resp.header.Get("ETag")
	return &coll, nil
}

type responseMeta struct {
	status int
	header http.Header
}

// doRequest performs an HTTP request with rate limiting and retry logic.
// Network errors, 429 and 5xx are retried with exponential backoff.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, header http.Header, result any) (responseMeta, error) {
	target := c.baseURL + path

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return responseMeta{}, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var lastErr error
	backoff := c.initialBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying remote request", "method", method, "url", target, "attempt", attempt, "error", lastErr)
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return responseMeta{}, fmt.Errorf("rate limiter error: %w", err)
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
		if err != nil {
			return responseMeta{}, fmt.Errorf("failed to create request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return responseMeta{}, &NetworkError{Op: method, URL: target, Err: ctx.Err()}
			}
			lastErr = &NetworkError{Op: method, URL: target, Err: err}
			if attempt < c.maxRetries {
				if err := sleep(ctx, backoff); err != nil {
					return responseMeta{}, lastErr
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			return responseMeta{}, lastErr
		}

		meta, retryAfter, err := c.handleResponse(resp, method, target, result)
		if err == nil {
			return meta, nil
		}
		lastErr = err

		ne, ok := err.(*NetworkError)
		if !ok || !ne.Retryable() || attempt == c.maxRetries {
			return meta, err
		}
		wait := backoff
		if retryAfter > 0 {
			wait = retryAfter
		}
		if err := sleep(ctx, wait); err != nil {
			return meta, lastErr
		}
		backoff = min(backoff*2, maxBackoff)
	}

	return responseMeta{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// handleResponse decodes a response and classifies its status.
func (c *Client) handleResponse(resp *http.Response, method, target string, result any) (responseMeta, time.Duration, error) {
	defer func() { _ = resp.Body.Close() }()
	meta := responseMeta{status: resp.StatusCode, header: resp.Header}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return meta, 0, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return meta, 0, &NetworkError{Op: method, URL: target, Err: fmt.Errorf("failed to read response body: %w", err)}
		}
		if result == nil || len(bytes.TrimSpace(data)) == 0 {
			return meta, 0, nil
		}
		if err := json.Unmarshal(data, result); err != nil {
			return meta, 0, fmt.Errorf("failed to parse JSON response: %w", err)
		}
		return meta, 0, nil

	case resp.StatusCode == http.StatusNotFound:
		return meta, 0, &NotFoundError{URL: target}

	default:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var retryAfter time.Duration
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return meta, retryAfter, &NetworkError{
			Op:         method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

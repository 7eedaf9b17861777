// Package github is a small GitHub REST API client.
//
// Every response is inspected for X-RateLimit-* headers. The snapshot is
// attached to the returned Response, remembered as the client's last observed
// rate limit and reported to an optional Limiter that gates later requests.
// GET responses can be served from, and revalidated against, an ETag cache.
package github

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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/namelens/octolens/internal/core"
	"github.com/namelens/octolens/internal/core/engine"
	"github.com/namelens/octolens/internal/observability"
	"github.com/namelens/octolens/internal/ratelimit"
)

const (
	// DefaultBaseURL is the public GitHub API endpoint.
	DefaultBaseURL = "https://api.github.com/"

	// MediaTypeV3 is the media type requested for every call.
	MediaTypeV3 = "application/vnd.github.v3+json"

	defaultUserAgent = "octolens"
	defaultTimeout   = 10 * time.Second

	// rateLimitPath does not count against any quota.
	rateLimitPath = "/rate_limit"
)

// Limiter gates requests per rate limit resource.
type Limiter interface {
	// Reserve reports whether a request may be sent and, if so, counts it
	// against the resource's quota.
	Reserve(ctx context.Context, resource string) (bool, time.Duration, error)
	Observe(ctx context.Context, resource string, info ratelimit.Info) error
	RecordExceeded(ctx context.Context, resource string, retryAfter time.Duration) error
}

// ResponseCache stores GET responses for conditional requests.
type ResponseCache interface {
	GetCachedResponse(ctx context.Context, url string) (*core.CachedResponse, error)
	SetCachedResponse(ctx context.Context, cached *core.CachedResponse) error
}

// Client talks to the GitHub REST API.
type Client struct {
	BaseURL    string
	Token      string
	UserAgent  string
	HTTPClient *http.Client
	Limiter    Limiter
	Cache      ResponseCache
	// CacheTTL is how long a cached response is served without revalidation.
	CacheTTL time.Duration
	Logger   *zap.Logger
	Clock    func() time.Time

	mu       sync.Mutex
	lastRate ratelimit.Info
	hasRate  bool
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root, such as a GitHub
// Enterprise instance or a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.BaseURL = baseURL }
}

// WithToken authenticates requests with a personal access token.
func WithToken(token string) Option {
	return func(c *Client) { c.Token = strings.TrimSpace(token) }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) { c.UserAgent = userAgent }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithLimiter enables client-side rate limiting.
func WithLimiter(l Limiter) Option {
	return func(c *Client) { c.Limiter = l }
}

// WithCache enables the conditional-request response cache.
func WithCache(cache ResponseCache, ttl time.Duration) Option {
	return func(c *Client) {
		c.Cache = cache
		c.CacheTTL = ttl
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.Logger = logger }
}

// WithClock injects the time source used for snapshots and cache expiry.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) { c.Clock = clock }
}

// NewClient returns a client for the public API unless overridden by opts.
func NewClient(opts ...Option) *Client {
	c := &Client{
		BaseURL:   DefaultBaseURL,
		UserAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Response wraps an API response together with its rate limit snapshot.
type Response struct {
	*http.Response

	Rate ratelimit.Info

	// FromCache is set when the body came from the response cache, either
	// without a network call or after a 304 revalidation.
	FromCache bool
}

// Headers exposes the response headers.
func (r *Response) Headers() http.Header {
	if r == nil || r.Response == nil {
		return nil
	}
	return r.Header
}

// LastRateLimit returns the snapshot from the most recent network response.
func (c *Client) LastRateLimit() (ratelimit.Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRate, c.hasRate
}

// NewRequest builds a request for path relative to BaseURL. A non-nil body is
// encoded as JSON.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	base, err := c.baseURL()
	if err != nil {
		return nil, err
	}
	u, err := base.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}

	var reader io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", MediaTypeV3)
	userAgent := strings.TrimSpace(c.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	if token := strings.TrimSpace(c.Token); token != "" {
		req.Header.Set("Authorization", "token "+token)
	}
	return req, nil
}

// Do sends req and decodes a JSON body into v when v is non-nil.
//
// A request the limiter denies fails with *RateLimitError before reaching the
// network. API errors are returned as *ErrorResponse, *RateLimitError or
// *AbuseRateLimitError together with the Response.
func (c *Client) Do(ctx context.Context, req *http.Request, v any) (*Response, error) {
	if req == nil {
		return nil, errors.New("request is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req = req.WithContext(ctx)

	resource := c.resource(req.URL)
	gated := c.Limiter != nil && c.relativePath(req.URL) != rateLimitPath

	cacheKey := req.URL.String()
	var cached *core.CachedResponse
	if c.cacheable(req) {
		entry, err := c.Cache.GetCachedResponse(ctx, cacheKey)
		if err != nil {
			c.logger().Warn("response cache lookup failed", zap.String("url", cacheKey), zap.Error(err))
		}
		if entry != nil {
			if entry.Fresh(c.now()) {
				observability.RecordCacheLookup(observability.CacheHit)
				return c.serveCached(entry, v, nil)
			}
			cached = entry
			if cached.ETag != "" {
				req.Header.Set("If-None-Match", cached.ETag)
			}
			if cached.LastModified != "" {
				req.Header.Set("If-Modified-Since", cached.LastModified)
			}
		}
	}

	if gated {
		allowed, wait, err := c.Limiter.Reserve(ctx, resource)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if !allowed {
			c.logger().Debug("request held back by rate limiter",
				zap.String("resource", resource),
				zap.Duration("wait", wait))
			return nil, &RateLimitError{
				Resource: resource,
				Wait:     wait,
				Message:  fmt.Sprintf("%s quota exhausted, retry in %s", resource, wait.Round(time.Second)),
			}
		}
	}

	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		observability.RecordGitHubRequest(resource, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", req.Method, sanitizeURL(req.URL), err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body
	observability.RecordGitHubRequest(resource, resp.StatusCode, time.Since(start))

	response := &Response{Response: resp, Rate: c.extractor().FromResponse(resp)}
	if carriesRateLimit(resp.Header) {
		// Coerced values from malformed headers would read as an exhausted
		// window, so only well-formed snapshots reach the limiter.
		if _, err := ratelimit.Parse(resp.Header, c.now()); err != nil {
			c.logger().Warn("ignoring malformed rate limit headers",
				zap.String("resource", resource),
				zap.Error(err))
		} else {
			c.observe(ctx, resource, response.Rate)
		}
	}

	c.logger().Debug("github request",
		zap.String("method", req.Method),
		zap.String("url", sanitizeURL(req.URL)),
		zap.Int("status", resp.StatusCode),
		zap.String("resource", resource),
		zap.Int("rate_limit", response.Rate.Limit),
		zap.Int("rate_remaining", response.Rate.Remaining),
		zap.Time("rate_resets_at", response.Rate.ResetsAt))

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		observability.RecordCacheLookup(observability.CacheRevalidated)
		c.refreshCached(ctx, cached, resp.Header)
		return c.serveCached(cached, v, response)
	}
	if c.cacheable(req) {
		observability.RecordCacheLookup(observability.CacheMiss)
	}

	if err := c.checkResponse(resp, response.Rate); err != nil {
		c.recordExceeded(ctx, resource, err)
		return response, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return response, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if c.cacheable(req) && resp.StatusCode == http.StatusOK {
		c.storeCached(ctx, cacheKey, resp, body)
	}

	if v != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return response, fmt.Errorf("decode response: %w", err)
		}
	}
	return response, nil
}

func (c *Client) serveCached(cached *core.CachedResponse, v any, live *Response) (*Response, error) {
	response := live
	if response == nil {
		response = &Response{
			Response: &http.Response{
				Status:     http.StatusText(cached.StatusCode),
				StatusCode: cached.StatusCode,
				Header:     cached.Header.Clone(),
			},
			Rate: c.extractor().FromResponse(cached),
		}
	}
	response.FromCache = true
	response.Body = io.NopCloser(bytes.NewReader(cached.Body))

	if v != nil && len(cached.Body) > 0 {
		if err := json.Unmarshal(cached.Body, v); err != nil {
			return response, fmt.Errorf("decode cached response: %w", err)
		}
	}
	return response, nil
}

func (c *Client) storeCached(ctx context.Context, key string, resp *http.Response, body []byte) {
	now := c.now()
	entry := &core.CachedResponse{
		URL:          key,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		StatusCode:   resp.StatusCode,
		Header:       resp.Header.Clone(),
		Body:         body,
		StoredAt:     now,
		ExpiresAt:    now.Add(c.CacheTTL),
	}
	if err := c.Cache.SetCachedResponse(ctx, entry); err != nil {
		c.logger().Warn("response cache write failed", zap.String("url", key), zap.Error(err))
	}
}

// refreshCached extends a revalidated entry and adopts the new rate limit
// headers, which GitHub sends on 304 responses too.
func (c *Client) refreshCached(ctx context.Context, cached *core.CachedResponse, header http.Header) {
	now := c.now()
	cached.StoredAt = now
	cached.ExpiresAt = now.Add(c.CacheTTL)
	if cached.Header == nil {
		cached.Header = http.Header{}
	}
	for _, key := range []string{ratelimit.HeaderLimit, ratelimit.HeaderRemaining, ratelimit.HeaderReset, "ETag", "Date"} {
		if value := header.Get(key); value != "" {
			cached.Header.Set(key, value)
		}
	}
	if etag := header.Get("ETag"); etag != "" {
		cached.ETag = etag
	}
	if err := c.Cache.SetCachedResponse(ctx, cached); err != nil {
		c.logger().Warn("response cache refresh failed", zap.String("url", cached.URL), zap.Error(err))
	}
}

func (c *Client) observe(ctx context.Context, resource string, info ratelimit.Info) {
	if info.IsZero() {
		return
	}

	c.mu.Lock()
	c.lastRate = info
	c.hasRate = true
	c.mu.Unlock()

	observability.RecordRateLimit(resource, info)

	if c.Limiter != nil {
		if err := c.Limiter.Observe(ctx, resource, info); err != nil {
			c.logger().Warn("failed to store rate limit", zap.String("resource", resource), zap.Error(err))
		}
	}
}

// carriesRateLimit reports whether GitHub sent quota headers. Responses
// without them yield placeholder snapshots that must not overwrite state.
func carriesRateLimit(h http.Header) bool {
	return h.Get(ratelimit.HeaderLimit) != "" || h.Get(ratelimit.HeaderRemaining) != ""
}

func (c *Client) recordExceeded(ctx context.Context, resource string, err error) {
	if c.Limiter == nil {
		return
	}

	var wait time.Duration
	var rateErr *RateLimitError
	var abuseErr *AbuseRateLimitError
	switch {
	case errors.As(err, &rateErr):
		wait = rateErr.Wait
	case errors.As(err, &abuseErr):
		wait = abuseErr.RetryAfter
	default:
		return
	}

	if recErr := c.Limiter.RecordExceeded(ctx, resource, wait); recErr != nil {
		c.logger().Warn("failed to record rate limit backoff", zap.String("resource", resource), zap.Error(recErr))
	}
}

// cacheable excludes /rate_limit, whose answer must always be live.
func (c *Client) cacheable(req *http.Request) bool {
	return c.Cache != nil && req.Method == http.MethodGet && c.relativePath(req.URL) != rateLimitPath
}

func (c *Client) resource(u *url.URL) string {
	return string(engine.Resource(c.relativePath(u)))
}

// relativePath strips the base URL path so Enterprise prefixes such as
// /api/v3 do not affect resource mapping.
func (c *Client) relativePath(u *url.URL) string {
	path := u.Path
	if base, err := c.baseURL(); err == nil {
		path = strings.TrimPrefix(path, strings.TrimRight(base.Path, "/"))
	}
	return "/" + strings.TrimLeft(path, "/")
}

func (c *Client) baseURL() (*url.URL, error) {
	raw := strings.TrimSpace(c.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", c.BaseURL, err)
	}
	return u, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func (c *Client) extractor() ratelimit.Extractor {
	return ratelimit.Extractor{Clock: c.Clock}
}

func (c *Client) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c *Client) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

// sanitizeURL drops query strings, which may carry credentials.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	clean.RawQuery = ""
	clean.User = nil
	return clean.String()
}

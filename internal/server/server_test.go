package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/namelens/octolens/internal/config"
	"github.com/namelens/octolens/internal/core"
	"github.com/namelens/octolens/internal/core/store"
	apperrors "github.com/namelens/octolens/internal/errors"
	"github.com/namelens/octolens/internal/github"
	"github.com/namelens/octolens/internal/ratelimit"
	"github.com/namelens/octolens/internal/server/handlers"
)

type fakeGitHub struct {
	emojis    map[string]string
	rate      ratelimit.Info
	err       error
	limits    *github.RateLimits
	hasLatest bool
}

func (f *fakeGitHub) Emojis(ctx context.Context) (map[string]string, *github.Response, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.emojis, &github.Response{Response: &http.Response{StatusCode: http.StatusOK}, Rate: f.rate}, nil
}

func (f *fakeGitHub) RateLimits(ctx context.Context) (*github.RateLimits, *github.Response, error) {
	return f.limits, &github.Response{Response: &http.Response{StatusCode: http.StatusOK}}, nil
}

func (f *fakeGitHub) LastRateLimit() (ratelimit.Info, bool) {
	return f.rate, f.hasLatest
}

type fakeLister struct {
	entries []store.RateLimitEntry
	err     error
}

func (f fakeLister) ListRateLimits(ctx context.Context, query store.RateLimitQuery) ([]store.RateLimitEntry, error) {
	return f.entries, f.err
}

func newTestServer(deps Dependencies) *Server {
	return New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, deps)
}

func serve(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("X-Request-ID", "test-request")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorResponse {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := newTestServer(Dependencies{})

	rec := serve(t, srv, http.MethodGet, "/does-not-exist")
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, "NOT_FOUND", body.Error.Code)
	require.Equal(t, "test-request", body.Error.RequestID)

	rec = serve(t, srv, http.MethodPost, "/version")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, rec).Error.Code)
}

func TestEmojisEndpoint(t *testing.T) {
	rate := ratelimit.Info{Limit: 60, Remaining: 59, ResetsAt: time.Date(2025, 1, 1, 0, 5, 0, 0, time.UTC), ResetsIn: 300 * time.Second}
	srv := newTestServer(Dependencies{GitHub: &fakeGitHub{
		emojis: map[string]string{
			"metal": "https://example.com/metal.png",
			"+1":    "https://example.com/plus1.png",
		},
		rate: rate,
	}})

	rec := serve(t, srv, http.MethodGet, "/v1/emojis?filter=MET")
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.EmojisResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	require.Contains(t, body.Emojis["metal"], "metal")
	require.NotNil(t, body.RateLimit)
	require.Equal(t, rate, *body.RateLimit)
}

func TestEmojisEndpointRateLimited(t *testing.T) {
	srv := newTestServer(Dependencies{GitHub: &fakeGitHub{
		err: &github.RateLimitError{Resource: "core", Wait: 90 * time.Second, Message: "core quota exhausted"},
	}})

	rec := serve(t, srv, http.MethodGet, "/v1/emojis")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "90", rec.Header().Get("Retry-After"))

	body := decodeError(t, rec)
	require.Equal(t, "RATE_LIMITED", body.Error.Code)
	require.Equal(t, "core", body.Error.Details["resource"])
	require.Equal(t, float64(90), body.Error.Details["retry_after_seconds"])
}

func TestEmojisEndpointWithoutClient(t *testing.T) {
	srv := newTestServer(Dependencies{})

	rec := serve(t, srv, http.MethodGet, "/v1/emojis")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, rec).Error.Code)
}

func TestRateLimitEndpoint(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rate := ratelimit.Info{Limit: 5000, Remaining: 4999, ResetsAt: now.Add(time.Hour), ResetsIn: time.Hour}
	srv := newTestServer(Dependencies{
		GitHub: &fakeGitHub{
			rate:      rate,
			hasLatest: true,
			limits: &github.RateLimits{Resources: map[string]github.Rate{
				"core": {Limit: 5000, Remaining: 4999, Reset: now.Add(time.Hour).Unix()},
			}},
		},
		RateLimits: fakeLister{entries: []store.RateLimitEntry{
			{Resource: "core", State: core.RateLimitState{Limit: 5000, Remaining: 4999, ResetsAt: now.Add(time.Hour), ObservedAt: now}},
		}},
	})

	rec := serve(t, srv, http.MethodGet, "/v1/rate-limit?live=true")
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.RateLimitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.LastObserved)
	require.Equal(t, 4999, body.LastObserved.Remaining)
	require.Len(t, body.Stored, 1)
	require.Equal(t, "core", body.Stored[0].Resource)
	require.Equal(t, 5000, body.Live["core"].Limit)
}

func TestRateLimitEndpointStoreFailure(t *testing.T) {
	srv := newTestServer(Dependencies{
		GitHub:     &fakeGitHub{},
		RateLimits: fakeLister{err: errors.New("disk I/O error")},
	})

	rec := serve(t, srv, http.MethodGet, "/v1/rate-limit")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, "DATABASE_ERROR", body.Error.Code)
	require.Equal(t, "test-request", body.Error.RequestID)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(Dependencies{MetricsEnabled: true})

	serve(t, srv, http.MethodGet, "/version")
	rec := serve(t, srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	require.Contains(t, rec.Body.String(), `octolens_http_requests_total{method="GET",route="/version",status="200"}`)
}

func TestMetricsEndpointDisabled(t *testing.T) {
	srv := newTestServer(Dependencies{})

	rec := serve(t, srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, rec).Error.Code)
}

func TestReadinessUsesHealthChecks(t *testing.T) {
	srv := newTestServer(Dependencies{HealthChecks: map[string]handlers.HealthChecker{
		"store": handlers.HealthCheckFunc(func(context.Context) error { return errors.New("closed") }),
	}})

	rec := serve(t, srv, http.MethodGet, "/health/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(t, srv, http.MethodGet, "/health/live")
	require.Equal(t, http.StatusOK, rec.Code)
}

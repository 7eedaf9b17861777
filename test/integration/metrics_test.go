package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/octolens/internal/config"
	"github.com/namelens/octolens/internal/core"
	"github.com/namelens/octolens/internal/core/engine"
	"github.com/namelens/octolens/internal/core/store"
	"github.com/namelens/octolens/internal/github"
	"github.com/namelens/octolens/internal/ratelimit"
	"github.com/namelens/octolens/internal/server"
	"github.com/namelens/octolens/internal/server/handlers"
)

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// listenOrSkip binds to IPv4 loopback explicitly (avoiding IPv6-only defaults)
// and skips when the sandbox refuses to open sockets.
func listenOrSkip(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping: loopback sockets unavailable: %v", err)
		}
		require.NoError(t, err)
	}
	return listener
}

func startServer(t *testing.T, handler http.Handler) (*httptest.Server, *http.Client) {
	t.Helper()
	ts := &httptest.Server{
		Listener: listenOrSkip(t),
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

// fakeAPI serves /emojis and /rate_limit with a quota that shrinks by one
// per emoji request.
type fakeAPI struct {
	hits      atomic.Int64
	remaining atomic.Int64
	limit     int64
	resetAt   time.Time
}

func newFakeAPI(limit, remaining int64) *fakeAPI {
	api := &fakeAPI{limit: limit, resetAt: time.Now().Add(time.Hour)}
	api.remaining.Store(remaining)
	return api
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	reset := strconv.FormatInt(a.resetAt.Unix(), 10)
	limit := strconv.FormatInt(a.limit, 10)

	switch r.URL.Path {
	case "/emojis":
		a.hits.Add(1)
		remaining := a.remaining.Add(-1)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set(ratelimit.HeaderLimit, limit)
		w.Header().Set(ratelimit.HeaderRemaining, strconv.FormatInt(remaining, 10))
		w.Header().Set(ratelimit.HeaderReset, reset)
		_, _ = io.WriteString(w, `{"metal":"https://github.githubassets.com/images/icons/emoji/metal.png","+1":"https://github.githubassets.com/images/icons/emoji/unicode/1f44d.png"}`)
	case "/rate_limit":
		_, _ = io.WriteString(w, `{"resources":{"core":{"limit":`+limit+`,"remaining":`+strconv.FormatInt(a.remaining.Load(), 10)+`,"used":0,"reset":`+reset+`}}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Not Found","documentation_url":"https://docs.github.com/rest"}`)
	}
}

// memoryStore keeps limiter state in memory for the server under test.
type memoryStore struct {
	mu    sync.Mutex
	state map[string]core.RateLimitState
}

func (m *memoryStore) GetRateLimit(ctx context.Context, resource string) (*core.RateLimitState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.state[resource]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (m *memoryStore) UpdateRateLimit(ctx context.Context, resource string, state *core.RateLimitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		m.state = make(map[string]core.RateLimitState)
	}
	m.state[resource] = *state
	return nil
}

func (m *memoryStore) ListRateLimits(ctx context.Context, query store.RateLimitQuery) ([]store.RateLimitEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]store.RateLimitEntry, 0, len(m.state))
	for resource, state := range m.state {
		entries = append(entries, store.RateLimitEntry{Resource: resource, State: state})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Resource < entries[j].Resource })
	return entries, nil
}

func newStack(t *testing.T, api *fakeAPI, metricsEnabled bool) (*httptest.Server, *http.Client, *memoryStore) {
	t.Helper()

	apiServer, apiClient := startServer(t, api)
	mem := &memoryStore{}
	client := github.NewClient(
		github.WithBaseURL(apiServer.URL),
		github.WithHTTPClient(apiClient),
		github.WithLimiter(&engine.RateLimiter{Store: mem}),
	)

	srv := server.New(config.ServerConfig{Host: "127.0.0.1"}, server.Dependencies{
		Version:        "test",
		GitHub:         client,
		RateLimits:     mem,
		HealthChecks:   map[string]handlers.HealthChecker{},
		MetricsEnabled: metricsEnabled,
	})
	ts, httpClient := startServer(t, srv.Handler())
	return ts, httpClient, mem
}

func get(t *testing.T, client *http.Client, url string) (int, http.Header, string) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	return resp.StatusCode, resp.Header, string(body)
}

func TestMetricsEndpoint_Integration(t *testing.T) {
	api := newFakeAPI(5000, 5000)
	ts, client, _ := newStack(t, api, true)

	const numRequests = 40
	const numWorkers = 8

	requestChan := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requestChan <- i
	}
	close(requestChan)

	start := time.Now()

	var (
		wg       sync.WaitGroup
		failures atomic.Int64
	)
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for reqNum := range requestChan {
				path := "/v1/emojis"
				if reqNum%4 == 3 {
					path = "/health"
				}
				resp, err := client.Get(ts.URL + path)
				if err != nil {
					failures.Add(1)
					continue
				}
				if resp.StatusCode != http.StatusOK {
					failures.Add(1)
				}
				_ = resp.Body.Close()
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	require.Zero(t, failures.Load())
	require.Equal(t, int64(numRequests*3/4), api.hits.Load())

	status, header, body := get(t, client, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(header.Get("Content-Type"), "text/plain; version=0.0.4"),
		"Expected Prometheus content type, got: %s", header.Get("Content-Type"))

	assert.Contains(t, body, `octolens_github_requests_total{resource="core",status="200"}`)
	assert.Contains(t, body, `octolens_http_requests_total{method="GET",route="/v1/emojis",status="200"}`)
	assert.Contains(t, body, "octolens_http_request_duration_seconds_bucket")
	assert.Contains(t, body, `octolens_github_rate_limit_limit{resource="core"} 5000`)
	assert.True(t, elapsed < 5*time.Second, "Load test should complete in reasonable time")
	t.Logf("Load test completed: %d requests in %v (%.2f req/s)", numRequests, elapsed, float64(numRequests)/elapsed.Seconds())
}

func TestClientSideLimiterStopsRequests_Integration(t *testing.T) {
	api := newFakeAPI(60, 2)
	ts, client, mem := newStack(t, api, true)

	for i := 0; i < 2; i++ {
		status, _, _ := get(t, client, ts.URL+"/v1/emojis")
		require.Equal(t, http.StatusOK, status)
	}

	status, header, body := get(t, client, ts.URL+"/v1/emojis")
	require.Equal(t, http.StatusTooManyRequests, status)
	require.NotEmpty(t, header.Get("Retry-After"))
	require.Contains(t, body, `"code":"RATE_LIMITED"`)
	require.Equal(t, int64(2), api.hits.Load(), "denied request must not reach the API")

	stored, err := mem.GetRateLimit(context.Background(), string(core.ResourceCore))
	require.NoError(t, err)
	require.Equal(t, 0, stored.Remaining)

	status, _, body = get(t, client, ts.URL+"/v1/rate-limit?live=true")
	require.Equal(t, http.StatusOK, status)

	var report handlers.RateLimitResponse
	require.NoError(t, json.Unmarshal([]byte(body), &report))
	require.NotNil(t, report.LastObserved)
	require.Equal(t, 60, report.LastObserved.Limit)
	require.Equal(t, 0, report.LastObserved.Remaining)
	require.Equal(t, 0, report.Live["core"].Remaining)
	require.Len(t, report.Stored, 1)
	require.Equal(t, "core", report.Stored[0].Resource)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	ts, client, _ := newStack(t, newFakeAPI(60, 60), false)

	status, _, _ := get(t, client, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, status)

	status, _, _ = get(t, client, ts.URL+"/metrics")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

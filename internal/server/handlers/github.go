package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/namelens/octolens/internal/core/store"
	apperrors "github.com/namelens/octolens/internal/errors"
	"github.com/namelens/octolens/internal/github"
	"github.com/namelens/octolens/internal/ratelimit"
)

// GitHubClient is the part of the API client the handlers use.
type GitHubClient interface {
	Emojis(ctx context.Context) (map[string]string, *github.Response, error)
	RateLimits(ctx context.Context) (*github.RateLimits, *github.Response, error)
	LastRateLimit() (ratelimit.Info, bool)
}

// RateLimitLister reads stored per-resource limiter state.
type RateLimitLister interface {
	ListRateLimits(ctx context.Context, query store.RateLimitQuery) ([]store.RateLimitEntry, error)
}

// GitHubHandlers serves the /v1 endpoints backed by the GitHub client.
type GitHubHandlers struct {
	Client GitHubClient
	Store  RateLimitLister
	Clock  func() time.Time
}

// EmojisResponse is the body of GET /v1/emojis.
type EmojisResponse struct {
	Count     int               `json:"count"`
	Emojis    map[string]string `json:"emojis"`
	FromCache bool              `json:"from_cache"`
	RateLimit *ratelimit.Info   `json:"rate_limit,omitempty"`
}

// RateLimitResponse is the body of GET /v1/rate-limit.
type RateLimitResponse struct {
	LastObserved *ratelimit.Info          `json:"last_observed,omitempty"`
	Live         map[string]ratelimit.Info `json:"live,omitempty"`
	Stored       []store.RateLimitEntry   `json:"stored"`
}

// Emojis lists emojis, optionally narrowed by ?filter= substring.
func (h *GitHubHandlers) Emojis(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Client == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("github client not configured"))
		return
	}

	emojis, resp, err := h.Client.Emojis(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	filter := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("filter")))
	if filter != "" {
		filtered := make(map[string]string)
		for name, url := range emojis {
			if strings.Contains(strings.ToLower(name), filter) {
				filtered[name] = url
			}
		}
		emojis = filtered
	}

	body := EmojisResponse{Count: len(emojis), Emojis: emojis}
	if resp != nil {
		body.FromCache = resp.FromCache
		if !resp.Rate.IsZero() {
			rate := resp.Rate
			body.RateLimit = &rate
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// RateLimit reports the last observed header snapshot and stored limiter
// state. With ?live=true it also queries GET /rate_limit.
func (h *GitHubHandlers) RateLimit(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Client == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("github client not configured"))
		return
	}

	body := RateLimitResponse{Stored: []store.RateLimitEntry{}}

	if live := strings.TrimSpace(r.URL.Query().Get("live")); live == "true" || live == "1" {
		limits, _, err := h.Client.RateLimits(r.Context())
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		now := h.now()
		body.Live = make(map[string]ratelimit.Info, len(limits.Resources))
		for _, name := range limits.Names() {
			body.Live[name] = limits.Resources[name].Info(now)
		}
	}

	if info, ok := h.Client.LastRateLimit(); ok {
		body.LastObserved = &info
	}

	if h.Store != nil {
		entries, err := h.Store.ListRateLimits(r.Context(), store.RateLimitQuery{All: true})
		if err != nil {
			respondWithError(w, r, apperrors.Wrap(r.Context(), apperrors.CodeDatabase, err, "failed to list rate limits"))
			return
		}
		if entries != nil {
			body.Stored = entries
		}
	}

	writeJSON(w, http.StatusOK, body)
}

func (h *GitHubHandlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now().UTC()
}

var defaultHTTPErrorResponder = func(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

var httpErrorResponder = defaultHTTPErrorResponder

// SetHTTPErrorResponder lets the server route handler errors through its
// central error handler. A nil responder restores the default.
func SetHTTPErrorResponder(responder func(http.ResponseWriter, *http.Request, error)) {
	if responder == nil {
		responder = defaultHTTPErrorResponder
	}
	httpErrorResponder = responder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}

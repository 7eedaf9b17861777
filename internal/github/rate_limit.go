package github

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/namelens/octolens/internal/core"
	"github.com/namelens/octolens/internal/ratelimit"
)

// Rate is one quota bucket of the /rate_limit payload.
type Rate struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Used      int   `json:"used"`
	Reset     int64 `json:"reset"`
}

// Info converts the bucket to a snapshot relative to now.
func (r Rate) Info(now time.Time) ratelimit.Info {
	return ratelimit.New(r.Limit, r.Remaining, time.Unix(r.Reset, 0), now)
}

// RateLimits is the payload of GET /rate_limit.
type RateLimits struct {
	Resources map[string]Rate `json:"resources"`
	Rate      Rate            `json:"rate"`
}

// Resource returns the bucket for name.
func (r *RateLimits) Resource(name core.Resource) (Rate, bool) {
	if r == nil {
		return Rate{}, false
	}
	rate, ok := r.Resources[string(name)]
	return rate, ok
}

// Names returns the bucket names in sorted order.
func (r *RateLimits) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Resources))
	for name := range r.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RateLimits fetches the quota of every resource. The call itself is not
// counted by GitHub and is never held back by the limiter. Each bucket is
// reported to the limiter so stored state catches up with the server.
func (c *Client) RateLimits(ctx context.Context) (*RateLimits, *Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, "rate_limit", nil)
	if err != nil {
		return nil, nil, err
	}

	limits := &RateLimits{}
	resp, err := c.Do(ctx, req, limits)
	if err != nil {
		return nil, resp, err
	}

	if c.Limiter != nil && !resp.FromCache {
		now := c.now()
		for _, name := range limits.Names() {
			info := limits.Resources[name].Info(now)
			if err := c.Limiter.Observe(ctx, name, info); err != nil {
				return limits, resp, err
			}
		}
	}
	return limits, resp, nil
}

package core

import (
	"net/http"
	"time"
)

// Resource names the GitHub rate limit bucket a request is counted against.
type Resource string

const (
	ResourceCore                Resource = "core"
	ResourceSearch              Resource = "search"
	ResourceCodeSearch          Resource = "code_search"
	ResourceGraphQL             Resource = "graphql"
	ResourceIntegrationManifest Resource = "integration_manifest"
)

// CachedResponse is a stored GET response used for conditional requests.
type CachedResponse struct {
	URL          string      `json:"url"`
	ETag         string      `json:"etag,omitempty"`
	LastModified string      `json:"last_modified,omitempty"`
	StatusCode   int         `json:"status_code"`
	Header       http.Header `json:"header,omitempty"`
	Body         []byte      `json:"-"`
	StoredAt     time.Time   `json:"stored_at"`
	ExpiresAt    time.Time   `json:"expires_at"`
}

// ResponseHeaders exposes the headers recorded with the response.
func (c *CachedResponse) ResponseHeaders() http.Header {
	if c == nil {
		return nil
	}
	return c.Header
}

// Fresh reports whether the entry can be served without revalidation.
func (c *CachedResponse) Fresh(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt)
}

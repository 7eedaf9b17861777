// Package ratelimit extracts GitHub rate limit metadata from HTTP responses.
//
// GitHub reports quota state on every API response through three headers:
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset (epoch
// seconds). Info is an immutable snapshot of those values taken when the
// response is inspected.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Header names reported by the GitHub API.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// defaultCount is used for a missing limit or remaining header.
const defaultCount = 1

// Info is a rate limit snapshot taken from a single response.
//
// The zero Info means no header collection was available. A response that
// carried headers but no rate limit keys yields Limit 1, Remaining 1 and a
// reset of "now".
type Info struct {
	// Limit is the maximum number of requests per window.
	Limit int
	// Remaining is the number of requests left in the current window.
	Remaining int
	// ResetsAt is when the current window resets, at second resolution.
	ResetsAt time.Time
	// ResetsIn is the whole-second time until ResetsAt. Never negative.
	ResetsIn time.Duration
}

// New builds a snapshot from already-decoded values, such as the buckets of
// the /rate_limit endpoint. resetsAt is truncated to whole seconds.
func New(limit, remaining int, resetsAt, now time.Time) Info {
	resetsAt = time.Unix(resetsAt.Unix(), 0).UTC()
	return Info{
		Limit:     limit,
		Remaining: remaining,
		ResetsAt:  resetsAt,
		ResetsIn:  resetsIn(resetsAt, now),
	}
}

// IsZero reports whether the snapshot was built without any header source.
func (i Info) IsZero() bool {
	return i.Limit == 0 && i.Remaining == 0 && i.ResetsAt.IsZero() && i.ResetsIn == 0
}

// Exhausted reports whether the window has no requests left.
func (i Info) Exhausted() bool {
	return !i.IsZero() && i.Remaining <= 0
}

// ResetsInSeconds returns ResetsIn as an integer count of seconds.
func (i Info) ResetsInSeconds() int {
	return int(i.ResetsIn / time.Second)
}

func (i Info) String() string {
	if i.IsZero() {
		return "no rate limit info"
	}
	return fmt.Sprintf("%d/%d remaining, resets at %s (in %s)",
		i.Remaining, i.Limit, i.ResetsAt.UTC().Format(time.RFC3339), i.ResetsIn)
}

type infoView struct {
	Limit     int       `json:"limit" yaml:"limit"`
	Remaining int       `json:"remaining" yaml:"remaining"`
	ResetsAt  time.Time `json:"resets_at" yaml:"resets_at"`
	ResetsIn  int       `json:"resets_in" yaml:"resets_in"`
}

func (i Info) view() infoView {
	return infoView{
		Limit:     i.Limit,
		Remaining: i.Remaining,
		ResetsAt:  i.ResetsAt.UTC(),
		ResetsIn:  i.ResetsInSeconds(),
	}
}

// MarshalJSON renders ResetsIn as seconds.
func (i Info) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.view())
}

// UnmarshalJSON accepts the form produced by MarshalJSON.
func (i *Info) UnmarshalJSON(data []byte) error {
	var v infoView
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*i = Info{
		Limit:     v.Limit,
		Remaining: v.Remaining,
		ResetsAt:  v.ResetsAt,
		ResetsIn:  time.Duration(v.ResetsIn) * time.Second,
	}
	return nil
}

// MarshalYAML renders ResetsIn as seconds.
func (i Info) MarshalYAML() (any, error) {
	return i.view(), nil
}

// HeaderSource is implemented by responses that expose their headers.
type HeaderSource interface {
	Headers() http.Header
}

// ResponseHeaderSource is implemented by responses that expose their headers
// under the secondary accessor name, such as recorded or cached responses.
type ResponseHeaderSource interface {
	ResponseHeaders() http.Header
}

// Extractor builds Info values using an injectable clock.
type Extractor struct {
	Clock func() time.Time
}

var defaultExtractor = Extractor{}

// FromResponse builds a snapshot from response using the wall clock.
//
// See Extractor.FromResponse for the accepted response shapes.
func FromResponse(response any) Info {
	return defaultExtractor.FromResponse(response)
}

// FromResponse builds a snapshot from response.
//
// The header collection is taken from the first non-nil of: an http.Header,
// an *http.Response, HeaderSource.Headers and ResponseHeaderSource.ResponseHeaders.
// Without one the zero Info is returned. It never fails: a non-numeric header
// value is coerced to 0 (limit, remaining) or to the Unix epoch (reset).
func (e Extractor) FromResponse(response any) Info {
	headers, ok := headersOf(response)
	if !ok {
		return Info{}
	}

	limit := readInt(headers, HeaderLimit)
	remaining := readInt(headers, HeaderRemaining)
	reset := readInt(headers, HeaderReset)

	var resetsAt time.Time
	if reset.present {
		resetsAt = time.Unix(reset.orSentinel(), 0).UTC()
	} else {
		resetsAt = time.Unix(e.now().Unix(), 0).UTC()
	}

	return Info{
		Limit:     int(limit.or(defaultCount)),
		Remaining: int(remaining.or(defaultCount)),
		ResetsAt:  resetsAt,
		ResetsIn:  resetsIn(resetsAt, e.now()),
	}
}

// Parse builds a snapshot from h, rejecting non-numeric values.
//
// A nil h yields the zero Info. Missing headers take the same defaults as
// FromResponse, with now used for both the reset default and ResetsIn.
func Parse(h http.Header, now time.Time) (Info, error) {
	if h == nil {
		return Info{}, nil
	}

	limit := readInt(h, HeaderLimit)
	remaining := readInt(h, HeaderRemaining)
	reset := readInt(h, HeaderReset)
	for _, f := range []field{limit, remaining, reset} {
		if f.err != nil {
			return Info{}, f.err
		}
	}

	resetsAt := time.Unix(now.Unix(), 0).UTC()
	if reset.present {
		resetsAt = time.Unix(reset.value, 0).UTC()
	}

	return Info{
		Limit:     int(limit.or(defaultCount)),
		Remaining: int(remaining.or(defaultCount)),
		ResetsAt:  resetsAt,
		ResetsIn:  resetsIn(resetsAt, now),
	}, nil
}

func (e Extractor) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func resetsIn(resetsAt, now time.Time) time.Duration {
	d := resetsAt.Sub(now).Truncate(time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// headersOf probes response for a header collection. A panicking accessor
// (typically a method on a nil pointer) counts as absent.
func headersOf(response any) (headers http.Header, ok bool) {
	defer func() {
		if recover() != nil {
			headers, ok = nil, false
		}
	}()

	switch v := response.(type) {
	case nil:
		return nil, false
	case http.Header:
		return v, v != nil
	case *http.Response:
		if v == nil || v.Header == nil {
			return nil, false
		}
		return v.Header, true
	}

	if src, isSource := response.(HeaderSource); isSource {
		if h := src.Headers(); h != nil {
			return h, true
		}
	}
	if src, isSource := response.(ResponseHeaderSource); isSource {
		if h := src.ResponseHeaders(); h != nil {
			return h, true
		}
	}
	return nil, false
}

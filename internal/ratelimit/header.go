package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrMalformedHeader reports a rate limit header that is not a base-10 integer.
var ErrMalformedHeader = errors.New("malformed rate limit header")

// field is an optional integer header read. Defaults are applied by the
// caller so that a missing header stays distinct from one carrying the
// default value.
type field struct {
	value   int64
	present bool
	err     error
}

// or returns def for a missing header and the sentinel 0 for a malformed one.
func (f field) or(def int64) int64 {
	if !f.present {
		return def
	}
	return f.orSentinel()
}

func (f field) orSentinel() int64 {
	if f.err != nil {
		return 0
	}
	return f.value
}

func readInt(h http.Header, key string) field {
	raw, ok := lookup(h, key)
	if !ok {
		return field{}
	}

	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return field{present: true, err: fmt.Errorf("%w: %s=%q", ErrMalformedHeader, key, raw)}
	}
	return field{value: value, present: true}
}

// lookup finds key case-insensitively. http.Header.Get only matches canonical
// keys, so hand-built maps with other spellings fall back to a scan.
func lookup(h http.Header, key string) (string, bool) {
	if values, ok := h[http.CanonicalHeaderKey(key)]; ok && len(values) > 0 {
		return values[0], true
	}
	for k, values := range h {
		if strings.EqualFold(k, key) && len(values) > 0 {
			return values[0], true
		}
	}
	return "", false
}

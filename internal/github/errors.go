package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/namelens/octolens/internal/ratelimit"
)

// ErrInvalidLogin is returned for logins GitHub would never accept.
var ErrInvalidLogin = errors.New("invalid github login")

// ErrorResponse is a non-2xx API response.
type ErrorResponse struct {
	Response         *http.Response `json:"-"`
	Message          string         `json:"message"`
	DocumentationURL string         `json:"documentation_url,omitempty"`
}

func (e *ErrorResponse) Error() string {
	if e.Response == nil || e.Response.Request == nil {
		return fmt.Sprintf("github: %s", e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s",
		e.Response.Request.Method, sanitizeURL(e.Response.Request.URL), e.Response.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of the failed response.
func (e *ErrorResponse) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

// RateLimitError reports an exhausted quota. Response is nil when the
// client-side limiter denied the request before it was sent.
type RateLimitError struct {
	Response *http.Response
	Resource string
	Rate     ratelimit.Info
	Wait     time.Duration
	Message  string
}

func (e *RateLimitError) Error() string {
	if e.Response == nil || e.Response.Request == nil {
		return fmt.Sprintf("github rate limit: %s", e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s [rate reset in %s]",
		e.Response.Request.Method, sanitizeURL(e.Response.Request.URL), e.Response.StatusCode,
		e.Message, e.Wait.Round(time.Second))
}

// AbuseRateLimitError reports a secondary rate limit. RetryAfter is zero when
// GitHub did not say how long to wait.
type AbuseRateLimitError struct {
	Response   *http.Response
	Message    string
	RetryAfter time.Duration
}

func (e *AbuseRateLimitError) Error() string {
	if e.Response == nil || e.Response.Request == nil {
		return fmt.Sprintf("github secondary rate limit: %s", e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s",
		e.Response.Request.Method, sanitizeURL(e.Response.Request.URL), e.Response.StatusCode, e.Message)
}

// checkResponse maps a non-2xx response to a typed error. The body is
// consumed for error responses.
func (c *Client) checkResponse(resp *http.Response, rate ratelimit.Info) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	errResp := &ErrorResponse{Response: resp}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(data) > 0 {
		if jsonErr := json.Unmarshal(data, errResp); jsonErr != nil {
			errResp.Message = strings.TrimSpace(string(data))
		}
	}
	if errResp.Message == "" {
		errResp.Message = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return errResp
	}

	if strings.TrimSpace(resp.Header.Get(ratelimit.HeaderRemaining)) == "0" {
		return &RateLimitError{
			Response: resp,
			Resource: c.resource(resp.Request.URL),
			Rate:     rate,
			Wait:     rate.ResetsIn,
			Message:  errResp.Message,
		}
	}

	if wait, ok := retryAfter(resp, c.now()); ok || isSecondaryLimit(errResp) {
		return &AbuseRateLimitError{
			Response:   resp,
			Message:    errResp.Message,
			RetryAfter: wait,
		}
	}

	return errResp
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(resp *http.Response, now time.Time) (time.Duration, bool) {
	if resp == nil || resp.Header == nil {
		return 0, false
	}

	retry := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if retry == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(retry); err == nil {
		if seconds < 0 {
			seconds = 0
		}
		return time.Duration(seconds) * time.Second, true
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		wait := parsed.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}

	return 0, true
}

func isSecondaryLimit(e *ErrorResponse) bool {
	message := strings.ToLower(e.Message)
	return strings.Contains(message, "secondary rate limit") ||
		strings.Contains(e.DocumentationURL, "secondary-rate-limits")
}

package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/namelens/octolens/internal/github"
	"github.com/namelens/octolens/internal/ratelimit"
)

func TestEnsureEnvelopeMapsGitHubErrors(t *testing.T) {
	notFound := &github.ErrorResponse{
		Response:         &http.Response{StatusCode: http.StatusNotFound},
		Message:          "Not Found",
		DocumentationURL: "https://docs.github.com/rest",
	}

	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"not found", notFound, CodeNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", notFound), CodeNotFound, http.StatusNotFound},
		{"unauthorized", &github.ErrorResponse{Response: &http.Response{StatusCode: http.StatusUnauthorized}, Message: "Bad credentials"}, CodeUnauthorized, http.StatusUnauthorized},
		{"server error", &github.ErrorResponse{Response: &http.Response{StatusCode: http.StatusBadGateway}, Message: "upstream"}, CodeExternalService, http.StatusBadGateway},
		{"rate limit", &github.RateLimitError{Resource: "core", Wait: time.Minute}, CodeRateLimited, http.StatusTooManyRequests},
		{"abuse", &github.AbuseRateLimitError{RetryAfter: 30 * time.Second}, CodeRateLimited, http.StatusTooManyRequests},
		{"invalid login", fmt.Errorf("%w: %q", github.ErrInvalidLogin, "a--b"), CodeInvalidInput, http.StatusBadRequest},
		{"timeout", fmt.Errorf("get: %w", context.DeadlineExceeded), CodeTimeout, http.StatusGatewayTimeout},
		{"unknown", fmt.Errorf("boom"), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope := EnsureEnvelope(tt.err)
			require.Equal(t, tt.code, envelope.Code)
			require.Equal(t, tt.status, HTTPStatusFromCode(envelope.Code))
			require.Equal(t, tt.err, Cause(envelope))
		})
	}
}

func TestEnsureEnvelopeRateLimitDetails(t *testing.T) {
	rate := ratelimit.Info{Limit: 60, Remaining: 0, ResetsAt: time.Unix(1735689600, 0).UTC(), ResetsIn: 45 * time.Second}
	envelope := EnsureEnvelope(&github.RateLimitError{Resource: "search", Rate: rate, Wait: 45 * time.Second, Message: "API rate limit exceeded"})

	require.Equal(t, "API rate limit exceeded", envelope.Message)
	require.Equal(t, 45, envelope.Details["retry_after_seconds"])
	require.Equal(t, "search", envelope.Details["resource"])
	require.Equal(t, rate, envelope.Details["rate_limit"])
}

func TestEnsureEnvelopeKeepsEnvelopes(t *testing.T) {
	original := NewNotFoundError("missing")
	require.Same(t, original, EnsureEnvelope(fmt.Errorf("wrapped: %w", original)))
	require.Equal(t, CodeInternal, EnsureEnvelope(nil).Code)
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/emojis", nil)
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, &github.AbuseRateLimitError{Message: "secondary rate limit", RetryAfter: 30 * time.Second})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "30", rec.Header().Get("Retry-After"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, CodeRateLimited, body.Error.Code)
	require.Equal(t, "secondary rate limit", body.Error.Message)
	require.NotEmpty(t, body.Error.RequestID)
}

func TestWrapRecordsCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	envelope := Wrap(context.Background(), CodeDatabase, cause, "store write failed")

	require.Equal(t, CodeDatabase, envelope.Code)
	require.Equal(t, "store write failed", envelope.Message)
	require.NotEmpty(t, envelope.CorrelationID)
	require.Equal(t, "disk full", envelope.Context["wrapped_error"])
	require.Same(t, cause, Cause(fmt.Errorf("serve: %w", envelope)))

	plain := fmt.Errorf("plain")
	require.Same(t, plain, Cause(plain))
}

func TestRespondWithEnvelopeHidesContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/rate-limit", nil)
	rec := httptest.NewRecorder()

	RespondWithEnvelope(rec, req, Wrap(req.Context(), CodeDatabase, fmt.Errorf("locked"), "failed to list rate limits"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, CodeDatabase, body.Error.Code)
	require.Empty(t, body.Error.Details)
}

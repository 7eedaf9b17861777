package cmd

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/namelens/octolens/internal/errors"
	"github.com/namelens/octolens/internal/github"
)

func TestExitCodeForError(t *testing.T) {
	response := func(status int) *github.ErrorResponse {
		return &github.ErrorResponse{Response: &http.Response{StatusCode: status}, Message: http.StatusText(status)}
	}

	tests := []struct {
		name string
		err  error
		want ExitCode
	}{
		{"nil", nil, ExitSuccess},
		{"rate limited", &github.RateLimitError{Resource: "core", Wait: time.Minute}, ExitRateLimited},
		{"secondary limit", fmt.Errorf("emojis: %w", &github.AbuseRateLimitError{RetryAfter: time.Second}), ExitRateLimited},
		{"invalid login", fmt.Errorf("%w: %q", github.ErrInvalidLogin, "-x"), ExitInvalidArgument},
		{"timeout", fmt.Errorf("get: %w", context.DeadlineExceeded), ExitExternalServiceUnavailable},
		{"unauthorized", response(http.StatusUnauthorized), ExitPermissionDenied},
		{"not found", response(http.StatusNotFound), ExitNotFound},
		{"unprocessable", response(http.StatusUnprocessableEntity), ExitDataInvalid},
		{"server error", response(http.StatusBadGateway), ExitExternalServiceUnavailable},
		{"envelope", apperrors.NewInvalidInputError("bad flag"), ExitInvalidArgument},
		{"envelope over rate limit", apperrors.Wrap(context.Background(), apperrors.CodeInternal, &github.RateLimitError{Resource: "core"}, "server error"), ExitRateLimited},
		{"envelope over plain error", apperrors.Wrap(context.Background(), apperrors.CodeDatabase, fmt.Errorf("locked"), "store"), ExitFailure},
		{"other", fmt.Errorf("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ExitCodeForError(tt.err))
		})
	}
}

func TestExitWithCodeLogsAndExits(t *testing.T) {
	var exited int
	exitFunc = func(code int) { exited = code }
	t.Cleanup(func() { exitFunc = defaultExit })

	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)

	err := &github.RateLimitError{Resource: "search", Wait: 30 * time.Second, Message: "API rate limit exceeded"}
	ExitWithCode(logger, ExitRateLimited, "Command failed", err)

	require.Equal(t, 75, exited)
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	require.Equal(t, "RATE_LIMITED", fields["exit_name"])
	require.Equal(t, "search", fields["resource"])
}

func TestExitWithCodeUnwrapsEnvelope(t *testing.T) {
	var exited int
	exitFunc = func(code int) { exited = code }
	t.Cleanup(func() { exitFunc = defaultExit })

	core, logs := observer.New(zap.ErrorLevel)
	cause := &github.RateLimitError{Resource: "core", Wait: time.Minute}
	envelope := apperrors.Wrap(context.Background(), apperrors.CodeRateLimited, cause, "quota exhausted")

	ExitWithCode(zap.New(core), ExitRateLimited, "Command failed", envelope)

	require.Equal(t, int(ExitRateLimited), exited)
	fields := logs.All()[0].ContextMap()
	require.Equal(t, apperrors.CodeRateLimited, fields["error_code"])
	require.Equal(t, "core", fields["resource"])
	require.NotEmpty(t, fields["correlation_id"])
}

func TestExitCodeCatalogCoversConstants(t *testing.T) {
	for _, code := range []ExitCode{
		ExitSuccess, ExitFailure, ExitInvalidArgument, ExitDataInvalid, ExitNotFound,
		ExitExternalServiceUnavailable, ExitInternal, ExitFileNotFound, ExitRateLimited,
		ExitPermissionDenied, ExitConfigInvalid,
	} {
		info, ok := GetExitCodeInfo(code)
		require.True(t, ok, "code %d", code)
		require.Equal(t, int(code), info.Code)
	}
}

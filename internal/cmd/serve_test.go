package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/namelens/octolens/internal/errors"
)

type fakeShutdowner struct {
	err      error
	deadline time.Time
	called   bool
}

func (f *fakeShutdowner) Shutdown(ctx context.Context) error {
	f.called = true
	f.deadline, _ = ctx.Deadline()
	return f.err
}

func TestShutdownServerAppliesTimeout(t *testing.T) {
	srv := &fakeShutdowner{}
	start := time.Now()

	require.NoError(t, shutdownServer(context.Background(), srv, 5*time.Second))
	require.True(t, srv.called)
	require.WithinDuration(t, start.Add(5*time.Second), srv.deadline, time.Second)
}

func TestShutdownServerWrapsFailure(t *testing.T) {
	cause := errors.New("listener stuck")
	err := shutdownServer(context.Background(), &fakeShutdowner{err: cause}, time.Second)

	require.Error(t, err)
	envelope := apperrors.EnsureEnvelope(err)
	require.Equal(t, apperrors.CodeInternal, envelope.Code)
	require.Equal(t, "server shutdown failed", envelope.Message)
	require.Same(t, cause, apperrors.Cause(err))
}

func TestDurationOrDefault(t *testing.T) {
	require.Equal(t, 3*time.Second, durationOrDefault(3*time.Second, time.Minute))
	require.Equal(t, time.Minute, durationOrDefault(0, time.Minute))
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/namelens/octolens/internal/core"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// GetRateLimit returns stored rate limit state for a resource.
func (s *Store) GetRateLimit(ctx context.Context, resource string) (*core.RateLimitState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, errors.New("resource is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT resource, rate_limit, remaining, resets_at, observed_at, backoff_until, last_exceeded_at
		FROM rate_limits
		WHERE resource = ?
	`, resource)

	entry, err := scanRateLimit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}

	return &entry.State, nil
}

// UpdateRateLimit persists rate limit state for a resource.
func (s *Store) UpdateRateLimit(ctx context.Context, resource string, state *core.RateLimitState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	resource = strings.TrimSpace(resource)
	if resource == "" {
		return errors.New("resource is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	observedAt := state.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_limits (resource, rate_limit, remaining, resets_at, observed_at, backoff_until, last_exceeded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(resource) DO UPDATE SET
			rate_limit = excluded.rate_limit,
			remaining = excluded.remaining,
			resets_at = excluded.resets_at,
			observed_at = excluded.observed_at,
			backoff_until = excluded.backoff_until,
			last_exceeded_at = excluded.last_exceeded_at
	`, resource, state.Limit, state.Remaining, unixOrZero(state.ResetsAt), observedAt.UTC().Unix(),
		nullUnix(state.BackoffUntil), nullUnix(state.LastExceededAt))
	if err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}

	return nil
}

func scanRateLimit(row rowScanner) (RateLimitEntry, error) {
	var (
		resource       string
		limit          int
		remaining      int
		resetsAt       int64
		observedAt     int64
		backoffUntil   sql.NullInt64
		lastExceededAt sql.NullInt64
	)

	if err := row.Scan(&resource, &limit, &remaining, &resetsAt, &observedAt, &backoffUntil, &lastExceededAt); err != nil {
		return RateLimitEntry{}, err
	}

	state := core.RateLimitState{
		Limit:          limit,
		Remaining:      remaining,
		ObservedAt:     time.Unix(observedAt, 0).UTC(),
		BackoffUntil:   timeFromNull(backoffUntil),
		LastExceededAt: timeFromNull(lastExceededAt),
	}
	if resetsAt > 0 {
		state.ResetsAt = time.Unix(resetsAt, 0).UTC()
	}

	return RateLimitEntry{Resource: resource, State: state}, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().Unix()
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

func timeFromNull(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := time.Unix(value.Int64, 0).UTC()
	return &t
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/namelens/octolens/internal/core"
)

const cachedResponseColumns = `url, etag, last_modified, status_code, header, body, stored_at, expires_at`

// GetCachedResponse returns the stored response for url, fresh or stale.
// Stale entries still carry validators for conditional requests.
func (s *Store) GetCachedResponse(ctx context.Context, url string) (*core.CachedResponse, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("cache url is required")
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+cachedResponseColumns+` FROM response_cache WHERE url = ?`, url)
	cached, err := scanCachedResponse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cached response: %w", err)
	}
	return cached, nil
}

// LatestCachedResponse returns the most recently stored response, if any.
func (s *Store) LatestCachedResponse(ctx context.Context) (*core.CachedResponse, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+cachedResponseColumns+` FROM response_cache ORDER BY stored_at DESC LIMIT 1`)
	cached, err := scanCachedResponse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch latest cached response: %w", err)
	}
	return cached, nil
}

// SetCachedResponse stores or replaces the cached response for its URL.
func (s *Store) SetCachedResponse(ctx context.Context, cached *core.CachedResponse) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if cached == nil {
		return nil
	}
	url := strings.TrimSpace(cached.URL)
	if url == "" {
		return errors.New("cache url is required")
	}

	headerJSON, err := json.Marshal(cached.Header)
	if err != nil {
		return fmt.Errorf("encode cached headers: %w", err)
	}

	storedAt := cached.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO response_cache (`+cachedResponseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			status_code = excluded.status_code,
			header = excluded.header,
			body = excluded.body,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at
	`, url, cached.ETag, cached.LastModified, cached.StatusCode, string(headerJSON), cached.Body,
		storedAt.UTC().Unix(), unixOrZero(cached.ExpiresAt))
	if err != nil {
		return fmt.Errorf("store cached response: %w", err)
	}

	return nil
}

// PurgeExpiredResponses deletes entries stored before cutoff. Entries past
// their expiry are kept until then so they can still be revalidated.
func (s *Store) PurgeExpiredResponses(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM response_cache WHERE stored_at < ?`, cutoff.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge cached responses: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge cached responses: %w", err)
	}
	return affected, nil
}

func scanCachedResponse(row rowScanner) (*core.CachedResponse, error) {
	var (
		url          string
		etag         sql.NullString
		lastModified sql.NullString
		statusCode   int
		headerJSON   sql.NullString
		body         []byte
		storedAt     int64
		expiresAt    int64
	)

	if err := row.Scan(&url, &etag, &lastModified, &statusCode, &headerJSON, &body, &storedAt, &expiresAt); err != nil {
		return nil, err
	}

	var header http.Header
	if headerJSON.Valid && headerJSON.String != "" && headerJSON.String != "null" {
		if err := json.Unmarshal([]byte(headerJSON.String), &header); err != nil {
			return nil, fmt.Errorf("decode cached headers: %w", err)
		}
	}

	return &core.CachedResponse{
		URL:          url,
		ETag:         etag.String,
		LastModified: lastModified.String,
		StatusCode:   statusCode,
		Header:       header,
		Body:         body,
		StoredAt:     time.Unix(storedAt, 0).UTC(),
		ExpiresAt:    time.Unix(expiresAt, 0).UTC(),
	}, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/astrowidget/astroproxy/internal/core"
)

// GetWindow returns the live window for a client key, or nil.
func (s *Store) GetWindow(ctx context.Context, key string) (*core.RateWindow, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("client key is required")
	}

	var (
		requestCount int
		windowStart  int64
		expiresAt    int64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT request_count, window_start, expires_at
		FROM rate_windows
		WHERE client_key = ? AND expires_at > ?
	`, key, s.now().UnixMilli())

	if err := row.Scan(&requestCount, &windowStart, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate window: %w", err)
	}

	return &core.RateWindow{
		Count:       requestCount,
		WindowStart: time.UnixMilli(windowStart).UTC(),
		ExpiresAt:   time.UnixMilli(expiresAt).UTC(),
	}, nil
}

// PutWindow persists the window for a client key.
func (s *Store) PutWindow(ctx context.Context, key string, window core.RateWindow) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("client key is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_windows (client_key, request_count, window_start, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_key) DO UPDATE SET
			request_count = excluded.request_count,
			window_start = excluded.window_start,
			expires_at = excluded.expires_at
	`, key, window.Count, window.WindowStart.UTC().UnixMilli(), window.ExpiresAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store rate window: %w", err)
	}

	return nil
}

// PurgeExpired deletes windows that expired before now.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM rate_windows WHERE expires_at <= ?`, now.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge rate windows: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rate windows: %w", err)
	}
	return affected, nil
}

func (s *Store) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/astrowidget/astroproxy/internal/core"
)

func whereClause(q core.WindowQuery) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if key := strings.TrimSpace(q.Key); key != "" {
		return "WHERE client_key = ?", []any{key}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	return `WHERE client_key LIKE ? ESCAPE '\'`, []any{likePrefix(prefix)}, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// likePrefix matches keys starting with prefix taken literally.
func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

// List returns stored windows matching q, including expired rows that have
// not been purged yet.
func (s *Store) List(ctx context.Context, q core.WindowQuery) ([]core.WindowEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := whereClause(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT client_key, request_count, window_start, expires_at
		FROM rate_windows
		%s
		ORDER BY client_key
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list rate windows: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []core.WindowEntry{}
	for rows.Next() {
		var (
			key          string
			requestCount int
			windowStart  int64
			expiresAt    int64
		)
		if err := rows.Scan(&key, &requestCount, &windowStart, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan rate windows: %w", err)
		}

		entries = append(entries, core.WindowEntry{
			Key: key,
			Window: core.RateWindow{
				Count:       requestCount,
				WindowStart: time.UnixMilli(windowStart).UTC(),
				ExpiresAt:   time.UnixMilli(expiresAt).UTC(),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate windows: %w", err)
	}

	return entries, nil
}

// Count returns how many stored windows match q.
func (s *Store) Count(ctx context.Context, q core.WindowQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := whereClause(q)
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM rate_windows
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate windows: %w", err)
	}
	return count, nil
}

// Reset deletes windows matching q and returns how many were removed.
func (s *Store) Reset(ctx context.Context, q core.WindowQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := whereClause(q)
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM rate_windows
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate windows: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset rate windows: %w", err)
	}
	return affected, nil
}

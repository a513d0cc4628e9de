//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/astrowidget/astroproxy/internal/config"
	"github.com/astrowidget/astroproxy/internal/core"
	"github.com/astrowidget/astroproxy/internal/core/engine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{
		Driver: "libsql",
		Path:   "file:" + t.TempDir() + "/astroproxy.db",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Close())
}

func TestOpenLocalStore_ConfiguresSQLite(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.Equal(t, 1, store.DB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	require.Contains(t, journalMode, "wal")

	var busyTimeout int
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	require.GreaterOrEqual(t, busyTimeout, 1000)
}

func TestWindowRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	store.Clock = func() time.Time { return now }

	got, err := store.GetWindow(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.Nil(t, got)

	window := core.RateWindow{Count: 4, WindowStart: now, ExpiresAt: now.Add(10 * time.Minute)}
	require.NoError(t, store.PutWindow(ctx, "203.0.113.7", window))

	got, err = store.GetWindow(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.Equal(t, window, *got)

	now = now.Add(10 * time.Minute)
	got, err = store.GetWindow(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.Nil(t, got)

	purged, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)
}

func TestStoreBacksRateLimiter(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	store.Clock = func() time.Time { return now }
	limiter := &engine.RateLimiter{Store: store, Limit: 2, Clock: func() time.Time { return now }}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision, err := limiter.Admit(ctx, "k")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}
	decision, err := limiter.Admit(ctx, "k")
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	now = now.Add(engine.DefaultRateWindow)
	decision, err = limiter.Admit(ctx, "k")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, 1, decision.Count)
}

func TestWindowAdmin(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	window := core.RateWindow{Count: 1, WindowStart: now, ExpiresAt: now.Add(time.Minute)}

	for _, key := range []string{"10.0.0.2", "10.0.0.1", "192.0.2.1"} {
		require.NoError(t, store.PutWindow(ctx, key, window))
	}

	_, err := store.List(ctx, core.WindowQuery{})
	require.Error(t, err)

	entries, err := store.List(ctx, core.WindowQuery{Prefix: "10."})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "10.0.0.1", entries[0].Key)
	require.Equal(t, window, entries[0].Window)

	// "_" is a LIKE wildcard; the prefix must still match literally.
	entries, err = store.List(ctx, core.WindowQuery{Prefix: "10.0_"})
	require.NoError(t, err)
	require.Empty(t, entries)

	count, err := store.Count(ctx, core.WindowQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 3, count)

	removed, err := store.Reset(ctx, core.WindowQuery{Key: "192.0.2.1"})
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	removed, err = store.Reset(ctx, core.WindowQuery{All: true})
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)
}

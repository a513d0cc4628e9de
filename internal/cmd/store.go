package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/astrowidget/astroproxy/internal/config"
	"github.com/astrowidget/astroproxy/internal/core"
	"github.com/astrowidget/astroproxy/internal/core/engine"
	"github.com/astrowidget/astroproxy/internal/core/store"
	"github.com/astrowidget/astroproxy/internal/core/store/memory"
	"github.com/astrowidget/astroproxy/internal/core/store/redisstore"
)

// Window store backends.
const (
	backendMemory = "memory"
	backendRedis  = "redis"
	backendLibsql = "libsql"
)

// windowBackend is a rate window store the server and the admin commands
// can both drive.
type windowBackend interface {
	engine.WindowStore
	List(ctx context.Context, q core.WindowQuery) ([]core.WindowEntry, error)
	Reset(ctx context.Context, q core.WindowQuery) (int64, error)
	Close() error
}

type openedBackend struct {
	windowBackend
	name string
	// ping reports reachability for health checks; nil means always healthy.
	ping func(ctx context.Context) error
	// sweep drops expired windows; nil when the backend expires them itself.
	sweep func(ctx context.Context, now time.Time) (int64, error)
}

func openWindowBackend(ctx context.Context, cfg *config.Config) (*openedBackend, error) {
	switch cfg.RateLimit.Backend {
	case backendMemory, "":
		mem := memory.New()
		return &openedBackend{
			windowBackend: mem,
			name:          backendMemory,
			sweep: func(_ context.Context, now time.Time) (int64, error) {
				return int64(mem.Sweep(now)), nil
			},
		}, nil
	case backendRedis:
		rs, err := redisstore.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &openedBackend{windowBackend: rs, name: backendRedis, ping: rs.Ping}, nil
	case backendLibsql:
		db, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &openedBackend{
			windowBackend: db,
			name:          backendLibsql,
			ping:          db.DB.PingContext,
			sweep:         db.PurgeExpired,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported rate limit backend: %s", cfg.RateLimit.Backend)
	}
}

// openAdminBackend opens the configured store for the rate-limit commands.
// Memory windows live inside the server process and cannot be inspected.
func openAdminBackend(ctx context.Context) (*openedBackend, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.RateLimit.Backend == backendMemory || cfg.RateLimit.Backend == "" {
		return nil, errors.New("rate_limit.backend is memory; windows live in the server process (use redis or libsql to inspect them)")
	}
	return openWindowBackend(ctx, cfg)
}

type windowCounter interface {
	Count(ctx context.Context, q core.WindowQuery) (int, error)
}

// countWindows counts matches without loading them when the backend can.
func countWindows(ctx context.Context, backend *openedBackend, q core.WindowQuery) (int, error) {
	if counter, ok := backend.windowBackend.(windowCounter); ok {
		return counter.Count(ctx, q)
	}
	entries, err := backend.List(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

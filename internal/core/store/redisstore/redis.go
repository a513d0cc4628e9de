// Package redisstore keeps rate windows in Redis so every proxy instance
// behind a load balancer shares the same quota.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/astrowidget/astroproxy/internal/config"
	"github.com/astrowidget/astroproxy/internal/core"
)

// DefaultKeyPrefix namespaces window keys.
const DefaultKeyPrefix = "astroproxy:rl:"

const pingTimeout = 5 * time.Second

// admitScript applies one hit to the window hash under KEYS[1].
// ARGV: now (unix ms), limit, window (ms).
// Returns {count, start, expires, allowed}.
var admitScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'count', 'start', 'expires')
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local count = tonumber(v[1] or '0')
local expires = tonumber(v[3] or '0')
if count == 0 or expires <= now then
  redis.call('HSET', KEYS[1], 'count', 1, 'start', now, 'expires', now + window)
  redis.call('PEXPIRE', KEYS[1], window)
  return {1, now, now + window, 1}
end
local start = tonumber(v[2] or ARGV[1])
if count >= limit then
  return {count, start, expires, 0}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {count, start, expires, 1}
`)

// Store is a Redis-backed window store.
type Store struct {
	client *redis.Client
	prefix string

	Clock func() time.Time
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis address is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Store {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Close releases the Redis connection pool.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("redis store is not initialized")
	}
	return s.client.Ping(ctx).Err()
}

// AdmitWindow applies a hit atomically on the server.
func (s *Store) AdmitWindow(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (core.RateWindow, bool, error) {
	if s == nil || s.client == nil {
		return core.RateWindow{}, false, errors.New("redis store is not initialized")
	}

	res, err := admitScript.Run(ctx, s.client, []string{s.key(key)},
		now.UTC().UnixMilli(), limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return core.RateWindow{}, false, fmt.Errorf("admit rate window: %w", err)
	}
	if len(res) != 4 {
		return core.RateWindow{}, false, fmt.Errorf("admit rate window: unexpected reply length %d", len(res))
	}

	return core.RateWindow{
		Count:       int(res[0]),
		WindowStart: time.UnixMilli(res[1]).UTC(),
		ExpiresAt:   time.UnixMilli(res[2]).UTC(),
	}, res[3] == 1, nil
}

// GetWindow returns the live window for a client key, or nil.
func (s *Store) GetWindow(ctx context.Context, key string) (*core.RateWindow, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis store is not initialized")
	}

	values, err := s.client.HMGet(ctx, s.key(key), "count", "start", "expires").Result()
	if err != nil {
		return nil, fmt.Errorf("fetch rate window: %w", err)
	}
	window, ok, err := decodeWindow(values)
	if err != nil {
		return nil, err
	}
	if !ok || window.Expired(s.now()) {
		return nil, nil
	}
	return &window, nil
}

// PutWindow stores the window with a TTL matching its expiry.
func (s *Store) PutWindow(ctx context.Context, key string, window core.RateWindow) error {
	if s == nil || s.client == nil {
		return errors.New("redis store is not initialized")
	}

	redisKey := s.key(key)
	ttl := window.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.client.Del(ctx, redisKey).Err()
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, redisKey,
		"count", window.Count,
		"start", window.WindowStart.UTC().UnixMilli(),
		"expires", window.ExpiresAt.UTC().UnixMilli(),
	)
	pipe.PExpire(ctx, redisKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate window: %w", err)
	}
	return nil
}

// List returns live windows matching q.
func (s *Store) List(ctx context.Context, q core.WindowQuery) ([]core.WindowEntry, error) {
	keys, err := s.matchingKeys(ctx, q)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entries := []core.WindowEntry{}
	for _, redisKey := range keys {
		values, err := s.client.HMGet(ctx, redisKey, "count", "start", "expires").Result()
		if err != nil {
			return nil, fmt.Errorf("list rate windows: %w", err)
		}
		window, ok, err := decodeWindow(values)
		if err != nil {
			return nil, err
		}
		if !ok || window.Expired(now) {
			continue
		}
		entries = append(entries, core.WindowEntry{
			Key:    strings.TrimPrefix(redisKey, s.prefix),
			Window: window,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Reset deletes windows matching q and returns how many were removed.
func (s *Store) Reset(ctx context.Context, q core.WindowQuery) (int64, error) {
	keys, err := s.matchingKeys(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("reset rate windows: %w", err)
	}
	return removed, nil
}

func (s *Store) matchingKeys(ctx context.Context, q core.WindowQuery) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis store is not initialized")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if !q.All && strings.TrimSpace(q.Key) != "" {
		redisKey := s.key(q.Key)
		n, err := s.client.Exists(ctx, redisKey).Result()
		if err != nil {
			return nil, fmt.Errorf("lookup rate window: %w", err)
		}
		if n == 0 {
			return nil, nil
		}
		return []string{redisKey}, nil
	}

	pattern := escapeGlob(s.prefix) + "*"
	if !q.All {
		pattern = escapeGlob(s.prefix+strings.TrimSpace(q.Prefix)) + "*"
	}

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan rate windows: %w", err)
	}
	return keys, nil
}

func (s *Store) key(clientKey string) string {
	return s.prefix + strings.TrimSpace(clientKey)
}

func (s *Store) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func decodeWindow(values []any) (core.RateWindow, bool, error) {
	if len(values) != 3 || values[0] == nil {
		return core.RateWindow{}, false, nil
	}
	nums := make([]int64, 3)
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			return core.RateWindow{}, false, fmt.Errorf("decode rate window: unexpected field type %T", v)
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return core.RateWindow{}, false, fmt.Errorf("decode rate window: %w", err)
		}
		nums[i] = n
	}
	return core.RateWindow{
		Count:       int(nums[0]),
		WindowStart: time.UnixMilli(nums[1]).UTC(),
		ExpiresAt:   time.UnixMilli(nums[2]).UTC(),
	}, true, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

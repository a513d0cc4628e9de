// Package memory keeps rate windows in process. It suits single-instance
// deployments; windows are lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/astrowidget/astroproxy/internal/core"
)

// Store is a mutex-guarded map of client key to window.
type Store struct {
	mu      sync.Mutex
	windows map[string]core.RateWindow
	Clock   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{windows: make(map[string]core.RateWindow)}
}

// GetWindow returns the live window for key, or nil.
func (s *Store) GetWindow(ctx context.Context, key string) (*core.RateWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		return nil, nil
	}
	if w.Expired(s.now()) {
		delete(s.windows, key)
		return nil, nil
	}
	return &w, nil
}

// PutWindow stores window for key.
func (s *Store) PutWindow(ctx context.Context, key string, window core.RateWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()
	s.windows[key] = window
	return nil
}

// AdmitWindow applies one hit under the store lock.
func (s *Store) AdmitWindow(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (core.RateWindow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()

	var current *core.RateWindow
	if w, ok := s.windows[key]; ok {
		current = &w
	}
	next, allowed := core.AdvanceWindow(current, now, limit, window)
	if allowed {
		s.windows[key] = next
	}
	return next, allowed, nil
}

// List returns live windows matching q, ordered by key.
func (s *Store) List(ctx context.Context, q core.WindowQuery) ([]core.WindowEntry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entries := []core.WindowEntry{}
	for key, w := range s.windows {
		if w.Expired(now) || !q.Match(key) {
			continue
		}
		entries = append(entries, core.WindowEntry{Key: key, Window: w})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Reset deletes windows matching q and returns how many were removed.
func (s *Store) Reset(ctx context.Context, q core.WindowQuery) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key := range s.windows {
		if q.Match(key) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed, nil
}

// Sweep drops expired windows and returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if w.Expired(now) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored windows, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) ensure() {
	if s.windows == nil {
		s.windows = make(map[string]core.RateWindow)
	}
}

func (s *Store) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

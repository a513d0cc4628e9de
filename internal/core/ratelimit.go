package core

import (
	"errors"
	"strings"
	"time"
)

// RateWindow captures per-client fixed-window state.
type RateWindow struct {
	Count       int       `json:"count" yaml:"count"`
	WindowStart time.Time `json:"window_start" yaml:"window_start"`
	ExpiresAt   time.Time `json:"expires_at" yaml:"expires_at"`
}

// Expired reports whether the window no longer applies at now.
func (w *RateWindow) Expired(now time.Time) bool {
	if w == nil {
		return true
	}
	return !now.Before(w.ExpiresAt)
}

// AdvanceWindow applies one hit to the current window and returns the
// resulting window and whether the hit is admitted.
//
// A missing or expired window starts a new one with count 1 anchored at now.
// A live window below limit is incremented. A live window at or above limit
// is returned unchanged and the hit is rejected.
func AdvanceWindow(current *RateWindow, now time.Time, limit int, window time.Duration) (RateWindow, bool) {
	if current.Expired(now) {
		return RateWindow{
			Count:       1,
			WindowStart: now,
			ExpiresAt:   now.Add(window),
		}, true
	}

	next := *current
	if next.Count >= limit {
		return next, false
	}
	next.Count++
	return next, true
}

// WindowEntry pairs a client key with its stored window.
type WindowEntry struct {
	Key    string     `json:"key" yaml:"key"`
	Window RateWindow `json:"window" yaml:"window"`
}

// WindowQuery selects stored windows for inspection or reset.
type WindowQuery struct {
	All    bool
	Key    string
	Prefix string
}

// Validate requires exactly one usable selector.
func (q WindowQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Key) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --key, or --prefix")
}

// Match reports whether key is selected by the query.
func (q WindowQuery) Match(key string) bool {
	if q.All {
		return true
	}
	if k := strings.TrimSpace(q.Key); k != "" {
		return key == k
	}
	if p := strings.TrimSpace(q.Prefix); p != "" {
		return strings.HasPrefix(key, p)
	}
	return false
}

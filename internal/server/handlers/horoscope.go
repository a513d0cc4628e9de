package handlers

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/astrowidget/astroproxy/internal/core"
	"github.com/astrowidget/astroproxy/internal/core/engine"
	"github.com/astrowidget/astroproxy/internal/core/intake"
	"github.com/astrowidget/astroproxy/internal/observability"
)

const (
	// NonceHeader carries the anti-forgery token. The _awnonce body field
	// is the fallback.
	NonceHeader = "X-Astro-Nonce"

	// DefaultMaxBodyBytes caps submission bodies.
	DefaultMaxBodyBytes int64 = 64 << 10
)

// HoroscopeHandler accepts widget submissions and relays the upstream
// answer.
type HoroscopeHandler struct {
	Pipeline     *engine.Pipeline
	ClientKeys   *engine.ClientKeyResolver
	Sessions     Sessions
	MaxBodyBytes int64
}

func (h *HoroscopeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}

	// Malformed or oversized bodies become an empty submission; the
	// validator rejects it once the gate and limiter have run.
	sub, err := intake.DecodeSubmission(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		sub = core.Submission{}
		if logger := observability.ServerLogger; logger != nil {
			logger.Debug("Discarding unreadable submission body", zap.Error(err))
		}
	}

	keys := h.ClientKeys
	if keys == nil {
		keys = &engine.ClientKeyResolver{}
	}

	out, err := h.Pipeline.Handle(r.Context(), engine.Inbound{
		ClientKey:  keys.Resolve(r),
		Secure:     keys.IsSecure(r),
		Origin:     r.Header.Get("Origin"),
		Token:      r.Header.Get(NonceHeader),
		SessionID:  h.Sessions.ID(r),
		Submission: sub,
	})
	if out.Limited {
		writeRateLimitHeaders(w, out.Decision)
	}
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(out.Response.Status)
	_, _ = w.Write(out.Response.Body)
}

func writeRateLimitHeaders(w http.ResponseWriter, d engine.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
	if !d.Allowed {
		secs := int((d.RetryAfter + time.Second - 1) / time.Second)
		h.Set("Retry-After", strconv.Itoa(secs))
	}
}

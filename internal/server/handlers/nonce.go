package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/astrowidget/astroproxy/internal/core/engine"
	"github.com/astrowidget/astroproxy/internal/core/gate"
	apperrors "github.com/astrowidget/astroproxy/internal/errors"
)

// NonceResponse is returned by the nonce endpoint.
type NonceResponse struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NonceHandler issues a token bound to the caller's session cookie,
// starting a session when the request carries none.
type NonceHandler struct {
	Gate       *gate.Gate
	ClientKeys *engine.ClientKeyResolver
	Sessions   Sessions
}

func (h *NonceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	secure := r.TLS != nil
	if h.ClientKeys != nil {
		secure = h.ClientKeys.IsSecure(r)
	}

	sessionID := h.Sessions.Ensure(w, r, secure)
	nonce, expiresAt, err := h.Gate.Issue(sessionID)
	if err != nil {
		respondWithError(w, r, apperrors.WrapConfigInvalid(r.Context(), err, "Nonce issuance unavailable"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(NonceResponse{Nonce: nonce, ExpiresAt: expiresAt.UTC()})
}

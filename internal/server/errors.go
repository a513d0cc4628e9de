package server

import (
	"net/http"

	apperrors "github.com/astrowidget/astroproxy/internal/errors"
)

// HandleError writes every error the proxy returns, from routing misses to
// rejected submissions. Error bodies carry a request ID and must never be
// reused from a browser or intermediary cache.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Cache-Control", "no-store")
	apperrors.RespondWithError(w, r, err)
}

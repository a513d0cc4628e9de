package handlers

import (
	"net/http"

	apperrors "github.com/astrowidget/astroproxy/internal/errors"
)

// ErrorResponder writes an error as the proxy's flat JSON error body.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// httpErrorResponder is used by the nonce, horoscope and health handlers.
// The server package swaps in its own responder at construction.
var httpErrorResponder ErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder installs responder; nil restores the plain envelope
// writer.
func SetHTTPErrorResponder(responder ErrorResponder) {
	if responder == nil {
		responder = apperrors.RespondWithError
	}
	httpErrorResponder = responder
}

// ResetHTTPErrorResponder restores the plain envelope writer.
func ResetHTTPErrorResponder() {
	SetHTTPErrorResponder(nil)
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}

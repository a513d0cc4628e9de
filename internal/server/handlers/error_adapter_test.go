package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSetHTTPErrorResponder(t *testing.T) {
	t.Cleanup(ResetHTTPErrorResponder)

	var got error
	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	respondWithError(rec, httptest.NewRequest(http.MethodGet, "/v1/nonce", nil), errors.New("boom"))
	if rec.Code != http.StatusTeapot || got == nil {
		t.Fatalf("custom responder not used: status %d, err %v", rec.Code, got)
	}

	SetHTTPErrorResponder(nil)
	rec = httptest.NewRecorder()
	respondWithError(rec, httptest.NewRequest(http.MethodGet, "/v1/nonce", nil), errors.New("boom"))
	if rec.Code == http.StatusTeapot {
		t.Fatalf("nil responder should restore the envelope writer")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON error body, got content type %q", ct)
	}
}

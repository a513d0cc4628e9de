package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func captureRequestID(t *testing.T, header string) (seen string, echoed string) {
	t.Helper()
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/nonce", nil)
	if header != "" {
		req.Header.Set(RequestIDHeader, header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return seen, rec.Header().Get(RequestIDHeader)
}

func TestRequestIDReusesInboundHeader(t *testing.T) {
	seen, echoed := captureRequestID(t, "edge-7f3a")
	assert.Equal(t, "edge-7f3a", seen)
	assert.Equal(t, "edge-7f3a", echoed)
}

func TestRequestIDGeneratesWhenMissing(t *testing.T) {
	seen, echoed := captureRequestID(t, "")
	assert.Equal(t, seen, echoed)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestRequestIDReplacesUnsafeValues(t *testing.T) {
	for _, bad := range []string{"has space", "line\tbreak", strings.Repeat("a", maxRequestIDLength+1)} {
		seen, _ := captureRequestID(t, bad)
		assert.NotEqual(t, bad, seen)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err, bad)
	}
}

package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrowidget/astroproxy/internal/server/middleware"
)

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[string]int{
		CodeValidationFailed:   http.StatusBadRequest,
		CodeForbidden:          http.StatusForbidden,
		CodeNotFound:           http.StatusNotFound,
		CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
		CodeRateLimited:        http.StatusTooManyRequests,
		CodeConfigInvalid:      http.StatusInternalServerError,
		CodeInternal:           http.StatusInternalServerError,
		CodeExternalService:    http.StatusBadGateway,
		CodeServiceUnavailable: http.StatusServiceUnavailable,
		"SOMETHING_ELSE":       http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromEnvelope(nil))
}

func TestWrapUsesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDContextKey, "req-42")

	envelope := WrapForbidden(ctx, stderrors.New("token expired"), "Invalid or missing nonce")

	assert.Equal(t, CodeForbidden, envelope.Code)
	assert.Equal(t, "req-42", envelope.CorrelationID)
	assert.Equal(t, "token expired", envelope.Context["wrapped_error"])
}

func TestRespondWithErrorKeepsContextOutOfBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/horoscope", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDContextKey, "req-7"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, WrapExternalService(req.Context(), stderrors.New("dial tcp: Bearer abc"), "connection refused"))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Bearer")

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, HTTPErrorResponse{Error: "connection refused", Code: CodeExternalService, RequestID: "req-7"}, body)
}

func TestRespondWithErrorNormalizesPlainErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, stderrors.New("database is locked"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Internal server error", body.Error)
	assert.Equal(t, CodeInternal, body.Code)
	assert.NotEmpty(t, body.RequestID)
}

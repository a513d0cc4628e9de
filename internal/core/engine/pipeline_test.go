package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/stretchr/testify/require"

	"github.com/astrowidget/astroproxy/internal/core"
	"github.com/astrowidget/astroproxy/internal/core/gate"
	"github.com/astrowidget/astroproxy/internal/core/upstream"
	apperrors "github.com/astrowidget/astroproxy/internal/errors"
)

type stubSender struct {
	token string
	resp  *upstream.Response
	err   error
	sent  []core.NormalizedRequest
}

func (s *stubSender) HasCredential() bool { return s.token != "" }

func (s *stubSender) Send(ctx context.Context, req core.NormalizedRequest) (*upstream.Response, error) {
	s.sent = append(s.sent, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type pipelineFixture struct {
	pipeline *Pipeline
	store    *memoryWindowStore
	sender   *stubSender
	gate     *gate.Gate
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	issuer, err := gate.NewTokenIssuer([]byte("pipeline-secret"), time.Hour)
	require.NoError(t, err)

	store := &memoryWindowStore{}
	sender := &stubSender{
		token: "bearer",
		resp:  &upstream.Response{Status: http.StatusOK, Body: json.RawMessage(`{"sun":"Leo"}`)},
	}
	g := &gate.Gate{Tokens: issuer}
	return &pipelineFixture{
		pipeline: &Pipeline{
			Gate:     g,
			Limiter:  &RateLimiter{Store: store, Limit: 2},
			Upstream: sender,
		},
		store:  store,
		sender: sender,
		gate:   g,
	}
}

func (f *pipelineFixture) inbound(t *testing.T, sub core.Submission) Inbound {
	t.Helper()
	token, _, err := f.gate.Issue("sid")
	require.NoError(t, err)
	return Inbound{
		ClientKey:  "203.0.113.7",
		Secure:     true,
		Token:      token,
		SessionID:  "sid",
		Submission: sub,
	}
}

func adaLovelace() core.Submission {
	return core.Submission{
		"name":       "Ada Lovelace",
		"email":      "ada@example.com",
		"birth_date": "08/19/1994",
		"birth_time": "2:30:00 PM",
		"timezone":   "America/New_York",
		"location":   "Atlanta, USA",
	}
}

func requireEnvelope(t *testing.T, err error, code, message string) {
	t.Helper()
	var envelope *gferrors.ErrorEnvelope
	require.True(t, errors.As(err, &envelope), "expected envelope, got %v", err)
	require.Equal(t, code, envelope.Code)
	if message != "" {
		require.Equal(t, message, envelope.Message)
	}
}

func TestPipelineRelaysUpstream(t *testing.T) {
	f := newPipelineFixture(t)

	out, err := f.pipeline.Handle(context.Background(), f.inbound(t, adaLovelace()))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, out.Response.Status)
	require.JSONEq(t, `{"sun":"Leo"}`, string(out.Response.Body))

	require.Len(t, f.sender.sent, 1)
	sent := f.sender.sent[0]
	require.Equal(t, "1994-08-19", sent.BirthDate)
	require.Equal(t, "14:30:00", sent.BirthTime)
	require.Equal(t, "America/New_York", sent.Timezone)
	require.True(t, out.Limited)
	require.Equal(t, 1, out.Decision.Remaining)
}

func TestPipelineRejectsLatitudeWithoutUpstreamCall(t *testing.T) {
	f := newPipelineFixture(t)
	sub := adaLovelace()
	sub["lat"] = "91"

	_, err := f.pipeline.Handle(context.Background(), f.inbound(t, sub))
	requireEnvelope(t, err, apperrors.CodeValidationFailed, "Latitude out of range")
	require.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusFromEnvelope(err.(*gferrors.ErrorEnvelope)))
	require.Empty(t, f.sender.sent)
}

func TestPipelineForgedTokensNeverConsumeQuota(t *testing.T) {
	f := newPipelineFixture(t)

	for i := 0; i < 10; i++ {
		in := f.inbound(t, adaLovelace())
		in.Token = "forged.token"
		_, err := f.pipeline.Handle(context.Background(), in)
		requireEnvelope(t, err, apperrors.CodeForbidden, "")
	}
	require.Zero(t, f.store.puts)
	require.Empty(t, f.store.state)

	_, err := f.pipeline.Handle(context.Background(), f.inbound(t, adaLovelace()))
	require.NoError(t, err)
}

func TestPipelineRejectsInsecureTransport(t *testing.T) {
	f := newPipelineFixture(t)
	in := f.inbound(t, adaLovelace())
	in.Secure = false

	_, err := f.pipeline.Handle(context.Background(), in)
	requireEnvelope(t, err, apperrors.CodeForbidden, "Secure transport required")
	require.Zero(t, f.store.puts)
}

func TestPipelineAcceptsBodyToken(t *testing.T) {
	f := newPipelineFixture(t)
	in := f.inbound(t, adaLovelace())
	in.Submission[core.FieldNonce] = in.Token
	in.Token = ""

	_, err := f.pipeline.Handle(context.Background(), in)
	require.NoError(t, err)
}

func TestPipelineRateLimits(t *testing.T) {
	f := newPipelineFixture(t)

	for i := 0; i < 2; i++ {
		_, err := f.pipeline.Handle(context.Background(), f.inbound(t, adaLovelace()))
		require.NoError(t, err)
	}

	out, err := f.pipeline.Handle(context.Background(), f.inbound(t, adaLovelace()))
	requireEnvelope(t, err, apperrors.CodeRateLimited, MsgRateLimited)
	require.False(t, out.Decision.Allowed)
	require.Positive(t, out.Decision.RetryAfter)
	require.Len(t, f.sender.sent, 2)
}

func TestPipelineStoreFailureAdmitsWithoutRateHeaders(t *testing.T) {
	f := newPipelineFixture(t)
	f.store.getErr = errors.New("store down")

	out, err := f.pipeline.Handle(context.Background(), f.inbound(t, adaLovelace()))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, out.Response.Status)
	require.True(t, out.Decision.Allowed)
	require.False(t, out.Limited)
	require.Len(t, f.sender.sent, 1)
}

func TestPipelineMissingCredential(t *testing.T) {
	f := newPipelineFixture(t)
	f.sender.token = ""

	sub := adaLovelace()
	sub["lat"] = "91"
	_, err := f.pipeline.Handle(context.Background(), f.inbound(t, sub))
	requireEnvelope(t, err, apperrors.CodeConfigInvalid, MsgMissingToken)
	require.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatusFromCode(apperrors.CodeConfigInvalid))
	require.Empty(t, f.sender.sent)
}

func TestPipelineTransportFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.sender.err = &upstream.TransportError{Err: errors.New("dial tcp: connection refused")}

	_, err := f.pipeline.Handle(context.Background(), f.inbound(t, adaLovelace()))
	requireEnvelope(t, err, apperrors.CodeExternalService, "dial tcp: connection refused")
}

func TestPipelineRelaysUpstreamErrorStatus(t *testing.T) {
	f := newPipelineFixture(t)
	f.sender.resp = &upstream.Response{Status: http.StatusUnauthorized, Body: json.RawMessage(`{"message":"bad token"}`)}

	out, err := f.pipeline.Handle(context.Background(), f.inbound(t, adaLovelace()))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, out.Response.Status)
}

func TestPipelineEmptySubmission(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.Handle(context.Background(), f.inbound(t, core.Submission{}))
	requireEnvelope(t, err, apperrors.CodeValidationFailed, "Invalid or missing required fields")
}

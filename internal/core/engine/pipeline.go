package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/astrowidget/astroproxy/internal/core"
	"github.com/astrowidget/astroproxy/internal/core/gate"
	"github.com/astrowidget/astroproxy/internal/core/intake"
	"github.com/astrowidget/astroproxy/internal/core/upstream"
	apperrors "github.com/astrowidget/astroproxy/internal/errors"
	"github.com/astrowidget/astroproxy/internal/metrics"
)

// Caller-facing messages for pipeline failures.
const (
	MsgRateLimited  = "Rate limit exceeded"
	MsgMissingToken = "Missing upstream access token"
	MsgInternal     = "Internal server error"
)

// Sender posts a validated request upstream.
type Sender interface {
	HasCredential() bool
	Send(ctx context.Context, req core.NormalizedRequest) (*upstream.Response, error)
}

// Inbound is one horoscope submission with its transport facts.
type Inbound struct {
	ClientKey string
	Secure    bool
	Origin    string
	// Token is the header value; the body field is used when it is empty.
	Token      string
	SessionID  string
	Submission core.Submission
}

func (in Inbound) token() string {
	if t := strings.TrimSpace(in.Token); t != "" {
		return t
	}
	return in.Submission.Get(core.FieldNonce)
}

// Outcome carries what the HTTP layer needs to answer. Decision is set once
// the limiter ran, even when a later stage failed. Limited is false when the
// window store failed and the request was admitted without a count.
type Outcome struct {
	Response *upstream.Response
	Decision Decision
	Limited  bool
	Request  core.NormalizedRequest
}

// Pipeline runs gate, rate limit, credential check, normalization,
// validation and the upstream call. The first failing stage wins.
type Pipeline struct {
	Gate     *gate.Gate
	Limiter  *RateLimiter
	Upstream Sender
	Logger   *logging.Logger
}

// Handle processes in. Failures are returned as gofulmen error envelopes;
// upstream responses of any status are returned in Outcome.Response.
func (p *Pipeline) Handle(ctx context.Context, in Inbound) (Outcome, error) {
	var out Outcome
	if ctx == nil {
		ctx = context.Background()
	}

	if err := p.Gate.Check(gate.Request{
		Secure:    in.Secure,
		Origin:    in.Origin,
		Token:     in.token(),
		SessionID: in.SessionID,
	}); err != nil {
		metrics.RecordSubmission(metrics.OutcomeForbidden)
		message := "Forbidden"
		var rejection *gate.Rejection
		if errors.As(err, &rejection) {
			message = rejection.Message
			p.debug("gate rejected submission", zap.String("reason", string(rejection.Reason)))
		}
		return out, apperrors.WrapForbidden(ctx, err, message)
	}

	if p.Limiter != nil {
		decision, err := p.Limiter.Admit(ctx, in.ClientKey)
		metrics.RecordRateLimitDecision(decision.Allowed, err)
		if err != nil {
			p.warn("rate limit store unavailable, admitting request", zap.Error(err))
		}
		out.Decision = decision
		out.Limited = err == nil
		if !decision.Allowed {
			metrics.RecordSubmission(metrics.OutcomeRateLimited)
			return out, apperrors.WrapRateLimited(ctx, nil, MsgRateLimited)
		}
	}

	if p.Upstream == nil || !p.Upstream.HasCredential() {
		metrics.RecordSubmission(metrics.OutcomeMisconfig)
		return out, apperrors.WrapConfigInvalid(ctx, upstream.ErrMissingToken, MsgMissingToken)
	}

	req, err := intake.Process(in.Submission)
	if err != nil {
		metrics.RecordSubmission(metrics.OutcomeInvalid)
		message := intake.MsgInvalidFields
		var verr *intake.ValidationError
		if errors.As(err, &verr) {
			message = verr.Message
		}
		return out, apperrors.WrapValidationError(ctx, err, message)
	}
	out.Request = req

	resp, err := p.Upstream.Send(ctx, req)
	if err != nil {
		metrics.RecordSubmission(metrics.OutcomeUpstreamErr)
		var transportErr *upstream.TransportError
		if errors.As(err, &transportErr) {
			metrics.RecordUpstreamRequest(0, 0)
			return out, apperrors.WrapExternalService(ctx, err, transportErr.Error())
		}
		if errors.Is(err, upstream.ErrMissingToken) {
			return out, apperrors.WrapConfigInvalid(ctx, err, MsgMissingToken)
		}
		return out, apperrors.WrapInternal(ctx, err, MsgInternal)
	}

	metrics.RecordUpstreamRequest(resp.Status, resp.Duration)
	metrics.RecordSubmission(metrics.OutcomeRelayed)
	out.Response = resp
	return out, nil
}

func (p *Pipeline) debug(msg string, fields ...zap.Field) {
	if p.Logger != nil {
		p.Logger.Debug(msg, fields...)
	}
}

func (p *Pipeline) warn(msg string, fields ...zap.Field) {
	if p.Logger != nil {
		p.Logger.Warn(msg, fields...)
	}
}

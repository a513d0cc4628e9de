package metrics

import (
	"strconv"
	"time"

	"github.com/astrowidget/astroproxy/internal/observability"
)

// Horoscope pipeline metric names
const (
	SubmissionsTotalName        = "horoscope_submissions_total"
	RateLimitDecisionsName      = "ratelimit_decisions_total"
	UpstreamRequestsTotalName   = "upstream_requests_total"
	UpstreamRequestDurationName = "upstream_request_duration_ms"
)

// Submission outcomes
const (
	OutcomeRelayed     = "relayed"
	OutcomeForbidden   = "forbidden"
	OutcomeRateLimited = "rate_limited"
	OutcomeInvalid     = "invalid"
	OutcomeMisconfig   = "misconfigured"
	OutcomeUpstreamErr = "upstream_error"
)

// RecordSubmission counts one horoscope submission by final outcome.
func RecordSubmission(outcome string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			SubmissionsTotalName,
			1,
			map[string]string{"outcome": outcome},
		)
	}
}

// RecordRateLimitDecision counts limiter verdicts. Store failures are
// recorded as "error" (the request itself is admitted).
func RecordRateLimitDecision(allowed bool, storeErr error) {
	decision := "allowed"
	switch {
	case storeErr != nil:
		decision = "error"
	case !allowed:
		decision = "rejected"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RateLimitDecisionsName,
			1,
			map[string]string{"decision": decision},
		)
	}
}

// RecordUpstreamRequest counts an upstream call by status (0 for transport
// failures) and records its latency.
func RecordUpstreamRequest(status int, duration time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			UpstreamRequestsTotalName,
			1,
			map[string]string{"status": strconv.Itoa(status)},
		)
		_ = observability.TelemetrySystem.Histogram(
			UpstreamRequestDurationName,
			duration,
			nil,
		)
	}
}

// Package gate decides whether a horoscope submission may be processed at
// all. It proves the request came from a page this server rendered
// recently; it says nothing about who the caller is.
package gate

import (
	"errors"
	"strings"
	"time"
)

// Reason identifies why a request was turned away.
type Reason string

const (
	ReasonInsecureTransport Reason = "insecure_transport"
	ReasonOriginNotAllowed  Reason = "origin_not_allowed"
	ReasonInvalidToken      Reason = "invalid_token"
)

// Request carries the transport facts the gate needs.
type Request struct {
	// Secure is true for direct TLS or an https forwarded proto from a
	// trusted proxy.
	Secure    bool
	Origin    string
	Token     string
	SessionID string
}

// Rejection is returned by Check. Message is safe to show to callers.
type Rejection struct {
	Reason  Reason
	Message string
	Err     error
}

func (r *Rejection) Error() string {
	return r.Message
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// Gate enforces transport security, the origin allowlist and token
// possession, in that order.
type Gate struct {
	Tokens *TokenIssuer
	Action string
	// AllowInsecure disables the TLS requirement (debug mode only).
	AllowInsecure  bool
	AllowedOrigins []string
}

// Check returns nil when the request may proceed, or a *Rejection.
func (g *Gate) Check(req Request) error {
	if g == nil || g.Tokens == nil {
		return &Rejection{Reason: ReasonInvalidToken, Message: "Forbidden", Err: errors.New("gate is not configured")}
	}

	if !req.Secure && !g.AllowInsecure {
		return &Rejection{Reason: ReasonInsecureTransport, Message: "Secure transport required"}
	}

	if !g.originAllowed(req.Origin) {
		return &Rejection{Reason: ReasonOriginNotAllowed, Message: "Origin not allowed"}
	}

	if err := g.VerifyToken(req.Token, req.SessionID); err != nil {
		return &Rejection{Reason: ReasonInvalidToken, Message: "Invalid or missing nonce", Err: err}
	}
	return nil
}

// Issue returns a token for sessionID under the gate's action.
func (g *Gate) Issue(sessionID string) (string, time.Time, error) {
	if g == nil || g.Tokens == nil {
		return "", time.Time{}, errors.New("gate is not configured")
	}
	return g.Tokens.Issue(Context(g.action(), sessionID))
}

// VerifyToken checks token against sessionID under the gate's action.
func (g *Gate) VerifyToken(token, sessionID string) error {
	if g == nil || g.Tokens == nil {
		return errors.New("gate is not configured")
	}
	return g.Tokens.Verify(token, Context(g.action(), sessionID))
}

// originAllowed passes requests without an Origin header and every origin
// when no allowlist is configured.
func (g *Gate) originAllowed(origin string) bool {
	origin = normalizeOrigin(origin)
	if origin == "" || len(g.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.AllowedOrigins {
		if normalizeOrigin(allowed) == origin {
			return true
		}
	}
	return false
}

func (g *Gate) action() string {
	if g.Action == "" {
		return DefaultAction
	}
	return g.Action
}

func normalizeOrigin(origin string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
}

package gate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T, now *time.Time) *Gate {
	t.Helper()
	issuer, err := NewTokenIssuer([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	issuer.Clock = func() time.Time { return *now }
	return &Gate{Tokens: issuer}
}

func requireReason(t *testing.T, err error, reason Reason) {
	t.Helper()
	var rej *Rejection
	require.True(t, errors.As(err, &rej), "expected rejection, got %v", err)
	require.Equal(t, reason, rej.Reason)
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer([]byte("secret"), time.Hour)
	require.NoError(t, err)
	issuer.Clock = func() time.Time { return now }

	token, expires, err := issuer.Issue(Context(DefaultAction, "sid-1"))
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour), expires)
	require.NoError(t, issuer.Verify(token, Context(DefaultAction, "sid-1")))

	require.ErrorIs(t, issuer.Verify(token, Context(DefaultAction, "sid-2")), ErrTokenMismatch)
	require.ErrorIs(t, issuer.Verify(token, Context("other", "sid-1")), ErrTokenMismatch)

	now = now.Add(time.Hour)
	require.ErrorIs(t, issuer.Verify(token, Context(DefaultAction, "sid-1")), ErrTokenExpired)
}

func TestTokenRejectsOtherSecret(t *testing.T) {
	a, err := NewTokenIssuer([]byte("a"), 0)
	require.NoError(t, err)
	b, err := NewTokenIssuer([]byte("b"), 0)
	require.NoError(t, err)
	require.Equal(t, DefaultTokenTTL, a.TTL)

	token, _, err := a.Issue("ctx")
	require.NoError(t, err)
	require.ErrorIs(t, b.Verify(token, "ctx"), ErrTokenMismatch)
}

func TestTokenExtendedExpiryIsRejected(t *testing.T) {
	issuer, err := NewTokenIssuer([]byte("secret"), time.Minute)
	require.NoError(t, err)

	token, _, err := issuer.Issue("ctx")
	require.NoError(t, err)
	_, mac, _ := strings.Cut(token, ".")
	forged := "zzzzzzz." + mac
	require.ErrorIs(t, issuer.Verify(forged, "ctx"), ErrTokenMismatch)
}

func TestTokenMalformed(t *testing.T) {
	issuer, err := NewTokenIssuer([]byte("secret"), 0)
	require.NoError(t, err)

	require.ErrorIs(t, issuer.Verify("", "ctx"), ErrTokenMissing)
	for _, token := range []string{"abc", ".abc", "abc.", "!!.abc", "abc.!!!", "abc.c2hvcnQ"} {
		require.ErrorIs(t, issuer.Verify(token, "ctx"), ErrTokenMalformed, token)
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer(nil, time.Hour)
	require.Error(t, err)
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)
	require.Len(t, a, 32)
	require.NotEqual(t, a, b)
}

func TestGateRequiresSecureTransport(t *testing.T) {
	now := time.Now().UTC()
	g := newTestGate(t, &now)
	token, _, err := g.Issue("")
	require.NoError(t, err)

	requireReason(t, g.Check(Request{Token: token}), ReasonInsecureTransport)
	require.NoError(t, g.Check(Request{Secure: true, Token: token}))

	g.AllowInsecure = true
	require.NoError(t, g.Check(Request{Token: token}))
}

func TestGateTransportCheckedBeforeToken(t *testing.T) {
	now := time.Now().UTC()
	g := newTestGate(t, &now)
	requireReason(t, g.Check(Request{Token: "bogus"}), ReasonInsecureTransport)
}

func TestGateOriginAllowlist(t *testing.T) {
	now := time.Now().UTC()
	g := newTestGate(t, &now)
	g.AllowedOrigins = []string{"https://example.com/"}
	token, _, err := g.Issue("")
	require.NoError(t, err)

	require.NoError(t, g.Check(Request{Secure: true, Token: token}))
	require.NoError(t, g.Check(Request{Secure: true, Token: token, Origin: "https://EXAMPLE.com"}))
	requireReason(t, g.Check(Request{Secure: true, Token: token, Origin: "https://evil.test"}), ReasonOriginNotAllowed)

	g.AllowedOrigins = nil
	require.NoError(t, g.Check(Request{Secure: true, Token: token, Origin: "https://evil.test"}))
}

func TestGateBindsTokenToSession(t *testing.T) {
	now := time.Now().UTC()
	g := newTestGate(t, &now)
	token, _, err := g.Issue("session-a")
	require.NoError(t, err)

	require.NoError(t, g.Check(Request{Secure: true, Token: token, SessionID: "session-a"}))

	err = g.Check(Request{Secure: true, Token: token, SessionID: "session-b"})
	requireReason(t, err, ReasonInvalidToken)
	require.ErrorIs(t, err, ErrTokenMismatch)
	require.Equal(t, "Invalid or missing nonce", err.Error())

	requireReason(t, g.Check(Request{Secure: true}), ReasonInvalidToken)
}

func TestGateRejectsExpiredToken(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g := newTestGate(t, &now)
	token, _, err := g.Issue("")
	require.NoError(t, err)

	now = now.Add(59 * time.Minute)
	require.NoError(t, g.Check(Request{Secure: true, Token: token}))

	now = now.Add(time.Minute)
	err = g.Check(Request{Secure: true, Token: token})
	requireReason(t, err, ReasonInvalidToken)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestUnconfiguredGateRejects(t *testing.T) {
	var g *Gate
	requireReason(t, g.Check(Request{Secure: true, Token: "x"}), ReasonInvalidToken)
}

func TestGateVerifyTokenUsesAction(t *testing.T) {
	now := time.Now().UTC()
	g := newTestGate(t, &now)
	token, _, err := g.Issue("s1")
	require.NoError(t, err)

	require.NoError(t, g.VerifyToken(token, "s1"))

	other := &Gate{Tokens: g.Tokens, Action: "other_action"}
	require.ErrorIs(t, other.VerifyToken(token, "s1"), ErrTokenMismatch)

	var unset *Gate
	require.Error(t, unset.VerifyToken(token, "s1"))
}

package gate

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultAction names the only action the widget requests tokens for.
	DefaultAction = "astrowidget_nonce"

	// DefaultTokenTTL matches the validity of a rendered widget page.
	DefaultTokenTTL = 12 * time.Hour

	tokenDomain = "astroproxy-token|v1|"
)

// Token verification failures.
var (
	ErrTokenMissing   = errors.New("token missing")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMismatch  = errors.New("token does not match context")
)

// TokenIssuer issues and verifies signed, time-boxed anti-forgery tokens.
//
// A token is "<expiry>.<mac>": expiry is the unix second in base 36, mac is
// a keyed BLAKE2b-256 over the action, the caller context and the expiry,
// base64url encoded without padding.
type TokenIssuer struct {
	key   [32]byte
	TTL   time.Duration
	Clock func() time.Time
}

// NewTokenIssuer derives the MAC key from secret. A zero ttl selects
// DefaultTokenTTL.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{key: blake2b.Sum256(secret), TTL: ttl}, nil
}

// GenerateSecret returns 32 random bytes suitable for NewTokenIssuer.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	return secret, nil
}

// Context binds a token to an action and a session. Anonymous callers use
// an empty session id.
func Context(action, sessionID string) string {
	return action + "|" + sessionID
}

// Issue returns a token for context and the instant it stops being valid.
func (t *TokenIssuer) Issue(context string) (string, time.Time, error) {
	if t == nil {
		return "", time.Time{}, errors.New("token issuer is not configured")
	}
	expires := t.now().Add(t.TTL).Truncate(time.Second)
	stamp := strconv.FormatInt(expires.Unix(), 36)
	mac, err := t.sign(context, stamp)
	if err != nil {
		return "", time.Time{}, err
	}
	return stamp + "." + base64.RawURLEncoding.EncodeToString(mac), expires, nil
}

// Verify checks that token was issued for context and has not expired.
func (t *TokenIssuer) Verify(token, context string) error {
	if t == nil {
		return errors.New("token issuer is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenMissing
	}

	stamp, encoded, ok := strings.Cut(token, ".")
	if !ok || stamp == "" || encoded == "" {
		return ErrTokenMalformed
	}
	expiry, err := strconv.ParseInt(stamp, 36, 64)
	if err != nil {
		return ErrTokenMalformed
	}
	got, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(got) != blake2b.Size256 {
		return ErrTokenMalformed
	}

	want, err := t.sign(context, stamp)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrTokenMismatch
	}
	if !t.now().Before(time.Unix(expiry, 0)) {
		return ErrTokenExpired
	}
	return nil
}

func (t *TokenIssuer) sign(context, stamp string) ([]byte, error) {
	h, err := blake2b.New256(t.key[:])
	if err != nil {
		return nil, fmt.Errorf("init token mac: %w", err)
	}
	h.Write([]byte(tokenDomain))
	h.Write([]byte(context))
	h.Write([]byte{'|'})
	h.Write([]byte(stamp))
	return h.Sum(nil), nil
}

func (t *TokenIssuer) now() time.Time {
	if t != nil && t.Clock != nil {
		return t.Clock()
	}
	return time.Now().UTC()
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// DefaultSessionCookie names the cookie tokens are bound to.
const DefaultSessionCookie = "aw_sid"

// Sessions reads and starts widget sessions. The session ID is opaque; it
// only scopes anti-forgery tokens.
type Sessions struct {
	Cookie string
}

// ID returns the caller's session ID, or "" when there is none.
func (s Sessions) ID(r *http.Request) string {
	c, err := r.Cookie(s.name())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// Ensure returns the existing session ID or sets a cookie with a new one.
func (s Sessions) Ensure(w http.ResponseWriter, r *http.Request, secure bool) string {
	if id := s.ID(r); id != "" {
		return id
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     s.name(),
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s Sessions) name() string {
	if name := strings.TrimSpace(s.Cookie); name != "" {
		return name
	}
	return DefaultSessionCookie
}

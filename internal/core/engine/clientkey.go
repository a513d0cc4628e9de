package engine

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// UnknownClientKey is used when no address can be determined.
const UnknownClientKey = "0.0.0.0"

// DefaultClientIPHeaders is the lookup order for forwarded client addresses.
var DefaultClientIPHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// ClientKeyResolver derives the rate-limit key for a request.
//
// Forwarded headers are spoofable, so they are consulted only when the
// direct peer is a trusted proxy (or TrustAll is set).
type ClientKeyResolver struct {
	TrustedProxies []netip.Prefix
	Headers        []string
	TrustAll       bool
}

// NewClientKeyResolver parses trusted proxy entries. Each entry is a CIDR
// prefix or a bare address.
func NewClientKeyResolver(trusted []string, headers []string, trustAll bool) (*ClientKeyResolver, error) {
	prefixes := make([]netip.Prefix, 0, len(trusted))
	for _, entry := range trusted {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, err := parsePrefix(entry)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, prefix)
	}

	cleaned := make([]string, 0, len(headers))
	for _, h := range headers {
		if h = strings.TrimSpace(h); h != "" {
			cleaned = append(cleaned, h)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, DefaultClientIPHeaders...)
	}

	return &ClientKeyResolver{TrustedProxies: prefixes, Headers: cleaned, TrustAll: trustAll}, nil
}

// Resolve returns the client key for r.
func (c *ClientKeyResolver) Resolve(r *http.Request) string {
	if r == nil {
		return UnknownClientKey
	}

	if c.TrustsPeer(r.RemoteAddr) {
		for _, header := range c.headers() {
			value := r.Header.Get(header)
			if strings.TrimSpace(value) == "" {
				continue
			}
			first, _, _ := strings.Cut(value, ",")
			if first = strings.TrimSpace(first); first != "" {
				return canonicalAddr(first)
			}
		}
	}

	if addr, ok := peerAddr(r.RemoteAddr); ok {
		return addr.String()
	}
	return UnknownClientKey
}

// IsSecure reports direct TLS, or https as forwarded by a trusted proxy.
func (c *ClientKeyResolver) IsSecure(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if !c.TrustsPeer(r.RemoteAddr) {
		return false
	}
	proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}

// TrustsPeer reports whether forwarded headers from remoteAddr are honored.
func (c *ClientKeyResolver) TrustsPeer(remoteAddr string) bool {
	if c == nil {
		return false
	}
	if c.TrustAll {
		return true
	}
	if len(c.TrustedProxies) == 0 {
		return false
	}
	addr, ok := peerAddr(remoteAddr)
	if !ok {
		return false
	}
	for _, prefix := range c.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (c *ClientKeyResolver) headers() []string {
	if c == nil || len(c.Headers) == 0 {
		return DefaultClientIPHeaders
	}
	return c.Headers
}

func parsePrefix(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		// Peers are compared unmapped, so 4-in-6 prefixes are too.
		if prefix.Addr().Is4In6() {
			if prefix.Bits() < 96 {
				return netip.Prefix{}, fmt.Errorf("invalid trusted proxy %q: IPv4-mapped prefix shorter than /96", entry)
			}
			prefix = netip.PrefixFrom(prefix.Addr().Unmap(), prefix.Bits()-96)
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func peerAddr(remoteAddr string) (netip.Addr, bool) {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return netip.Addr{}, false
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// canonicalAddr normalizes a forwarded value when it is an address and
// keeps it verbatim otherwise.
func canonicalAddr(value string) string {
	if addr, ok := peerAddr(value); ok {
		return addr.String()
	}
	return value
}

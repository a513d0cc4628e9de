// Package upstream forwards validated horoscope requests to the astrology
// API and relays what comes back.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/astrowidget/astroproxy/internal/core"
)

const (
	DefaultBaseURL = "https://api.bloom.be"
	DefaultPath    = "/astro/1.0/horoscope"
	DefaultTimeout = 20 * time.Second

	// MaxResponseBytes caps how much of an upstream body is relayed.
	MaxResponseBytes = 4 << 20
)

// ErrMissingToken means no bearer credential is configured.
var ErrMissingToken = errors.New("missing upstream access token")

// TransportError wraps a failure to reach the upstream at all. Its message
// is the transport error text.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Response is what the caller receives: the upstream status and a JSON body.
type Response struct {
	Status int
	Body   json.RawMessage
	// Wrapped is true when a non-JSON body was wrapped as {"raw": text}.
	Wrapped  bool
	Duration time.Duration
}

// Client posts horoscope requests with the server-held credential.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	Path       string
	Token      string
	Version    string
	// SiteURL is appended to the User-Agent when set.
	SiteURL string
	Timeout time.Duration
	Clock   func() time.Time
}

// HasCredential reports whether a bearer credential is configured.
func (c *Client) HasCredential() bool {
	return c != nil && strings.TrimSpace(c.Token) != ""
}

// Send posts req and relays the response. It never retries.
//
// Transport failures return a *TransportError. Any HTTP response, whatever
// its status, is returned as a Response.
func (c *Client) Send(ctx context.Context, req core.NormalizedRequest) (*Response, error) {
	if !c.HasCredential() {
		return nil, ErrMissingToken
	}
	if ctx == nil {
		ctx = context.Background()
	}

	body, err := json.Marshal(BuildPayload(req))
	if err != nil {
		return nil, fmt.Errorf("encode upstream payload: %w", err)
	}

	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.Token))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent())

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.timeout()}
	}

	started := c.now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	out := &Response{Status: status, Duration: c.now().Sub(started)}
	if isJSON(resp.Header.Get("Content-Type")) && json.Valid(raw) {
		out.Body = json.RawMessage(raw)
		return out, nil
	}

	wrapped, err := json.Marshal(map[string]string{"raw": string(raw)})
	if err != nil {
		return nil, fmt.Errorf("wrap upstream body: %w", err)
	}
	out.Body = wrapped
	out.Wrapped = true
	return out, nil
}

// Endpoint returns the full upstream URL.
func (c *Client) Endpoint() string {
	endpoint, err := c.endpoint()
	if err != nil {
		return ""
	}
	return endpoint
}

func (c *Client) endpoint() (string, error) {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid upstream base url %q", base)
	}

	path := c.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + path
	return parsed.String(), nil
}

func (c *Client) userAgent() string {
	version := c.Version
	if version == "" {
		version = "dev"
	}
	ua := "AstroWidget/" + version
	if c.SiteURL != "" {
		ua += " (+" + c.SiteURL + ")"
	}
	return ua
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Client) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

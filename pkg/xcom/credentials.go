package xcom

import (
	"net/http"
	"strings"

	"xrelay/pkg/errors"
)

// CredentialBundle is the session material a caller captures from their own
// browser. It is built per incoming request, applied to exactly one upstream
// call, and discarded. It must never be logged or written to disk.
type CredentialBundle struct {
	BearerToken string
	CSRFToken   string
	Cookies     map[string]string
	// UserAgent is the calling browser's User-Agent, forced onto the
	// upstream request so the session fingerprint stays consistent.
	UserAgent string
	// ExtraHeaders are forwarded verbatim, except Origin and Referer which
	// would expose the relay to the upstream.
	ExtraHeaders map[string]string
}

// Validate checks the bundle is structurally usable before any upstream
// call is made.
func (c CredentialBundle) Validate() error {
	if strings.TrimSpace(c.BearerToken) == "" {
		return errors.New(errors.KindInvalidCredentials, 0, "bearer token is missing")
	}
	if strings.TrimSpace(c.CSRFToken) == "" {
		return errors.New(errors.KindInvalidCredentials, 0, "csrf token is missing")
	}
	return nil
}

// applyTo stamps the bundle onto an outgoing upstream request. Extra
// headers go first so the authoritative values always win.
func (c CredentialBundle) applyTo(req *http.Request) {
	for key, value := range c.ExtraHeaders {
		if strings.EqualFold(key, "Origin") || strings.EqualFold(key, "Referer") {
			continue
		}
		req.Header.Set(key, value)
	}

	req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	req.Header.Set("X-Csrf-Token", c.CSRFToken)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for name, value := range c.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

// ParseCookieHeader splits a raw Cookie header into name/value pairs.
// Malformed fragments without an equals sign are dropped.
func ParseCookieHeader(header string) map[string]string {
	cookies := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		cookies[name] = value
	}
	return cookies
}

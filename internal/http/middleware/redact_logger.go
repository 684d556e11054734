// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger used in production.
// SMS webhooks carry phone numbers and provider credentials, so nothing is
// logged verbatim: query strings and header values go through a Redactor, and
// provider signature headers are masked entirely. Bodies are never logged.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Headers masked by default in addition to RedactOptions.MaskHeaders.
var defaultMaskedHeaders = []string{
	"Authorization",
	"Cookie",
	"Set-Cookie",
	"X-Twilio-Signature",
	HeaderTwilioIdempotency,
}

// RedactOptions configures additional scrub behavior for RedactingLogger.
// MaskHeaders lists extra header names (case-insensitive) whose values are
// replaced with "[REDACTED]".
type RedactOptions struct {
	MaskHeaders []string
}

// Redactor scrubs identifiers from free text.
type Redactor struct {
	uuidRE  *regexp.Regexp
	emailRE *regexp.Regexp
	phoneRE *regexp.Regexp
	sidRE   *regexp.Regexp
}

// NewRedactor compiles the scrub patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		uuidRE:  regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`),
		emailRE: regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`),
		// Digits-only so hex runs inside ids do not match.
		phoneRE: regexp.MustCompile(`\+?\b(?:\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`),
		// Provider account and message ids (AC…, SM…, MM…).
		sidRE: regexp.MustCompile(`\b(?:AC|SM|MM)[0-9a-fA-F]{32}\b`),
	}
}

// Redact replaces ids, emails, and phone numbers in s. UUIDs and provider
// ids go first so the loose phone pattern cannot eat their digit runs.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	s = r.uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = r.sidRE.ReplaceAllString(s, "[REDACTED:sid]")
	s = r.emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return r.phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// MaskPhone keeps the last two digits of a phone number, for log lines that
// need to tell senders apart without exposing them.
func MaskPhone(p string) string {
	p = strings.TrimSpace(p)
	if len(p) <= 2 {
		return strings.Repeat("*", len(p))
	}
	return strings.Repeat("*", len(p)-2) + p[len(p)-2:]
}

// RedactingLogger returns a Gin middleware that logs requests with sensitive
// values scrubbed and stores a request-scoped logger for LoggerFrom.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	red := NewRedactor()

	mask := make(map[string]struct{}, len(defaultMaskedHeaders)+len(opts.MaskHeaders))
	for _, h := range append(append([]string(nil), defaultMaskedHeaders...), opts.MaskHeaders...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			mask[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := mask[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = red.Redact(strings.Join(vv, ", "))
		}

		l := scopedLogger(c)
		c.Set(loggerKey, &l)

		c.Next()

		levelFor(&l, c).
			Str("query", red.Redact(truncate(unescapeQuery(c.Request.URL.RawQuery), maxQueryLogLength))).
			Int("status", c.Writer.Status()).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}

// unescapeQuery decodes the raw query so that escaped values ("%2B1555…")
// are visible to the scrub patterns.
func unescapeQuery(q string) string {
	if u, err := url.QueryUnescape(q); err == nil {
		return u
	}
	return q
}

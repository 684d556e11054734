// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements replay detection for webhook deliveries. SMS providers
// retry a webhook when they do not get a timely 2xx, resending the same
// message id. The validator extracts that id, asks a lookup whether it was
// already processed, and annotates the request so that:
//   - handlers can acknowledge the replay without processing it (IsReplay)
//   - the rate limiter lets the retry through (rate bypass flag)
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the generic idempotency header for API clients.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderTwilioIdempotency is the provider's per-delivery idempotency header.
const HeaderTwilioIdempotency = "I-Twilio-Idempotency-Token"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated key stored by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the request repeats an already processed one.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// KeySource extracts the idempotency key of a request; "" means none.
type KeySource func(*gin.Context) string

// KeyFromHeader reads the key from header name.
func KeyFromHeader(name string) KeySource {
	return func(c *gin.Context) string { return strings.TrimSpace(c.GetHeader(name)) }
}

// KeyFromForm reads the key from a form field (e.g. "MessageSid").
func KeyFromForm(field string) KeySource {
	return func(c *gin.Context) string { return strings.TrimSpace(c.PostForm(field)) }
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// Channel scopes the lookup (e.g. "sms").
	Channel string
	// Key extracts the key. Defaults to the Idempotency-Key header.
	Key KeySource
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Now returns the lookup time. Defaults to time.Now.
	Now func() time.Time
}

// IdempotencyLookup answers whether (channel, key) was already processed and
// is still remembered at now. Errors never block processing.
type IdempotencyLookup func(ctx context.Context, channel, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the key (when present), stashes it, and
// marks replays. An invalid key is rejected with 400; a missing key is a
// no-op.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	keyOf := opts.Key
	if keyOf == nil {
		keyOf = KeyFromHeader(HeaderIdempotencyKey)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		key := keyOf(c)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid idempotency key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			if exists, _ := lookup(c.Request.Context(), opts.Channel, key, now().UTC()); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

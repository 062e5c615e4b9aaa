// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for unsafe HTTP methods (e.g.,
// POST). It validates an Idempotency-Key request header, consults a
// user-supplied lookup (Redis-backed in this application) to detect
// previously completed requests, and annotates the request context so
// downstream handlers can:
//   - read the normalized key (GetIdempotencyKey)
//   - detect replayed requests (IsReplay)
//   - bypass rate limiting when a replay is served (flag checked by the
//     rate limiter)
//
// Validation failures are raised as BadRequest taxonomy failures; the error
// renderer writes the body. Lookup failures never block a request — the
// middleware fails open and treats the request as fresh.
package middleware

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/mvasilakos/go-api-starter/internal/apperr"
)

// HeaderIdempotencyKey is the canonical request header that clients use to
// convey an idempotency key for unsafe operations (e.g., POST).
//
// The value is expected to be stable for a given semantic operation so that
// retries (network, client, or server initiated) can be safely deduplicated.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys used internally to stash idempotency state.
// These keys are intentionally unexported and referenced via accessor helpers.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: true when a stored replay exists
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by Idempotency. The second return value indicates presence.
//
// Handlers should prefer this function over reading the header directly.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the middleware detected that this request would
// replay a previously completed operation (based on the provided key).
//
// When true, upstream components (e.g., handlers, rate limiters) may choose
// to short-circuit computation and return the previously persisted result.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation behavior for Idempotency.
// TTL enforcement is out of scope here and belongs to the store behind the
// lookup function.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, a conservative
	// RFC7230-like token pattern is used: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// IdempotencyLookup answers whether key has been seen within its retention
// window. Implementations typically consult Redis (see cache.IdempotencyStore).
//
// Return an error only for lookup failures; they are logged and the request
// proceeds as fresh.
type IdempotencyLookup func(ctx context.Context, key string) (seen bool, err error)

// IdempotencyMark records key so later requests carrying it are detected as
// replays. Called best-effort after a fresh request completes successfully.
type IdempotencyMark func(ctx context.Context, key string) error

// Idempotency validates the Idempotency-Key header (if present), stashes it
// in the request context, and checks for a prior completed request via the
// supplied lookup. When a replay is detected, it marks the context so
// downstream components can detect it and skip rate limiting.
//
// Behavior:
//   - If the header is absent: the middleware is a no-op.
//   - If the header fails validation: raises a BadRequest taxonomy failure
//     and aborts (the error renderer writes the 400 body).
//   - If the lookup reports a replay: sets replay + rate-bypass flags.
//   - After a fresh request completes with a success status, the key is
//     recorded via mark (best-effort; failures are logged).
//
// This middleware does not itself return a cached payload; handlers remain in
// control of how to serve replays.
func Idempotency(opts IdempotencyOptions, lookup IdempotencyLookup, mark IdempotencyMark) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		// RFC-7230-ish token + common safe chars.
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			// Nothing to validate or stash; proceed.
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			_ = c.Error(apperr.BadRequest("Invalid Idempotency-Key header"))
			c.Abort()
			return
		}

		// Stash the normalized key for downstream use.
		c.Set(ctxKeyIdemKey, key)

		replay := false
		if lookup != nil {
			seen, err := lookup(c.Request.Context(), key)
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed; treating request as fresh")
			} else if seen {
				replay = true
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true) // let the rate limiter skip this one
			}
		}

		c.Next()

		// Remember fresh keys once the request succeeded so retries replay.
		if mark != nil && !replay && c.Writer.Status() < 400 {
			if err := mark(c.Request.Context(), key); err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency mark failed")
			}
		}
	}
}

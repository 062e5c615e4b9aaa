// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides structured request logging, a panic-safe recovery
// handler, and a request ID injector:
//
//   - RequestID() ensures every request carries a stable correlation ID
//     (propagated via X-Request-ID and stored in the Gin context).
//   - RequestLogger() emits structured access logs with request/response
//     metadata (latency, status, sizes), masks sensitive header values,
//     attaches a request-scoped zerolog.Logger, and selects log level by
//     outcome (info/warn/error).
//   - Recovery() converts panics into Generic taxonomy failures so the error
//     renderer produces the JSON 500 — it never writes a body itself.
//   - LoggerFrom() retrieves the request-scoped logger for handlers and
//     services.
//
// Recommended order: RequestID → RequestLogger → ErrorRenderer → Recovery,
// so panics and errors are logged with the correlation ID and rendered once.
package middleware

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mvasilakos/go-api-starter/internal/apperr"
)

const (
	// loggerKey is the Gin context key under which the request-scoped logger
	// is stored.
	loggerKey = "logger"
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// builtinMaskedHeaders are always masked in access logs, regardless of the
// configured extras.
var builtinMaskedHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

// RequestID attaches (or propagates) a correlation identifier per request.
//
// If the incoming request has X-Request-ID, that value is reused; otherwise a
// new UUIDv4 is generated. The ID is written back to the response header and
// stored in the Gin context. Place this first so every downstream log and
// error response can carry the ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// LoggerOptions configures the access logger.
//
// MaskHeaders lists additional header names whose values are replaced with
// "[REDACTED]" in logs. Matching is case-insensitive and merged with the
// built-in sensitive headers (Authorization, Cookie, Set-Cookie).
type LoggerOptions struct {
	MaskHeaders []string
}

// RequestLogger writes a structured access log for each request and attaches
// a request-scoped zerolog.Logger to the Gin context.
//
// Level selection by outcome: error for 5xx (or when the context collected
// errors), warn for 4xx, info otherwise. Bodies are never logged; masked
// header values are replaced before emission.
func RequestLogger(opts LoggerOptions) gin.HandlerFunc {
	masked := make(map[string]struct{}, len(builtinMaskedHeaders)+len(opts.MaskHeaders))
	for _, h := range builtinMaskedHeaders {
		masked[strings.ToLower(h)] = struct{}{}
	}
	for _, h := range opts.MaskHeaders {
		masked[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			// Fallback when route not matched / 404.
			path = c.Request.URL.Path
		}

		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			// ContentLength can be -1 if unknown.
			Int64("bytes_in", c.Request.ContentLength).
			Logger()

		// Make it available to handlers, services, and the error renderer.
		c.Set(loggerKey, &l)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		bytesOut := c.Writer.Size()

		ev := l.With().
			Int("status", status).
			Dur("latency", latency).
			Int("bytes_out", bytesOut).
			Dict("headers", maskedHeaderDict(c, masked)).
			Logger()

		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// maskedHeaderDict renders request headers with sensitive values replaced.
func maskedHeaderDict(c *gin.Context, masked map[string]struct{}) *zerolog.Event {
	d := zerolog.Dict()
	for name, vals := range c.Request.Header {
		if _, ok := masked[strings.ToLower(name)]; ok {
			d = d.Str(name, "[REDACTED]")
			continue
		}
		d = d.Str(name, strings.Join(vals, ", "))
	}
	return d
}

// Recovery intercepts panics, logs the stack trace, and converts the panic
// into a Generic taxonomy failure for the error renderer. It writes no
// response itself; mount it after (inside) ErrorRenderer.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				LoggerFrom(c).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", asString(rid)).
					Msg("panic recovered")

				cause, ok := rec.(error)
				if !ok {
					cause = fmt.Errorf("%v", rec)
				}
				_ = c.Error(apperr.Generic("").WithCause(cause).WithDetail("panic recovered"))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger.
//
// If a logger was not previously attached by RequestLogger(), a fallback
// logger is returned (without request-scoped fields), so callers never need
// nil checks.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// asString converts an arbitrary interface to a string, returning an empty
// string when the value is not a string. Used for context values.
func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate returns s unchanged when within max length, otherwise it truncates
// s to max bytes and appends an ellipsis. A max <= 0 disables truncation.
//
// Note: this operates on bytes (not runes) which is acceptable for logging.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

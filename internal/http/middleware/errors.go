// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the terminal error renderer: the single place where
// every failure raised during request handling becomes an HTTP JSON response.
// Handlers and upstream middleware never write error bodies themselves; they
// attach the failure with c.Error(...) and return, and the renderer — mounted
// early so its post-Next phase runs after the rest of the chain — classifies
// the failure and writes exactly one response.
//
// Classification runs in strict priority order:
//  1. Taxonomy failures (*apperr.Error): fixed status, message verbatim.
//  2. Structural adapters for known collaborator shapes, in order:
//     validation (gin binding / go-playground errors), cast (malformed
//     ObjectIDs from the document store), uniqueness (duplicate-key write
//     errors). Validation is checked first; a failure matching several
//     shapes is classified by the first match.
//  3. Fallback: 500 with the failure's own message.
//
// Diagnostics (error chains, stack traces) are logged unconditionally on
// every branch but are only exposed in response bodies in development mode.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/mvasilakos/go-api-starter/internal/apperr"
	"github.com/mvasilakos/go-api-starter/internal/config"
	"github.com/mvasilakos/go-api-starter/internal/storage/mongodb"
)

// fallbackMessage is used when an unclassified failure carries no message.
const fallbackMessage = "Something went wrong, try again later"

// RenderOptions configures the error renderer. The runtime mode is an
// explicit value here (not read from ambient state) so tests can exercise
// both development and production behavior in-process.
type RenderOptions struct {
	// Env gates stack-trace exposure: only development responses carry a
	// stackTrace field.
	Env config.Env
	// BasePath is the API prefix (e.g. "/api") stripped from the path echoed
	// in taxonomy responses. Unclassified responses echo the raw path.
	BasePath string
}

// taxonomyResponse is the wire shape for failures constructed via the
// apperr taxonomy.
type taxonomyResponse struct {
	Success       bool   `json:"success"`
	Error         bool   `json:"error"`
	Message       string `json:"message"`
	OriginalError string `json:"originalError"`
	StatusCode    int    `json:"statusCode"`
	Timestamp     string `json:"timestamp"`
	Path          string `json:"path"`
}

// unclassifiedResponse is the wire shape for collaborator and unknown
// failures. StackTrace is populated only in development mode.
type unclassifiedResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
	StackTrace string `json:"stackTrace,omitempty"`
}

// NotFoundHandler raises a NotFound taxonomy failure for unmatched routes.
// It never writes a response itself; mount it via r.NoRoute and let the
// renderer produce the body.
func NotFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		msg := fmt.Sprintf("Cannot %s %s", c.Request.Method, c.Request.URL.Path)
		_ = c.Error(apperr.NotFound(msg))
	}
}

// ErrorRenderer returns the terminal error-rendering middleware. Mount it
// before the recovery middleware and the routes so that its post-Next phase
// observes every failure collected downstream.
//
// Rendering is one-shot: if a response has already been written (handler
// streamed output, client disconnected mid-write), the failure is logged and
// no second response is attempted.
func ErrorRenderer(opt RenderOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// Diagnostics first, on every branch, regardless of mode.
		logFailure(c, err)

		if c.Writer.Written() {
			LoggerFrom(c).Warn().Msg("response already written; error rendering skipped")
			return
		}

		var ae *apperr.Error
		if errors.As(err, &ae) {
			renderTaxonomy(c, ae, opt)
			return
		}
		renderUnclassified(c, err, opt)
	}
}

// renderTaxonomy writes the response for a classified failure. The status and
// message come verbatim from the taxonomy; the cause is summarized in
// originalError but never expanded.
func renderTaxonomy(c *gin.Context, ae *apperr.Error, opt RenderOptions) {
	orig := "Error"
	if cause := ae.Cause(); cause != nil {
		orig = cause.Error()
	}
	c.JSON(ae.Status(), taxonomyResponse{
		Success:       false,
		Error:         true,
		Message:       ae.Message(),
		OriginalError: orig,
		StatusCode:    ae.Status(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Path:          stripBasePath(c.Request.URL.Path, opt.BasePath),
	})
}

// renderUnclassified classifies a collaborator or unknown failure via the
// structural adapters and writes the response. The raw request path is echoed
// without prefix stripping.
func renderUnclassified(c *gin.Context, err error, opt RenderOptions) {
	status := http.StatusInternalServerError
	var msg string

	if m, ok := tryAsValidationFailure(err); ok {
		// Validation-shaped collaborator failures keep 500; only explicit
		// BadRequest taxonomy failures get 400.
		msg = m
	} else if m, ok := tryAsCastFailure(err); ok {
		status = http.StatusBadRequest
		msg = m
	} else if m, ok := tryAsUniquenessFailure(err); ok {
		status = http.StatusBadRequest
		msg = m
	} else {
		msg = err.Error()
		if msg == "" {
			msg = fallbackMessage
		}
	}

	resp := unclassifiedResponse{
		Success:    false,
		Message:    msg,
		StatusCode: status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Path:       c.Request.URL.Path,
	}
	if opt.Env.IsDevelopment() {
		resp.StackTrace = fmt.Sprintf("%+v\n%s", err, debug.Stack())
	}
	c.JSON(status, resp)
}

// tryAsValidationFailure recognizes the named-field validation shape produced
// by gin's binding layer (go-playground/validator). All per-field messages
// are collapsed into one comma-joined string.
func tryAsValidationFailure(err error) (string, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "", false
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Error())
	}
	return strings.Join(msgs, ", "), true
}

// tryAsCastFailure recognizes a type-mismatch on a document field path
// (typically a malformed hex ObjectID in a URL parameter).
func tryAsCastFailure(err error) (string, bool) {
	var ce *mongodb.CastError
	if !errors.As(err, &ce) {
		return "", false
	}
	return ce.Error(), true
}

// tryAsUniquenessFailure recognizes a unique-index violation from the
// document store and names the offending fields.
func tryAsUniquenessFailure(err error) (string, bool) {
	if !mongodb.IsDuplicateKey(err) {
		return "", false
	}
	fields := mongodb.DuplicateKeyFields(err)
	if len(fields) == 0 {
		return "Duplicate value entered, the field must be unique", true
	}
	return fmt.Sprintf("Duplicate value for %s: the field must be unique", strings.Join(fields, ", ")), true
}

// logFailure emits the operator-facing diagnostic record for a failure:
// classification, internal detail, cause chain, and a stack trace. Client
// responses never carry this detail outside development mode.
func logFailure(c *gin.Context, err error) {
	ev := LoggerFrom(c).Error().
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Err(err).
		Bytes("stack", debug.Stack())

	var ae *apperr.Error
	if errors.As(err, &ae) {
		ev = ev.Str("kind", ae.Kind().String()).Int("status", ae.Status())
		if d := ae.Detail(); d != "" {
			ev = ev.Str("detail", d)
		}
		if cause := ae.Cause(); cause != nil {
			ev = ev.AnErr("cause", cause)
		}
	}
	ev.Msg("request failed")
}

// stripBasePath removes the API prefix from a request path, normalizing an
// exact-prefix match to "/".
func stripBasePath(path, base string) string {
	if base == "" || base == "/" || !strings.HasPrefix(path, base) {
		return path
	}
	out := strings.TrimPrefix(path, base)
	if out == "" {
		return "/"
	}
	return out
}

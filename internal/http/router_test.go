package httpapi

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mvasilakos/go-api-starter/internal/config"
)

// testConfig returns a config suitable for in-process routing tests: generous
// rate limits and no external collaborators.
func testConfig() config.Config {
	return config.Config{
		Env:         config.EnvProduction,
		APIBasePath: "/api",
		RateRPS:     1000,
		RateBurst:   1000,
		Security:    config.SecurityConfig{EnableHSTS: false},
		OTEL:        config.OTELConfig{ServiceName: "go-api-starter-test"},
	}
}

// newTestEngine wires the full middleware chain with nil collaborators. Only
// routes that fail before touching the database are exercised.
func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, Deps{}, testConfig())
	return r
}

func TestRouter_Health(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("prometheus exposition missing")
	}
}

func TestRouter_UnmatchedRouteRendersTaxonomy404(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v (body=%q)", err, w.Body.String())
	}
	if body["error"] != true || !strings.Contains(body["message"].(string), "/api/nope") {
		t.Fatalf("body: %+v", body)
	}
	// Taxonomy responses strip the configured API prefix.
	if body["path"] != "/nope" {
		t.Fatalf("path=%v", body["path"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("X-Request-ID missing")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}
}

func TestRouter_ErrorBodiesPassThroughGzip(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding=%q; renderer must write through the gzip writer", w.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if int(body["statusCode"].(float64)) != http.StatusNotFound {
		t.Fatalf("body: %+v", body)
	}
}

func TestRouter_MalformedIDFailsBeforeStorage(t *testing.T) {
	// The cast failure surfaces while parsing the ID, so no database handle
	// is needed.
	r := newTestEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/widgets/999", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Invalid _id: 999") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestRouter_BindingFailureRendersValidationShape(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/widgets", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Name") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestRouter_InvalidIdempotencyKeyRejected(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Idempotency-Key", "bad key with spaces")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestRouter_RateLimitRejectionIs429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.RateRPS = 0.0001
	cfg.RateBurst = 1
	r := gin.New()
	RegisterRoutes(r, Deps{}, cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: status=%d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestRouter_CORSAllowAllByDefault(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/widgets", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status=%d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("ACAO=%q", got)
	}
	if ma := w.Header().Get("Access-Control-Max-Age"); ma != "43200" {
		t.Fatalf("max-age=%q want %v", ma, int((12 * time.Hour).Seconds()))
	}
}

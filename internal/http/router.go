// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, unified error rendering, panic
// recovery, metrics, compression, CORS, security headers, idempotency, and
// rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - One place renders every failure: nothing downstream writes error bodies
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/mvasilakos/go-api-starter/internal/cache"
	"github.com/mvasilakos/go-api-starter/internal/config"
	"github.com/mvasilakos/go-api-starter/internal/http/handlers"
	"github.com/mvasilakos/go-api-starter/internal/http/middleware"
	"github.com/mvasilakos/go-api-starter/internal/services"
)

// Deps carries the infrastructure dependencies the router wires into services
// and middleware. All fields are required except Idem, which disables
// replay detection when nil.
type Deps struct {
	// DB is the connected document database handle.
	DB *mongo.Database
	// Jobs is the background job producer used by the widget service.
	Jobs services.JobQueue
	// Idem is the Redis-backed store consulted for idempotency replays.
	Idem *cache.IdempotencyStore
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), the error renderer,
// idempotency and rate limiting, CORS and security headers, health and
// metrics endpoints, and then mounts the public API under cfg.APIBasePath.
//
// Middleware order matters; the chain wraps outside-in:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RequestLogger: structured access logs (sees the final status)
//  4. Metrics: request counters observe the rendered status
//  5. gzip: compresses whatever is written downstream, error bodies included
//  6. ErrorRenderer: every failure collected below renders exactly once
//  7. Recovery: panics become taxonomy failures for the renderer above
//  8. Body size limiter
//  9. Idempotency (before the rate limiter so replays can bypass it)
//  10. Rate limiter (per user/IP; rejections flow through the renderer)
//  11. CORS and security headers
//
// Unmatched routes raise a NotFound taxonomy failure via r.NoRoute; unmatched
// methods on known paths fall through to the same 404 since the taxonomy has
// no method-not-allowed kind.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging with header masking
	r.Use(middleware.RequestLogger(middleware.LoggerOptions{
		MaskHeaders: []string{
			"X-API-Key", // project-specific sensitive header example
		},
	}))

	// 4) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 5) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 6) Unified error rendering (must wrap recovery and the routes)
	r.Use(middleware.ErrorRenderer(middleware.RenderOptions{
		Env:      cfg.Env,
		BasePath: cfg.APIBasePath,
	}))

	// 7) Panic recovery to a Generic taxonomy failure
	r.Use(middleware.Recovery())

	// 8) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 9) Idempotency validation (before rate limiting)
	var (
		lookup middleware.IdempotencyLookup
		mark   middleware.IdempotencyMark
	)
	if deps.Idem != nil {
		lookup = deps.Idem.Seen
		mark = deps.Idem.Mark
	}
	r.Use(middleware.Idempotency(middleware.IdempotencyOptions{MaxLen: 200}, lookup, mark))

	// 10) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 11) CORS posture (safe defaults: allow all if none configured)
	r.Use(corsMiddleware(cfg.CORS))

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Unmatched routes raise a 404 taxonomy failure; the renderer writes it.
	r.NoRoute(middleware.NotFoundHandler())

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: handlers ← services ← db/queue
	svc := &services.WidgetService{DB: deps.DB, Jobs: deps.Jobs}
	h := handlers.New(svc)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/widgets", h.CreateWidget)
		api.GET("/widgets", h.ListWidgets)
		api.GET("/widgets/:id", h.GetWidget)
		api.PUT("/widgets/:id", h.UpdateWidget)
		api.DELETE("/widgets/:id", h.DeleteWidget)
		api.POST("/widgets/:id/publish", h.PublishWidget)
	}
}

// corsMiddleware builds the CORS layer: allow-all when no origins are
// configured, strict allowlist otherwise.
func corsMiddleware(cc config.CORSConfig) gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false, // must remain false with AllowAllOrigins
		MaxAge:           12 * time.Hour,
	}
	if len(cc.AllowedOrigins) == 0 {
		base.AllowAllOrigins = true
	} else {
		base.AllowOrigins = cc.AllowedOrigins
	}
	return cors.New(base)
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// Command server runs the HTTP API: it loads configuration, connects the
// document database and Redis, starts the background queue worker, wires the
// Gin router, and serves until interrupted.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mvasilakos/go-api-starter/internal/cache"
	"github.com/mvasilakos/go-api-starter/internal/config"
	"github.com/mvasilakos/go-api-starter/internal/domain"
	httpapi "github.com/mvasilakos/go-api-starter/internal/http"
	"github.com/mvasilakos/go-api-starter/internal/observability"
	"github.com/mvasilakos/go-api-starter/internal/queue"
	"github.com/mvasilakos/go-api-starter/internal/services"
	"github.com/mvasilakos/go-api-starter/internal/storage/mongodb"
	"github.com/mvasilakos/go-api-starter/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.InitLogger(cfg.LogLevel, cfg.LogPretty)

	log.Info().
		Str("version", version).
		Str("env", string(cfg.Env)).
		Str("port", cfg.Port).
		Msg("starting go-api-starter")

	ctx := context.Background()

	// Tracing
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	// Document database
	db, closeDB, err := mongodb.Connect(ctx, cfg.Mongo)
	if err != nil {
		log.Fatal().Err(err).Msg("mongodb connect failed")
	}

	// Redis: idempotency store + job queue share one client
	rdb, err := cache.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}

	jobs := queue.New(rdb, cfg.Redis.QueueName, cfg.Redis.EnqueueTimeout)
	svc := &services.WidgetService{DB: db, Jobs: jobs}

	worker := queue.NewWorker(rdb, cfg.Redis.QueueName, log.With().Str("component", "worker").Logger())
	worker.Handle(domain.JobTypePublishWidget, svc.PublishHandler())

	workerCtx, stopWorker := context.WithCancel(ctx)
	go worker.Run(workerCtx)

	// HTTP transport
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:   db,
		Jobs: jobs,
		Idem: cache.NewIdempotencyStore(rdb, cfg.IdempotencyTTL),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Block until interrupted, then drain in order: HTTP first, then the
	// worker, then infrastructure connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown forced")
	}

	stopWorker()

	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("redis close failed")
	}
	if err := closeDB(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("mongodb disconnect failed")
	}

	log.Info().Msg("stopped")
}

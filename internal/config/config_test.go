package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Runtime mode / logging
	t.Setenv("APP_ENV", "dev")       // will normalize to "development"
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "api/") // no leading slash + trailing slash -> "/api"

	// Document database
	t.Setenv("MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("MONGO_DB", "starter_test")
	t.Setenv("MONGO_CONNECT_TIMEOUT", "7s")

	// Cache / queue
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("QUEUE_NAME", "jobs")
	t.Setenv("ENQUEUE_TIMEOUT", "500ms")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// Idempotency
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Runtime mode / logging
	if cfg.Env != EnvDevelopment || !cfg.Env.IsDevelopment() {
		t.Fatalf("env unexpected: %q", cfg.Env)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/api" {
		t.Fatalf("logging unexpected: %+v", cfg)
	}

	// Mongo
	if cfg.Mongo.URI != "mongodb://mongo:27017" || cfg.Mongo.Database != "starter_test" || cfg.Mongo.ConnectTimeout != 7*time.Second {
		t.Fatalf("mongo fields unexpected: %+v", cfg.Mongo)
	}

	// Redis
	if cfg.Redis.URL != "redis://cache:6379/1" || cfg.Redis.QueueName != "jobs" || cfg.Redis.EnqueueTimeout != 500*time.Millisecond {
		t.Fatalf("redis fields unexpected: %+v", cfg.Redis)
	}

	// Rate limiting (parse fallback to defaults)
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}

	// Web protection
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}

	// Idempotency
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_DefaultEnvIsProduction(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Env != EnvProduction || cfg.Env.IsDevelopment() {
		t.Fatalf("default env unexpected: %q", cfg.Env)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		value   string
		wantSub string
	}{
		{"invalid APP_ENV", "APP_ENV", "staging", "APP_ENV"},
		{"invalid LOG_LEVEL", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"empty PORT", "PORT", " ", "PORT"},
		{"non-positive READ_TIMEOUT", "READ_TIMEOUT", "-1s", "timeouts"},
		{"MAX_HEADER_BYTES <= 0", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"empty MONGO_URI", "MONGO_URI", " ", "MONGO_URI"},
		{"empty MONGO_DB", "MONGO_DB", " ", "MONGO_DB"},
		{"non-positive MONGO_CONNECT_TIMEOUT", "MONGO_CONNECT_TIMEOUT", "-1s", "MONGO_CONNECT_TIMEOUT"},
		{"empty REDIS_URL", "REDIS_URL", " ", "REDIS_URL"},
		{"empty QUEUE_NAME", "QUEUE_NAME", " ", "QUEUE_NAME"},
		{"non-positive ENQUEUE_TIMEOUT", "ENQUEUE_TIMEOUT", "-1s", "ENQUEUE_TIMEOUT"},
		{"negative RATE_RPS", "RATE_RPS", "-1", "RATE_RPS"},
		{"RATE_BURST < 1", "RATE_BURST", "0", "RATE_BURST"},
		{"negative HSTS_MAX_AGE", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"non-positive IDEMPOTENCY_TTL", "IDEMPOTENCY_TTL", "-1s", "IDEMPOTENCY_TTL"},
		{"sampler out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

// --- normalizeBasePath ---

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"api":     "/api",
		"/api":    "/api",
		"/api/":   "/api",
		"api/v2/": "/api/v2",
		"  /x  ":  "/x",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q)=%q want %q", in, got, want)
		}
	}
}

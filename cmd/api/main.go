// Package main is the entry point for the feed index API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/feedindex/internal/api"
	"github.com/onnwee/feedindex/internal/config"
	"github.com/onnwee/feedindex/internal/health"
	"github.com/onnwee/feedindex/internal/middleware"
	"github.com/onnwee/feedindex/internal/registry"
	"github.com/onnwee/feedindex/internal/tracing"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Feed Index API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, configErrs := config.Load("")
	for _, err := range configErrs {
		// The structured logger depends on cfg.Env and does not exist yet,
		// so these are written straight to stderr.
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	var tracerProvider *tracing.Provider
	if cfg.TracingEnabled {
		tracingConfig := tracing.Config{
			ServiceName:  "feedindex-api",
			Enabled:      true,
			Environment:  cfg.Env,
			ExporterType: cfg.TracingExporterType,
			OTLPEndpoint: cfg.TracingOTLPEndpoint,
			SamplingRate: cfg.TracingSampleRate,
			InsecureMode: cfg.TracingInsecure,
		}

		var err error
		tracerProvider, err = tracing.NewProvider(tracingConfig)
		if err != nil {
			logger.Error("failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		logger.Info("tracing initialized",
			"exporter", cfg.TracingExporterType,
			"endpoint", cfg.TracingOTLPEndpoint,
			"sample_rate", cfg.TracingSampleRate,
		)
	} else {
		logger.Info("tracing disabled")
	}

	// The registry is the single process-wide instance of the feed index;
	// it is created once here and injected into the HTTP handlers.
	promRegistry := prometheus.NewRegistry()

	registryMetrics := registry.NewMetrics()
	if err := registryMetrics.Register(promRegistry); err != nil {
		logger.Error("failed to register registry metrics", "error", err)
		os.Exit(1)
	}
	logger.Info("registry metrics registered")

	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(promRegistry); err != nil {
		logger.Error("failed to register HTTP metrics", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP metrics registered")

	feedRegistry := registry.New(registryMetrics)

	// Rate limiting: Redis-backed when REDIS_URL is configured, falling
	// back to an in-memory, single-instance store otherwise.
	var rateLimitStore middleware.RateLimitStore
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse Redis URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opt)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}

		rateLimitStore = middleware.NewRedisRateLimitStoreWithMetrics(redisClient, httpMetrics)
		logger.Info("rate limiting initialized with Redis backend")
	} else {
		inMemStore := middleware.NewInMemoryRateLimitStore()
		rateLimitStore = inMemStore

		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				inMemStore.Cleanup()
				logger.Debug("cleaned up expired rate limit buckets")
			}
		}()

		logger.Warn("rate limiting initialized with in-memory backend (not suitable for distributed deployments)")
	}

	feedHandlers := api.NewFeedHandlers(feedRegistry)

	checkers := make(map[string]api.HealthChecker)
	if redisClient != nil {
		checkers["redis"] = health.NewRedisChecker(redisClient)
	}
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		Checkers:       checkers,
		MetricsEnabled: true,
	})

	mux := http.NewServeMux()

	queryLimit := middleware.RateLimitConfig{RequestsPerWindow: 120, WindowDuration: time.Minute}
	mutationLimit := middleware.RateLimitConfig{RequestsPerWindow: 60, WindowDuration: time.Minute}

	mux.Handle("/ping", http.HandlerFunc(feedHandlers.Ping))
	mux.Handle("/clear", middleware.RateLimiter(rateLimitStore, mutationLimit, middleware.IPKeyFunc(), httpMetrics)(
		http.HandlerFunc(feedHandlers.Clear),
	))
	mux.Handle("/update", middleware.RateLimiter(rateLimitStore, mutationLimit, middleware.IPKeyFunc(), httpMetrics)(
		http.HandlerFunc(feedHandlers.Update),
	))
	mux.Handle("/remove", middleware.RateLimiter(rateLimitStore, mutationLimit, middleware.IPKeyFunc(), httpMetrics)(
		http.HandlerFunc(feedHandlers.Remove),
	))
	mux.Handle("/query", middleware.RateLimiter(rateLimitStore, queryLimit, middleware.IPKeyFunc(), httpMetrics)(
		http.HandlerFunc(feedHandlers.Query),
	))
	mux.Handle("/total", middleware.RateLimiter(rateLimitStore, queryLimit, middleware.IPKeyFunc(), httpMetrics)(
		http.HandlerFunc(feedHandlers.Total),
	))

	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "the requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"feedindex-api","version":"0.0.1"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Middleware chain, innermost to outermost:
	// Logging -> RequestID -> HTTPMetrics -> general rate limit -> CORS -> Tracing.
	var handler http.Handler = mux
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.RateLimiter(rateLimitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc(), httpMetrics)(handler)

	if cfg.CORSAllowedOrigins != "" {
		origins := splitAndTrim(cfg.CORSAllowedOrigins)
		methods := splitAndTrim(cfg.CORSAllowedMethods)
		headers := splitAndTrim(cfg.CORSAllowedHeaders)

		handler = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins:   origins,
			AllowedMethods:   methods,
			AllowedHeaders:   headers,
			AllowCredentials: cfg.CORSAllowCredentials,
			MaxAge:           cfg.CORSMaxAge,
		})(handler)

		logger.Info("CORS enabled",
			"origins", origins,
			"methods", methods,
			"headers", headers,
			"allow_credentials", cfg.CORSAllowCredentials,
			"max_age", cfg.CORSMaxAge,
		)
	} else {
		logger.Info("CORS disabled - no origins configured")
	}

	if cfg.TracingEnabled {
		handler = middleware.Tracing("feedindex-api")(handler)
	}

	if cfg.Env == "development" {
		handler = middleware.Profiling(middleware.ProfilingConfig{
			Enabled:     true,
			Environment: cfg.Env,
		})(handler)
		logger.Info("profiling endpoints enabled at /debug/pprof/*")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown tracer provider", "error", err)
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("failed to close Redis client", "error", err)
		} else {
			logger.Info("Redis client closed")
		}
	}

	logger.Info("server stopped")
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// Package main is the entry point for the API server.
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

	"github.com/banter-collective/banter/internal/api"
	"github.com/banter-collective/banter/internal/auth"
	"github.com/banter-collective/banter/internal/config"
	"github.com/banter-collective/banter/internal/content"
	"github.com/banter-collective/banter/internal/db"
	"github.com/banter-collective/banter/internal/feed"
	"github.com/banter-collective/banter/internal/health"
	"github.com/banter-collective/banter/internal/middleware"
	"github.com/banter-collective/banter/internal/tracing"
	"github.com/banter-collective/banter/internal/vote"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	if *help {
		fmt.Println("Banter API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summaryAttrs := make([]any, 0)
	for k, v := range cfg.LogSummary() {
		summaryAttrs = append(summaryAttrs, slog.String(k, v))
	}
	logger.Info("configuration loaded", summaryAttrs...)

	// Distributed tracing (no-op provider when disabled)
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "banter-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
	}()

	// Content store: PostgreSQL when configured, in-memory otherwise.
	var store content.Store
	var dbChecker api.HealthChecker
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		store = content.NewPostgresStore(conn, logger)
		dbChecker = health.NewDBChecker(conn)
		logger.Info("using postgres store")
	} else {
		store = content.NewInMemoryStore()
		logger.Info("using in-memory store")
	}

	// Metrics registry
	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}
	voteMetrics := vote.NewMetrics()
	if err := voteMetrics.Register(registry); err != nil {
		logger.Error("failed to register vote metrics", "error", err)
		os.Exit(1)
	}

	// Rate limiting: Redis-backed when configured so the limit is
	// shared across replicas, in-memory otherwise.
	var rateLimitStore middleware.RateLimitStore
	var redisChecker api.HealthChecker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		rateLimitStore = middleware.NewRedisRateLimitStore(client).
			WithLogger(logger).
			WithMetrics(httpMetrics)
		redisChecker = health.NewRedisChecker(client)
		logger.Info("using redis rate limit store")
	} else {
		rateLimitStore = middleware.NewInMemoryRateLimitStore()
		logger.Info("using in-memory rate limit store")
	}

	readLimit := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimitReadPerMin,
		WindowDuration:    time.Minute,
	}
	voteLimit := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimitVotePerMin,
		WindowDuration:    time.Minute,
	}
	writeLimit := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimitWritePerMin,
		WindowDuration:    time.Minute,
	}

	// Core services
	aggregator := vote.NewAggregator(store, logger, voteMetrics)
	assembler := feed.NewAssembler(store, logger)
	if cfg.FeedHotWindowHours > 0 {
		assembler = assembler.WithHotWindow(time.Duration(cfg.FeedHotWindowHours) * time.Hour)
	}

	// HTTP handlers
	contentHandlers := api.NewContentHandlers(store)
	feedHandlers := api.NewFeedHandlers(assembler)
	voteHandlers := api.NewVoteHandlers(aggregator)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    dbChecker,
		RedisChecker: redisChecker,
	})

	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTSecretPrevious)

	keyFunc := middleware.ViewerKeyFunc()
	limitRead := middleware.RateLimiter(rateLimitStore, readLimit, keyFunc)
	limitVote := middleware.RateLimiter(rateLimitStore, voteLimit, keyFunc)
	limitWrite := middleware.RateLimiter(rateLimitStore, writeLimit, keyFunc)

	mux := http.NewServeMux()

	mux.Handle("/feed", limitRead(method(http.MethodGet, feedHandlers.GetFeed)))

	mux.Handle("/posts", limitWrite(method(http.MethodPost, contentHandlers.CreatePost)))
	mux.Handle("/posts/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/comments") {
			switch r.Method {
			case http.MethodGet:
				limitRead(http.HandlerFunc(feedHandlers.GetComments)).ServeHTTP(w, r)
			case http.MethodPost:
				limitWrite(http.HandlerFunc(contentHandlers.CreateComment)).ServeHTTP(w, r)
			default:
				methodNotAllowed(w, r)
			}
			return
		}
		switch r.Method {
		case http.MethodGet:
			limitRead(http.HandlerFunc(contentHandlers.GetPost)).ServeHTTP(w, r)
		case http.MethodDelete:
			limitWrite(http.HandlerFunc(contentHandlers.DeletePost)).ServeHTTP(w, r)
		default:
			methodNotAllowed(w, r)
		}
	}))

	mux.Handle("/items/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/vote") {
			notFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodPut:
			limitVote(http.HandlerFunc(voteHandlers.CastVote)).ServeHTTP(w, r)
		case http.MethodDelete:
			limitVote(http.HandlerFunc(voteHandlers.RetractVote)).ServeHTTP(w, r)
		default:
			methodNotAllowed(w, r)
		}
	}))

	mux.Handle("/communities", limitWrite(method(http.MethodPost, contentHandlers.CreateCommunity)))

	mux.Handle("/users/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/karma") {
			notFound(w, r)
			return
		}
		limitRead(method(http.MethodGet, contentHandlers.GetKarma)).ServeHTTP(w, r)
	}))

	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			notFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"banter-api","version":"0.0.1"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	corsConfig := middleware.CORSConfig{
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if cfg.Env != "production" {
		corsConfig.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	// Middleware chain, outermost first
	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = auth.Middleware(jwtService)(handler)
	handler = middleware.CORS(corsConfig)(handler)
	handler = middleware.Tracing("banter-api")(handler)
	handler = middleware.RequestID(handler)

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

	// Wait for interrupt signal for graceful shutdown
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

	logger.Info("server stopped")
}

// method wraps a handler func, rejecting all methods but the given one.
func method(allowed string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != allowed {
			methodNotAllowed(w, r)
			return
		}
		h(w, r)
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeValidation)
	api.WriteError(w, ctx, http.StatusMethodNotAllowed, api.ErrCodeValidation, "Method not allowed")
}

func notFound(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
}

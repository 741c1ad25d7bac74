// Package main is the entry point for the vote stream ingester. It
// consumes vote events from the upstream firehose and applies them
// through the vote aggregator, sharing the API server's store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banter-collective/banter/internal/config"
	"github.com/banter-collective/banter/internal/content"
	"github.com/banter-collective/banter/internal/db"
	"github.com/banter-collective/banter/internal/ingest"
	"github.com/banter-collective/banter/internal/middleware"
	"github.com/banter-collective/banter/internal/vote"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	metricsAddr := flag.String("metrics-addr", ":9090", "address for the metrics endpoint")
	flag.Parse()

	if *help {
		fmt.Println("Banter Vote Stream Ingester")
		fmt.Println()
		fmt.Println("Usage: ingester [options]")
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
	if cfg.IngestURL == "" {
		fmt.Fprintln(os.Stderr, "config error: INGEST_URL is required for the ingester")
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	// Content store: the ingester writes through the same store as the API.
	var store content.Store
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		store = content.NewPostgresStore(conn, logger)
	} else {
		// In-memory mode only makes sense for local development.
		store = content.NewInMemoryStore()
		logger.Warn("no DATABASE_URL set, ingesting into in-memory store")
	}

	registry := prometheus.NewRegistry()
	ingestMetrics := ingest.NewMetrics()
	if err := ingestMetrics.Register(registry); err != nil {
		logger.Error("failed to register ingest metrics", "error", err)
		os.Exit(1)
	}
	voteMetrics := vote.NewMetrics()
	if err := voteMetrics.Register(registry); err != nil {
		logger.Error("failed to register vote metrics", "error", err)
		os.Exit(1)
	}

	aggregator := vote.NewAggregator(store, logger, voteMetrics)
	consumer := ingest.NewConsumer(aggregator, logger, ingestMetrics)

	client, err := ingest.NewClient(ingest.DefaultConfig(cfg.IngestURL), consumer.HandleMessage, logger)
	if err != nil {
		logger.Error("failed to create stream client", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:        *metricsAddr,
		Handler:     metricsMux,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting metrics server", "addr", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting vote stream ingester", "url", cfg.IngestURL)
	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stream client error", "error", err)
	}

	logger.Info("shutting down ingester...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server forced to shutdown", "error", err)
	}

	logger.Info("ingester stopped")
}

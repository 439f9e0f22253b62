package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scribeline/meeting-backend/internal/api"
	"github.com/scribeline/meeting-backend/internal/auth"
	"github.com/scribeline/meeting-backend/internal/config"
	"github.com/scribeline/meeting-backend/internal/gateway"
	"github.com/scribeline/meeting-backend/internal/observability"
	"github.com/scribeline/meeting-backend/internal/relay"
	"github.com/scribeline/meeting-backend/internal/report"
	"github.com/scribeline/meeting-backend/internal/research"
	"github.com/scribeline/meeting-backend/internal/store"
	"github.com/scribeline/meeting-backend/internal/stt"
	"github.com/scribeline/meeting-backend/internal/summarize"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Bool("deepgram_configured", cfg.DeepgramAPIKey != "").
		Msg("Meeting Backend Service starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres and bootstrap the schema
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Live transcription: one registry of per-session vendor relays
	registry := relay.NewRegistry(relay.ChannelConfig{
		APIKey:     cfg.DeepgramAPIKey,
		URL:        cfg.DeepgramListenURL,
		Encoding:   cfg.DeepgramEncoding,
		SampleRate: cfg.DeepgramSampleRate,
	})

	// Meeting processing collaborators
	transcriber := stt.NewFileTranscriber(cfg)
	summarizer := summarize.NewClient(cfg)
	researcher := research.NewClient(cfg)
	reporter := report.NewClient(cfg)
	verifier := auth.NewVerifier(cfg)
	handlers := api.New(db, transcriber, summarizer, researcher, reporter)

	r := chi.NewRouter()

	// Live audio WebSocket endpoint
	r.Get("/ws", gateway.Handler(registry))

	// Health check endpoint
	r.Get("/health", observability.HealthCheckHandler())

	// Readiness: database connectivity plus vendor configuration checks
	checks := map[string]observability.HealthCheckFunc{
		"database": func(ctx context.Context) (bool, error) {
			if err := db.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
		"deepgram": func(ctx context.Context) (bool, error) {
			if cfg.DeepgramAPIKey == "" {
				return false, fmt.Errorf("DEEPGRAM_API_KEY not set")
			}
			return true, nil
		},
		"auth": func(ctx context.Context) (bool, error) {
			if !verifier.Configured() {
				return false, fmt.Errorf("SUPABASE_URL or SUPABASE_JWT_SECRET not set")
			}
			return true, nil
		},
	}
	r.Get("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Meetings REST API, behind bearer-token auth
	r.Group(func(r chi.Router) {
		r.Use(verifier.Middleware)
		r.Mount("/", handlers.Routes())
	})

	// Create HTTP server with timeouts. No WriteTimeout: /ws connections
	// are long-lived.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 0,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

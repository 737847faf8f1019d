// Package main is the entry point for the API server.
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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/persona-worlds/brainstorm-api/internal/config"
	"github.com/persona-worlds/brainstorm-api/internal/engine"
	"github.com/persona-worlds/brainstorm-api/internal/generate"
	"github.com/persona-worlds/brainstorm-api/internal/handler"
	"github.com/persona-worlds/brainstorm-api/internal/middleware"
	"github.com/persona-worlds/brainstorm-api/internal/progress"
	"github.com/persona-worlds/brainstorm-api/internal/store"
	"github.com/persona-worlds/brainstorm-api/pkg/logger"
	"github.com/persona-worlds/brainstorm-api/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "brainstorm-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the database
	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Error("failed to open database", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	// Progress registry and run engine
	registry := progress.NewRegistry(cfg.SnapshotGracePeriod, log)
	generator := generate.NewGenerator(
		generate.DefaultStrategies(cfg.AnthropicAPIKey, cfg.OpenAIAPIKey),
		cfg.GenerationTimeout,
		log,
	)
	eng := engine.New(st, registry, generator, cfg.RevealInterval, log)
	worldGenerator := generate.NewWorldGenerator(cfg.OpenAIAPIKey, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(st)
	worldHandler := handler.NewWorldHandler(st, log)
	worldGenHandler := handler.NewWorldGenHandler(st, worldGenerator, log)
	characterHandler := handler.NewCharacterHandler(st, log)
	discussionHandler := handler.NewDiscussionHandler(st, eng, log)
	streamHandler := handler.NewStreamHandler(st, registry, log)
	wsHandler := handler.NewWSHandler(st, registry, eng, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Worlds
		r.Route("/worlds", func(r chi.Router) {
			r.Post("/", worldHandler.Create)
			r.Get("/", worldHandler.List)
			r.Post("/generate", worldGenHandler.Generate)
			r.Get("/generate-stream", worldGenHandler.GenerateStream)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", worldHandler.Get)
				r.Put("/", worldHandler.Update)
				r.Delete("/", worldHandler.Delete)
			})
		})

		// Characters
		r.Route("/characters", func(r chi.Router) {
			r.Post("/", characterHandler.Create)
			r.Get("/", characterHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", characterHandler.Get)
				r.Put("/", characterHandler.Update)
				r.Delete("/", characterHandler.Delete)
			})
		})

		// Discussions
		r.Route("/discussions", func(r chi.Router) {
			r.Post("/", discussionHandler.Create)
			r.Get("/", discussionHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", discussionHandler.Get)
				r.Put("/", discussionHandler.Update)
				r.Post("/start", discussionHandler.Start)

				// Streaming
				r.Get("/stream", streamHandler.Stream)
				r.Delete("/stream", streamHandler.Unregister)
			})
		})

		// WebSocket
		r.Get("/ws/discussions/{id}", wsHandler.Discussion)
	})

	// Create HTTP server. WriteTimeout stays unset: SSE and WebSocket
	// connections outlive any sane per-response deadline.
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     r,
		ReadTimeout: cfg.ServerReadTimeout,
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Let in-flight runs finish and drop any retained snapshots.
	eng.Close()
	registry.Close()

	log.Info("server stopped")
}

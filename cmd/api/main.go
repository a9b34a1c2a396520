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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/chatbot-engine/internal/admission"
	"github.com/capitalize-ai/chatbot-engine/internal/config"
	"github.com/capitalize-ai/chatbot-engine/internal/convlog"
	"github.com/capitalize-ai/chatbot-engine/internal/events"
	"github.com/capitalize-ai/chatbot-engine/internal/generate"
	"github.com/capitalize-ai/chatbot-engine/internal/handler"
	"github.com/capitalize-ai/chatbot-engine/internal/index"
	"github.com/capitalize-ai/chatbot-engine/internal/llm"
	"github.com/capitalize-ai/chatbot-engine/internal/middleware"
	"github.com/capitalize-ai/chatbot-engine/internal/pipeline"
	"github.com/capitalize-ai/chatbot-engine/internal/prompt"
	"github.com/capitalize-ai/chatbot-engine/internal/quota"
	"github.com/capitalize-ai/chatbot-engine/internal/retriever"
	"github.com/capitalize-ai/chatbot-engine/internal/store"
	"github.com/capitalize-ai/chatbot-engine/pkg/logger"
	"github.com/capitalize-ai/chatbot-engine/pkg/tracing"
)

func main() {
	cfg := config.Load()
	if err := cfg.Pipeline.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting chatbot engine")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chatbot-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Durable store.
	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	// Usage event stream.
	eventsClient, err := events.Connect(ctx, events.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer eventsClient.Close()
	streamManager := events.NewStreamManager(eventsClient)

	// Quota tracker over the durable counters.
	tracker := quota.NewTracker(st)

	// Document index. Optional: without it every turn answers from
	// history alone.
	var docIndex index.Index
	if cfg.WeaviateURL != "" {
		wv, err := index.NewWeaviateIndex(cfg.WeaviateURL, cfg.WeaviateClass)
		if err != nil {
			log.Warn("document index unavailable, retrieval disabled", zap.Error(err))
		} else {
			docIndex = wv
		}
	}

	// Startup tasks that touch external systems run concurrently under
	// one deadline.
	startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	g, gctx := errgroup.WithContext(startupCtx)
	g.Go(func() error {
		return streamManager.EnsureStream(gctx)
	})
	g.Go(func() error {
		return tracker.Rebuild(gctx)
	})
	if docIndex != nil {
		g.Go(func() error {
			if err := docIndex.Ready(gctx); err != nil {
				log.Warn("document index not ready", zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cancel()
		log.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}
	cancel()

	// Generation backend. Anthropic serves completions; OpenAI serves
	// embeddings for retrieval and acts as the completion fallback
	// provider when no Anthropic key is configured.
	var genClient llm.Client
	var embedder llm.Embedder
	if cfg.OpenAIAPIKey != "" {
		oc, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("failed to create OpenAI client", zap.Error(err))
		} else {
			embedder = oc
			genClient = oc
		}
	}
	if cfg.AnthropicAPIKey != "" {
		ac, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client", zap.Error(err))
		} else {
			genClient = ac
		}
	}
	if genClient == nil {
		log.Warn("no generation backend configured, every turn will degrade to fallback")
	}

	var limiter admission.Limiter
	if cfg.Pipeline.AdmissionStrategy == "token_bucket" {
		limiter = admission.NewTokenBucket(cfg.Pipeline.RateLimitRequests, cfg.Pipeline.RateLimitWindow)
	} else {
		limiter = admission.NewFixedWindow(admission.NewMemoryCounterStore(), cfg.Pipeline.RateLimitRequests, cfg.Pipeline.RateLimitWindow)
	}

	// Pipeline.
	p := pipeline.New(pipeline.Options{
		Store:   st,
		Limiter: limiter,
		Quota:   tracker,
		Log:     convlog.NewLog(st),
		Retriever: retriever.NewRetriever(embedder, docIndex,
			cfg.Pipeline.RetrievalK, cfg.Pipeline.RetrievalAttempts, log),
		Assembler:    prompt.NewAssembler(cfg.Pipeline.MaxPromptChars),
		Generator:    generate.NewGenerator(genClient, cfg.Pipeline.GenerationTimeout, log),
		Publisher:    streamManager,
		HistoryLimit: cfg.Pipeline.MaxHistoryMessages,
		Logger:       log,
	})

	// Handlers.
	healthHandler := handler.NewHealthHandler(eventsClient, st)
	conversationHandler := handler.NewConversationHandler(st, log)
	messageHandler := handler.NewMessageHandler(p, convlog.NewLog(st), log)
	tenantHandler := handler.NewTenantHandler(st, tracker, cfg.Pipeline.DefaultQuotaCeiling, log)

	// Router.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())
	r.Use(middleware.EdgeRateLimit(cfg.Pipeline.RateLimitRequests*10, cfg.Pipeline.RateLimitWindow))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))

		r.Route("/conversations", func(r chi.Router) {
			r.Use(middleware.TenantRateLimit(cfg.Pipeline.RateLimitRequests, cfg.Pipeline.RateLimitWindow))
			r.Get("/", conversationHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
			})
		})

		r.Route("/tenants", func(r chi.Router) {
			r.Use(middleware.RequireScope("admin"))
			r.Post("/", tenantHandler.Create)
			r.Get("/", tenantHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", tenantHandler.Get)
				r.Delete("/", tenantHandler.Delete)
				r.Get("/usage", tenantHandler.Usage)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

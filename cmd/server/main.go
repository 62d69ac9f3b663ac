// Command server runs the chatflow HTTP API: the Execution Engine (C7)
// fronted by the REST/WebSocket transport, backed by Postgres for template
// and definition storage. Flag/lifecycle shape grounded on the teacher's
// cmd/server/main.go (flag parsing, graceful shutdown on SIGINT/SIGTERM).
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowcore/chatflow/internal/engine"
	"github.com/flowcore/chatflow/internal/eventbus"
	"github.com/flowcore/chatflow/internal/infrastructure/api/rest"
	"github.com/flowcore/chatflow/internal/infrastructure/config"
	"github.com/flowcore/chatflow/internal/logging"
	"github.com/flowcore/chatflow/internal/provider"
	"github.com/flowcore/chatflow/internal/provider/anthropicchat"
	"github.com/flowcore/chatflow/internal/provider/openaichat"
	"github.com/flowcore/chatflow/internal/storage"
	"github.com/flowcore/chatflow/internal/tools"
)

func main() {
	var (
		port            = flag.String("port", "", "server port (overrides config)")
		enableCORS      = flag.Bool("cors", true, "enable CORS")
		enableRateLimit = flag.Bool("rate-limit", false, "enable per-IP rate limiting")
		apiKeys         = flag.String("api-keys", "", "comma-separated API keys for authentication")
	)
	flag.Parse()

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}

	log := logging.Setup(cfg.LogLevel)
	log.Info().Str("port", cfg.Port).Msg("starting chatflow server")

	store := storage.NewStore(cfg.DatabaseDSN)

	ctx := context.Background()
	if err := store.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database schema")
	}
	if err := eventbus.EnsureExecutionsTable(ctx, store.DB()); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize executions table")
	}
	log.Info().Msg("database schema initialized")

	bus := eventbus.New(func(err error) {
		log.Error().Err(err).Msg("event subscriber panicked")
	})
	bus.SubscribeAll(eventbus.NewDatabaseSubscriber(store.DB(), log).Handle)
	bus.SubscribeAll(eventbus.NewMetricsSubscriber().Handle)
	bus.SubscribeAll(eventbus.NewLoggingSubscriber(log, 0).Handle)
	bus.SubscribeAll(eventbus.NewTracingSubscriber().Handle)
	stream := eventbus.NewStreamSubscriber(log)
	bus.SubscribeAll(stream.Handle)

	eng := engine.New()
	eng.Templates = store
	eng.Definitions = store
	eng.Bus = bus
	eng.Logger = log
	eng.Models = loadModels(log)
	eng.Tools = tools.NewRegistry(&http.Client{Timeout: 30 * time.Second})
	if cfg.Engine.ExecutionTimeout > 0 {
		eng.ExecutionTimeout = cfg.Engine.ExecutionTimeout
	}
	if cfg.Engine.NodeTimeout > 0 {
		eng.NodeTimeout = cfg.Engine.NodeTimeout
	}

	var apiKeyList []string
	for _, key := range strings.Split(*apiKeys, ",") {
		if key = strings.TrimSpace(key); key != "" {
			apiKeyList = append(apiKeyList, key)
		}
	}
	if len(apiKeyList) > 0 {
		log.Info().Int("count", len(apiKeyList)).Msg("api key authentication enabled")
	}

	serverConfig := rest.ServerConfig{
		EnableCORS:      *enableCORS,
		EnableRateLimit: *enableRateLimit,
		RateLimitMax:    100,
		RateLimitWindow: time.Minute,
		APIKeys:         apiKeyList,
		CallerSecret:    os.Getenv("CHATFLOW_CALLER_SECRET"),
	}
	srv := rest.NewServer(eng, store, stream, log, serverConfig)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server exited gracefully")
}

// loadModels wires one provider.ChatModel per configured API key, keyed by
// the name the compiler's model nodes reference (spec.md §4.6 "model").
// A deployment with neither key set still boots; any workflow reaching a
// model node simply fails that node with an unavailable-provider error.
func loadModels(log zerolog.Logger) map[string]provider.ChatModel {
	models := make(map[string]provider.ChatModel)

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		models["openai"] = openaichat.New(key, os.Getenv("OPENAI_BASE_URL"))
		log.Info().Msg("openai chat model configured")
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		model, err := anthropicchat.New(anthropicchat.Config{
			APIKey:       key,
			BaseURL:      os.Getenv("ANTHROPIC_BASE_URL"),
			DefaultModel: os.Getenv("ANTHROPIC_DEFAULT_MODEL"),
		})
		if err != nil {
			log.Warn().Err(err).Msg("anthropic chat model configuration failed")
		} else {
			models["anthropic"] = model
			log.Info().Msg("anthropic chat model configured")
		}
	}

	return models
}

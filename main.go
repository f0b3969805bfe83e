// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/kristoman-rikardo/standardgpt/cache"
	"github.com/kristoman-rikardo/standardgpt/config"
	"github.com/kristoman-rikardo/standardgpt/embedding"
	"github.com/kristoman-rikardo/standardgpt/llm"
	"github.com/kristoman-rikardo/standardgpt/memory"
	"github.com/kristoman-rikardo/standardgpt/middleware"
	"github.com/kristoman-rikardo/standardgpt/orchestrator"
	"github.com/kristoman-rikardo/standardgpt/progress"
	"github.com/kristoman-rikardo/standardgpt/prompts"
	"github.com/kristoman-rikardo/standardgpt/routes"
	"github.com/kristoman-rikardo/standardgpt/search"
	"github.com/kristoman-rikardo/standardgpt/store"
)

const (
	promptCacheTTL    = time.Hour
	embeddingCacheTTL = 2 * time.Hour
	embeddingCacheCap = 1000

	conversationMaxAge = 7 * 24 * time.Hour
	cleanupInterval    = 6 * time.Hour
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("standardgpt")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// llmTitler adapts the LLM client to the conversation store's Titler port.
type llmTitler struct {
	client llm.Client
}

func (t *llmTitler) Title(ctx context.Context, question, answer string) (string, error) {
	prompt := "Lag en kort tittel (maks fem ord) for en samtale som starter slik:\n\nSpørsmål: " +
		question + "\n\nSvar: " + answer
	return t.client.Complete(ctx, prompts.NamespaceTitle, prompt, nil)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	promptStore, err := prompts.NewStore()
	if err != nil {
		log.Fatalf("failed to load prompt templates: %v", err)
	}

	promptCache := cache.New(promptCacheTTL)
	defer promptCache.Close()
	embeddingCache := cache.New(embeddingCacheTTL, cache.WithMaxEntries(embeddingCacheCap))
	defer embeddingCache.Close()

	llmClient := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIAnswerModel, promptCache)
	embedder := embedding.NewClient(cfg.EmbeddingEndpoint, cfg.EmbeddingAPIKey, cfg.OpenAIAPIKey, embeddingCache)
	searcher := search.NewClient(cfg.ElasticsearchURL, cfg.ElasticsearchIndex, cfg.ElasticsearchAPIKey)

	conversations, err := store.Open(cfg.DatabasePath, &llmTitler{client: llmClient})
	if err != nil {
		log.Fatalf("failed to open conversation store: %v", err)
	}
	defer conversations.Close()

	memories := memory.NewStore()
	bus := progress.NewBus()
	defer bus.Close()

	engine := orchestrator.NewEngine(llmClient, embedder, searcher, promptStore, memories, bus)
	engine.SetTimeouts(cfg.ResponseTimeout)
	engine.SetQuestionBounds(cfg.MinQuestionLength, cfg.MaxQuestionLength)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.EmbeddingKeepaliveEnabled {
		if ka := embedding.NewKeepalive(embedder, cfg.EmbeddingKeepaliveInterval); ka != nil {
			go ka.Start(rootCtx)
		}
	}
	go cleanupLoop(rootCtx, conversations)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	defer limiter.Close()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(otelgin.Middleware("standardgpt"))

	routes.SetupRoutes(router, routes.Deps{
		Config:        cfg,
		Engine:        engine,
		Bus:           bus,
		Memories:      memories,
		Conversations: conversations,
		Searcher:      searcher,
		Caches: map[string]*cache.TTLCache{
			"prompts":    promptCache,
			"embeddings": embeddingCache,
		},
		RateLimiter: limiter,
	})

	srv := &http.Server{
		Addr:    ":" + strings.TrimPrefix(cfg.Port, ":"),
		Handler: router,
	}

	go func() {
		slog.Info("starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-rootCtx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}

func cleanupLoop(ctx context.Context, conversations *store.ConversationStore) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := conversations.CleanupOlderThan(ctx, conversationMaxAge); err != nil {
				slog.Warn("conversation cleanup failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command assistant starts the SkillGate docs assistant HTTP server.
//
// It reads configuration from environment variables and serves the streaming
// chat endpoint alongside /healthz and /metrics.
//
// # Environment Variables
//
//   - ASSISTANT_PORT: HTTP server port (default: 8095)
//   - SKILLGATE_DOCS_INDEX: Path to the docs index JSON (default: embedded snapshot)
//   - SKILLGATE_LLM_PROVIDER: Explicit provider - anthropic, openai, groq, local
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY / GROQ_API_KEY: Provider credentials
//   - SKILLGATE_LLM_MODEL: Model override for the resolved provider
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional; tracing is
//     disabled when unset)
//   - LOG_DIR: JSON file logging directory (optional)
//
// # Usage
//
//	go build -o assistant ./cmd/assistant
//	./assistant
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/skillgate-io/skillgate-docs/pkg/logging"
	"github.com/skillgate-io/skillgate-docs/services/assistant/analytics"
	"github.com/skillgate-io/skillgate-docs/services/assistant/handlers"
	"github.com/skillgate-io/skillgate-docs/services/assistant/observability"
	"github.com/skillgate-io/skillgate-docs/services/assistant/ratelimit"
	"github.com/skillgate-io/skillgate-docs/services/assistant/routes"
	"github.com/skillgate-io/skillgate-docs/services/guardrails"
	"github.com/skillgate-io/skillgate-docs/services/llm"
	"github.com/skillgate-io/skillgate-docs/services/retrieval"
)

const serviceName = "assistant"

// initTracer wires the OTLP gRPC exporter when a collector endpoint is
// configured. Returns a nil cleanup when tracing is disabled; spans then go
// to the default no-op provider.
func initTracer(ctx context.Context) (func(context.Context), error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := exporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("ASSISTANT_PORT")
	if port == "" {
		port = "8095"
	}

	logger, err := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  os.Getenv("LOG_DIR"),
		Service: serviceName,
		JSON:    true,
	})
	if err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cleanup, err := initTracer(context.Background())
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	if cleanup != nil {
		defer cleanup(context.Background())
	} else {
		logger.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
	}

	corpus, err := retrieval.LoadCorpus(os.Getenv("SKILLGATE_DOCS_INDEX"))
	if err != nil {
		log.Fatalf("failed to load the docs index: %v", err)
	}

	guard, err := guardrails.NewEngine()
	if err != nil {
		log.Fatalf("failed to initialize the guardrail engine: %v", err)
	}

	client, err := llm.ResolveClient()
	if err != nil {
		log.Fatalf("failed to initialize the LLM client: %v", err)
	}
	logger.Info("LLM client ready", "provider", client.Name())

	observability.InitMetrics()

	emitter := analytics.NewEmitter(logger)
	defer emitter.Close()

	chat := handlers.NewChatHandler(logger, ratelimit.NewLimiter(), corpus, guard, client, emitter)

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	routes.SetupRoutes(router, chat)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
		// No WriteTimeout: SSE streams stay open for the full generation.
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting the assistant server", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

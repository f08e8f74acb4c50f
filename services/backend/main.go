// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
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
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/miras/pkg/extensions"
	"github.com/AleutianAI/miras/pkg/logging"
	"github.com/AleutianAI/miras/services/artifacts"
	"github.com/AleutianAI/miras/services/backend/handlers"
	"github.com/AleutianAI/miras/services/backend/middleware"
	"github.com/AleutianAI/miras/services/backend/observability"
	"github.com/AleutianAI/miras/services/backend/routes"
	"github.com/AleutianAI/miras/services/backend/store"
	"github.com/AleutianAI/miras/services/contextual"
	"github.com/AleutianAI/miras/services/factcheck"
	"github.com/AleutianAI/miras/services/ingestion"
	"github.com/AleutianAI/miras/services/llm"
	"github.com/AleutianAI/miras/services/scanner"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "miras-otel-collector:4317"
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
		resource.WithAttributes(semconv.ServiceNameKey.String("miras-backend")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// validationEnabled reads VALIDATION_ENABLED, defaulting to on.
func validationEnabled() bool {
	raw := os.Getenv("VALIDATION_ENABLED")
	if raw == "" {
		return true
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("VALIDATION_ENABLED is not a boolean, defaulting to true", "value", raw)
		return true
	}
	return enabled
}

// serviceOptions assembles the extension points for this deployment.
// MIRAS_REDACT_QUERIES=true screens search queries with the same rules
// that screen documents at ingestion time; everything else stays on the
// no-op defaults.
func serviceOptions() extensions.ServiceOptions {
	opts := extensions.DefaultOptions()

	raw := os.Getenv("MIRAS_REDACT_QUERIES")
	if raw == "" {
		return opts
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("MIRAS_REDACT_QUERIES is not a boolean, leaving query redaction off", "value", raw)
		return opts
	}
	if enabled {
		filter, err := scanner.NewRedactionFilter()
		if err != nil {
			log.Fatalf("FATAL: Could not initialize the query redaction filter: %v", err)
		}
		opts = opts.WithFilter(filter)
		slog.Info("Query redaction enabled")
	}
	return opts
}

// apiMiddleware assembles optional /api middleware from the
// environment. MIRAS_RATE_LIMIT sets a sustained per-IP requests per
// second; MIRAS_RATE_BURST sizes the bucket (default 60). Unset means
// no rate limiting, the right default for a single-user local install.
func apiMiddleware() []gin.HandlerFunc {
	raw := os.Getenv("MIRAS_RATE_LIMIT")
	if raw == "" {
		return nil
	}
	rps, err := strconv.ParseFloat(raw, 64)
	if err != nil || rps <= 0 {
		slog.Warn("MIRAS_RATE_LIMIT is not a positive number, leaving rate limiting off", "value", raw)
		return nil
	}

	burst := 60
	if rawBurst := os.Getenv("MIRAS_RATE_BURST"); rawBurst != "" {
		if n, err := strconv.Atoi(rawBurst); err == nil && n > 0 {
			burst = n
		} else {
			slog.Warn("MIRAS_RATE_BURST is not a positive integer, using the default", "value", rawBurst)
		}
	}

	slog.Info("API rate limiting enabled", "rps", rps, "burst", burst)
	return []gin.HandlerFunc{middleware.RateLimit(rps, burst)}
}

func main() {
	port := os.Getenv("MIRAS_PORT")
	if port == "" {
		port = "8000"
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		LogDir:  os.Getenv("MIRAS_LOG_DIR"),
		Service: "miras-backend",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	if ok, limitKB := handlers.IsMlockAvailable(); ok {
		slog.Info("Secure answer memory available", "mlock_limit_kb", limitKB)
	} else {
		slog.Warn("Secure answer memory unavailable, falling back to plain buffers",
			"mlock_limit_kb", limitKB)
	}
	defer handlers.PurgeAllSecureMemory()

	// The backend keeps serving without an upstream; search endpoints
	// answer 503 and document listings come from local state.
	upstream, err := contextual.NewClientFromEnv()
	if err != nil {
		slog.Warn("Retrieval upstream is not configured. Running in lightweight mode.", "error", err)
		upstream = nil
	}

	refs, err := artifacts.NewStore(os.Getenv("MIRAS_EXTRACTED_DIR"))
	if err != nil {
		log.Fatalf("FATAL: Could not open the artifact store %v", err)
	}
	defer refs.Close()

	log.Println("Configuring the LLM Client")
	var validator *factcheck.Validator
	var pipeline *ingestion.Pipeline

	llmClient, err := llm.NewFromEnv(context.Background())
	switch {
	case err != nil:
		slog.Warn("LLM backend unavailable, validation and PDF extraction are disabled", "error", err)
	default:
		if validationEnabled() {
			validator = factcheck.NewValidator(llmClient, refs)
		} else {
			slog.Info("Answer validation disabled by configuration")
		}

		if fileModel, ok := llmClient.(llm.FileCapable); ok && upstream != nil {
			pipeline = ingestion.NewPipeline(ingestion.NewProcessor(fileModel, refs), upstream)
		} else if !ok {
			slog.Warn("LLM backend cannot read documents, PDF extraction disabled",
				"backend", os.Getenv("LLM_BACKEND_TYPE"))
		}
	}

	sessions := store.NewSessionStore()
	docs := store.NewDocumentStore()

	opts := serviceOptions()
	defer func() {
		if err := opts.AuditLogger.Flush(context.Background()); err != nil {
			slog.Warn("Failed to flush the audit log", "error", err)
		}
	}()

	var search handlers.SearchHandler
	if upstream != nil {
		search = handlers.NewSearchHandler(upstream, validator, sessions, opts)
	}
	ingest := handlers.NewIngestHandler(pipeline, upstream, docs, opts)

	router := gin.Default()
	router.Use(otelgin.Middleware("miras-backend"))

	// Frontends are served from their own origin during development.
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	routes.SetupRoutes(router, search, ingest, upstream, sessions, docs, opts, apiMiddleware()...)
	log.Println("started up the container")

	log.Println("Starting the miras backend on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

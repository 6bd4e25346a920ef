// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command logcollector is the local-first developer observability
// daemon and its client CLI.
//
// The daemon ingests logs from subprocesses, HTTP proxies, watched
// files, the process table, database log tails and browser SDKs, stores
// them in an indexed SQLite database, and serves a JSON-RPC 2.0 API
// plus a filtered WebSocket stream.
//
// # Usage
//
//	logcollector init --type webapp      # write a project config
//	logcollector start                   # server + collectors
//	logcollector server                  # server only
//	logcollector collectors              # collectors only
//	logcollector status                  # health + stats via RPC
//	logcollector logs --level ERROR      # query recent entries
//
// Environment overrides: LOG_COLLECTOR_HOST, LOG_COLLECTOR_PORT,
// LOG_COLLECTOR_AUTH_TOKEN, LOG_COLLECTOR_DB_PATH,
// LOG_COLLECTOR_MAX_SIZE_MB, LOG_COLLECTOR_WEBHOOK_URL,
// LOG_COLLECTOR_SLACK_TOKEN. Tracing is enabled when
// OTEL_EXPORTER_OTLP_ENDPOINT is set.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cleanup, err := initTracer(endpoint)
		if err != nil {
			log.Fatalf("failed to set up the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

// initTracer wires the OTLP gRPC exporter and installs the global
// tracer provider. The returned cleanup flushes pending spans.
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("logcollector")))
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

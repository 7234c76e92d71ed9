// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/meridianhq/tenancy-service/internal/logging"
)

var _ TracingInterface = (*Tracer)(nil)

type Tracer struct {
	tracer trace.Tracer

	logger logging.LoggerInterface
}

func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// NewTracer sets up the global TracerProvider based on the config and
// returns a tracer for the service. With tracing disabled a noop tracer
// is returned and no provider is installed.
func NewTracer(cfg *Config) *Tracer {
	t := new(Tracer)
	t.logger = cfg.Logger

	if !cfg.Enabled {
		t.tracer = noop.NewTracerProvider().Tracer("tenancy-service")
		return t
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		cfg.Logger.Errorf("failed to create otel exporter, tracing disabled: %v", err)
		t.tracer = noop.NewTracerProvider().Tracer("tenancy-service")
		return t
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(time.Second*5)),
	)
	otel.SetTracerProvider(provider)

	t.tracer = provider.Tracer("tenancy-service")
	return t
}

func newExporter(cfg *Config) (sdktrace.SpanExporter, error) {
	ctx := context.Background()

	if cfg.OtelGRPCEndpoint != "" {
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.OtelGRPCEndpoint),
			otlptracegrpc.WithInsecure(),
		))
	}

	if cfg.OtelHTTPEndpoint != "" {
		return otlptrace.New(ctx, otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(cfg.OtelHTTPEndpoint),
			otlptracehttp.WithInsecure(),
		))
	}

	return stdouttrace.New()
}

func NewNoopTracer() *Tracer {
	t := new(Tracer)
	t.tracer = noop.NewTracerProvider().Tracer("tenancy-service")
	return t
}

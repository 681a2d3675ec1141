// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package vgiotel provides OpenTelemetry instrumentation for vgi-rpc servers
// and clients. It implements [vgirpc.DispatchHook] and [vgirpc.CallHook] to
// add distributed tracing and metrics to remote function calls.
//
// Usage:
//
//	server := vgirpc.NewServer()
//	// ... register functions ...
//	vgiotel.InstrumentServer(server, vgiotel.DefaultConfig())
//
//	client := vgirpc.NewClient(transport)
//	vgiotel.InstrumentClient(client, vgiotel.DefaultConfig())
package vgiotel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Query-farm/vgi-llist/vgirpc"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "vgi_rpc"

// OtelConfig configures OpenTelemetry instrumentation.
type OtelConfig struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator moves trace context through request metadata.
	// Defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed calls.
	// Default true.
	RecordExceptions bool
	// ServiceName is the rpc.service attribute value.
	// Defaults to Server.ServiceName() or "GoRpcServer" for servers and
	// "GoRpcClient" for clients.
	ServiceName string
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns an OtelConfig with sensible defaults.
// TracerProvider, MeterProvider, and Propagator are resolved from the
// global OTel SDK at instrumentation time.
func DefaultConfig() OtelConfig {
	return OtelConfig{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

func (cfg *OtelConfig) resolve(defaultService string) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultService
	}
}

// instruments holds the per-side counter and histogram.
type instruments struct {
	requestCounter    metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

func newInstruments(cfg OtelConfig, side string) instruments {
	var ins instruments
	if !cfg.EnableMetrics {
		return ins
	}
	meter := cfg.MeterProvider.Meter(instrumentationName)
	ins.requestCounter, _ = meter.Int64Counter(fmt.Sprintf("rpc.%s.requests", side),
		metric.WithUnit("{request}"),
		metric.WithDescription("Number of RPC requests"),
	)
	ins.durationHistogram, _ = meter.Float64Histogram(fmt.Sprintf("rpc.%s.duration", side),
		metric.WithUnit("s"),
		metric.WithDescription("Duration of RPC requests"),
	)
	return ins
}

func (ins instruments) record(ctx context.Context, duration time.Duration, attrs ...attribute.KeyValue) {
	metricAttrs := metric.WithAttributes(attrs...)
	if ins.requestCounter != nil {
		ins.requestCounter.Add(ctx, 1, metricAttrs)
	}
	if ins.durationHistogram != nil {
		ins.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
	}
}

// spanToken is the HookToken returned by the start callbacks.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// endSpan records the outcome on a span and ends it.
func endSpan(span trace.Span, err error, recordExceptions bool) {
	if span == nil || !span.IsRecording() {
		return
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if recordExceptions {
			span.RecordError(err)
		}
		errType := fmt.Sprintf("%T", err)
		var rpcErr *vgirpc.RpcError
		if errors.As(err, &rpcErr) {
			errType = rpcErr.Type
		}
		span.SetAttributes(attribute.String("rpc.vgi_rpc.error_type", errType))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// InstrumentServer attaches OpenTelemetry instrumentation to a vgi-rpc server.
// The hook is installed via [vgirpc.Server.SetDispatchHook].
func InstrumentServer(server *vgirpc.Server, cfg OtelConfig) {
	defaultService := server.ServiceName()
	if defaultService == "" {
		defaultService = "GoRpcServer"
	}
	cfg.resolve(defaultService)

	server.SetDispatchHook(&serverHook{
		cfg:         cfg,
		tracer:      cfg.TracerProvider.Tracer(instrumentationName),
		instruments: newInstruments(cfg, "server"),
	})
}

// serverHook implements vgirpc.DispatchHook with OpenTelemetry tracing and metrics.
type serverHook struct {
	cfg         OtelConfig
	tracer      trace.Tracer
	instruments instruments
}

// OnDispatchStart extracts parent trace context and starts a server span.
func (h *serverHook) OnDispatchStart(ctx context.Context, info vgirpc.DispatchInfo) (context.Context, vgirpc.HookToken) {
	// Extract parent trace context from transport metadata (traceparent/tracestate)
	if h.cfg.Propagator != nil && info.TransportMetadata != nil {
		carrier := propagation.MapCarrier(info.TransportMetadata)
		ctx = h.cfg.Propagator.Extract(ctx, carrier)
	}

	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "vgi_rpc"),
		attribute.String("rpc.service", h.cfg.ServiceName),
		attribute.String("rpc.method", info.Function),
		attribute.String("rpc.vgi_rpc.package", info.Package),
		attribute.String("rpc.vgi_rpc.server_id", info.ServerID),
		attribute.String("rpc.vgi_rpc.request_id", info.RequestID),
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	// Add transport metadata attributes (HTTP only)
	if v, ok := info.TransportMetadata["remote_addr"]; ok && v != "" {
		attrs = append(attrs, attribute.String("net.peer.ip", v))
	}
	if v, ok := info.TransportMetadata["user_agent"]; ok && v != "" {
		attrs = append(attrs, attribute.String("user_agent.original", v))
	}

	ctx, span := h.tracer.Start(ctx, fmt.Sprintf("vgi_rpc/%s.%s", info.Package, info.Function),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)

	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnDispatchEnd records span attributes, metrics, and ends the span.
func (h *serverHook) OnDispatchEnd(ctx context.Context, token vgirpc.HookToken, info vgirpc.DispatchInfo, stats *vgirpc.CallStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	if h.cfg.EnableMetrics {
		h.instruments.record(ctx, time.Since(st.startTime),
			attribute.String("rpc.system", "vgi_rpc"),
			attribute.String("rpc.service", h.cfg.ServiceName),
			attribute.String("rpc.method", info.Function),
			attribute.String("rpc.vgi_rpc.package", info.Package),
			attribute.String("status", statusOf(err)),
		)
	}

	if st.span != nil && st.span.IsRecording() && stats != nil {
		st.span.SetAttributes(
			attribute.Int64("rpc.vgi_rpc.input_batches", stats.InputBatches),
			attribute.Int64("rpc.vgi_rpc.output_batches", stats.OutputBatches),
			attribute.Int64("rpc.vgi_rpc.input_rows", stats.InputRows),
			attribute.Int64("rpc.vgi_rpc.output_rows", stats.OutputRows),
			attribute.Int64("rpc.vgi_rpc.input_bytes", stats.InputBytes),
			attribute.Int64("rpc.vgi_rpc.output_bytes", stats.OutputBytes),
		)
	}
	endSpan(st.span, err, h.cfg.RecordExceptions)
}

// InstrumentClient attaches OpenTelemetry instrumentation to a client. The
// client span's context is injected into the request metadata so an
// instrumented server continues the trace.
func InstrumentClient(client *vgirpc.Client, cfg OtelConfig) {
	cfg.resolve("GoRpcClient")
	client.AddCallHook(&clientHook{
		cfg:         cfg,
		tracer:      cfg.TracerProvider.Tracer(instrumentationName),
		instruments: newInstruments(cfg, "client"),
	})
}

// clientHook implements vgirpc.CallHook.
type clientHook struct {
	cfg         OtelConfig
	tracer      trace.Tracer
	instruments instruments
}

// OnCallStart starts a client span and injects its context into info.Metadata.
func (h *clientHook) OnCallStart(ctx context.Context, info *vgirpc.CallInfo) (context.Context, vgirpc.HookToken) {
	token := &spanToken{startTime: time.Now()}
	if h.cfg.EnableTracing {
		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", "vgi_rpc"),
			attribute.String("rpc.service", h.cfg.ServiceName),
			attribute.String("rpc.method", info.Function),
			attribute.String("rpc.vgi_rpc.package", info.Package),
			attribute.String("rpc.vgi_rpc.request_id", info.RequestID),
			attribute.String("rpc.vgi_rpc.transport", info.Transport),
			attribute.String("db.namespace", info.Key.Namespace),
			attribute.String("db.collection.name", info.Key.SetName),
			attribute.Int("rpc.vgi_rpc.num_args", info.NumArgs),
		}
		attrs = append(attrs, h.cfg.CustomAttributes...)
		ctx, token.span = h.tracer.Start(ctx, fmt.Sprintf("vgi_rpc/%s.%s", info.Package, info.Function),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attrs...),
		)
	}
	if h.cfg.Propagator != nil && info.Metadata != nil {
		h.cfg.Propagator.Inject(ctx, propagation.MapCarrier(info.Metadata))
	}
	return ctx, token
}

// OnCallEnd records metrics and ends the client span.
func (h *clientHook) OnCallEnd(ctx context.Context, token vgirpc.HookToken, info *vgirpc.CallInfo, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}
	if h.cfg.EnableMetrics {
		h.instruments.record(ctx, time.Since(st.startTime),
			attribute.String("rpc.system", "vgi_rpc"),
			attribute.String("rpc.service", h.cfg.ServiceName),
			attribute.String("rpc.method", info.Function),
			attribute.String("rpc.vgi_rpc.package", info.Package),
			attribute.String("status", statusOf(err)),
		)
	}
	endSpan(st.span, err, h.cfg.RecordExceptions)
}

package hooks

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/waftester/wpscout/pkg/defaults"
	"github.com/waftester/wpscout/pkg/duration"
	"github.com/waftester/wpscout/pkg/output/dispatcher"
	"github.com/waftester/wpscout/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*OTelHook)(nil)

// OTelHook exports scan traces to an OpenTelemetry collector.
//
// Creating the hook installs its tracer provider globally, so the scan span
// opened by the orchestrator and the scheduler's phase spans are exported
// through it. Events are recorded on the span carried by the event context.
type OTelHook struct {
	opts           OTelOptions
	tracerProvider *sdktrace.TracerProvider

	mu     sync.Mutex
	closed bool
}

// OTelOptions configures the OpenTelemetry hook.
type OTelOptions struct {
	// Endpoint is the OTLP/gRPC endpoint (default "localhost:4317").
	Endpoint string

	// ServiceName is the service name for traces (default "wpscout").
	ServiceName string

	// Insecure disables TLS to the collector.
	Insecure bool

	// Headers are sent with every export.
	Headers map[string]string

	// ShutdownTimeout bounds the final flush (default 5s).
	ShutdownTimeout time.Duration

	// ConnectionTimeout bounds exporter creation (default 10s).
	ConnectionTimeout time.Duration
}

func (o *OTelOptions) applyDefaults() {
	if o.ServiceName == "" {
		o.ServiceName = defaults.ToolName
	}
	if o.Endpoint == "" {
		o.Endpoint = "localhost:4317"
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = duration.TelemetryShutdown
	}
	if o.ConnectionTimeout == 0 {
		o.ConnectionTimeout = duration.TelemetryConnect
	}
}

// NewOTelHook creates an OTLP/gRPC exporter and installs a batching tracer
// provider. Connection failures surface on export, never on the scan path.
func NewOTelHook(opts OTelOptions) (*OTelHook, error) {
	opts.applyDefaults()

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(opts.Endpoint),
	}
	if opts.Insecure {
		exporterOpts = append(exporterOpts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	}
	if len(opts.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectionTimeout)
	defer cancel()
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, err
	}

	return NewOTelHookWithProvider(opts, sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(Resource(opts.ServiceName)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)), nil
}

// NewOTelHookWithProvider installs tp globally and wraps it in a hook.
func NewOTelHookWithProvider(opts OTelOptions, tp *sdktrace.TracerProvider) *OTelHook {
	opts.applyDefaults()
	otel.SetTracerProvider(tp)
	return &OTelHook{opts: opts, tracerProvider: tp}
}

// Resource describes this process to the collector.
func Resource(serviceName string) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(defaults.Version),
		attribute.String("service.component", "scanner"),
	)
}

// ServiceName returns the configured service name.
func (h *OTelHook) ServiceName() string { return h.opts.ServiceName }

// Endpoint returns the collector endpoint.
func (h *OTelHook) Endpoint() string { return h.opts.Endpoint }

// EventTypes returns nil to receive every event.
func (h *OTelHook) EventTypes() []events.EventType { return nil }

// OnEvent records the event on the span in ctx. Events without a
// recording span are ignored.
func (h *OTelHook) OnEvent(ctx context.Context, event events.Event) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}

	switch e := event.(type) {
	case *events.StartEvent:
		span.SetAttributes(
			attribute.String("wpscout.scan_id", e.ScanID()),
			attribute.String("wpscout.target", e.Target),
			attribute.String("wpscout.mode", e.Mode),
			attribute.Float64("wpscout.rate", e.Rate),
		)
	case *events.PhaseEvent:
		attrs := []attribute.KeyValue{
			attribute.String("wpscout.phase", e.Name),
			attribute.Int("wpscout.findings", e.Findings),
			attribute.Int64("wpscout.requests", e.Requests),
			attribute.Float64("wpscout.duration_seconds", e.Duration.Seconds()),
		}
		if e.Failed() {
			attrs = append(attrs, attribute.String("wpscout.error", e.Error))
		}
		span.AddEvent("phase_complete", trace.WithAttributes(attrs...))
	case *events.FindingEvent:
		span.AddEvent("finding", trace.WithAttributes(
			attribute.String("wpscout.code", e.Finding.Code),
			attribute.String("wpscout.severity", e.Finding.Severity.String()),
			attribute.String("wpscout.title", e.Finding.Title),
		))
	case *events.CompleteEvent:
		span.SetAttributes(
			attribute.String("wpscout.status", e.Status),
			attribute.Int("wpscout.findings", e.Summary.Total),
			attribute.Int64("wpscout.requests", e.Requests),
		)
		if e.Error != "" {
			span.SetStatus(codes.Error, e.Error)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	return nil
}

// Close flushes pending spans and shuts the provider down.
func (h *OTelHook) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.ShutdownTimeout)
	defer cancel()
	return h.tracerProvider.Shutdown(ctx)
}

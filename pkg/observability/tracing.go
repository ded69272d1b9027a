package observability

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ExporterKind selects which trace exporter NewTracerProvider wires up.
type ExporterKind string

const (
	ExporterStdout ExporterKind = "stdout"
	ExporterJaeger ExporterKind = "jaeger"
	ExporterZipkin ExporterKind = "zipkin"
)

// TracingConfig configures NewTracerProvider.
type TracingConfig struct {
	ServiceName string
	Exporter    ExporterKind
	// Endpoint is the collector URL for jaeger/zipkin exporters; ignored
	// for ExporterStdout.
	Endpoint string
}

// NewTracerProvider builds an SDK TracerProvider with the exporter named by
// cfg.Exporter and registers it as the global provider, mirroring how a
// single-binary service wires tracing at startup. The returned shutdown
// func must be called (typically via defer) to flush pending spans.
func NewTracerProvider(cfg TracingConfig) (trace.TracerProvider, func(context.Context) error, error) {
	exporter, err := newSpanExporter(cfg)
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

func newSpanExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterJaeger:
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	case ExporterZipkin:
		return zipkin.New(cfg.Endpoint)
	case ExporterStdout, "":
		return stdouttrace.New()
	default:
		return stdouttrace.New(stdouttrace.WithWriter(io.Discard))
	}
}

// ConnectionTracer wraps the connection-lifecycle calls a Frontend or
// Backend caller makes with spans, using tracer (typically
// otel.Tracer("stormsocket")).
type ConnectionTracer struct {
	tracer trace.Tracer
}

// NewConnectionTracer constructs a ConnectionTracer against tracer.
func NewConnectionTracer(tracer trace.Tracer) *ConnectionTracer {
	return &ConnectionTracer{tracer: tracer}
}

// StartConnect opens a span covering an outbound connect attempt. The
// caller ends it when connectAsync resolves (success or failure).
func (t *ConnectionTracer) StartConnect(ctx context.Context, host string, port uint16) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "storm.connect", trace.WithAttributes(
		attribute.String("net.peer.name", host),
		attribute.Int("net.peer.port", int(port)),
	))
}

// StartSend opens a span covering one SendPacketToConnection call.
func (t *ConnectionTracer) StartSend(ctx context.Context, n int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "storm.send", trace.WithAttributes(
		attribute.Int("message.payload_size_bytes", n),
	))
}

// StartDisconnect opens a span covering cleanup/disconnect processing for
// one connection.
func (t *ConnectionTracer) StartDisconnect(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "storm.disconnect")
}

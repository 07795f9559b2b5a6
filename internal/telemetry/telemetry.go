// Package telemetry sets up the OpenTelemetry tracer provider. Finished
// spans are written to the zap logger; there is no collector dependency.
package telemetry

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// ServiceName is reported as the service.name resource attribute.
const ServiceName = "reviewgraph"

// ZapExporter logs each finished span at debug level, or at warn level when
// the span recorded an error.
type ZapExporter struct {
	logger *zap.Logger

	mu      sync.Mutex
	stopped bool
}

// NewZapExporter exports to logger.
func NewZapExporter(logger *zap.Logger) *ZapExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapExporter{logger: logger.With(zap.String("component", "trace"))}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *ZapExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return errors.New("zap exporter is shut down")
	}

	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields := []zap.Field{
			zap.String("span", s.Name()),
			zap.String("trace_id", s.SpanContext().TraceID().String()),
			zap.String("span_id", s.SpanContext().SpanID().String()),
			zap.Duration("duration", s.EndTime().Sub(s.StartTime())),
		}
		for _, kv := range s.Attributes() {
			fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
		}
		if st := s.Status(); st.Description != "" {
			fields = append(fields, zap.String("status", st.Description))
			e.logger.Warn("span", fields...)
			continue
		}
		e.logger.Debug("span", fields...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *ZapExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	_ = e.logger.Sync()
	return nil
}

// Setup installs a tracer provider exporting to exporter as the global
// provider and returns a shutdown func that flushes it.
func Setup(exporter sdktrace.SpanExporter, version string) (*sdktrace.TracerProvider, func(context.Context) error) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", ServiceName),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown
}

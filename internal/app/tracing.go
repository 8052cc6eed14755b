package app

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// newTracerProvider creates a provider whose finished spans are logged at
// debug level. Callers can add their own exporters with
// RegisterSpanProcessor.
func newTracerProvider(serviceName string, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(&slogExporter{logger: logger}),
	), nil
}

// slogExporter implements sdktrace.SpanExporter by logging span summaries.
type slogExporter struct {
	logger *slog.Logger
}

func (e *slogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := []any{
			"span", s.Name(),
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration", s.EndTime().Sub(s.StartTime()),
			"status", s.Status().Code.String(),
		}
		if s.Parent().IsValid() {
			attrs = append(attrs, "parent_id", s.Parent().SpanID().String())
		}
		e.logger.DebugContext(ctx, "span", attrs...)
	}
	return nil
}

func (e *slogExporter) Shutdown(context.Context) error { return nil }

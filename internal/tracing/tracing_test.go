package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/loubnaelmalali29-code/chip/internal/config"
	"github.com/loubnaelmalali29-code/chip/internal/logger"
)

func TestSetupDisabled(t *testing.T) {
	t.Parallel()

	shutdown, err := Setup(context.Background(), logger.Discard(), config.TracingConfig{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestProviderExportsSpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := newProvider(exporter, "chip-test", 1)
	_, span := tp.Tracer("test").Start(context.Background(), "inbound.handle")
	span.SetAttributes(attribute.String("message_id", "m-1"))
	span.End()

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "inbound.handle" {
		t.Fatalf("unexpected spans: %+v", spans)
	}
	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	if service != "chip-test" {
		t.Fatalf("service.name = %q", service)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestProviderZeroRatioDropsSpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := newProvider(exporter, "", 0)
	_, span := tp.Tracer("test").Start(context.Background(), "dropped")
	span.End()
	_ = tp.ForceFlush(context.Background())
	if n := len(exporter.GetSpans()); n != 0 {
		t.Fatalf("expected no spans, got %d", n)
	}
}

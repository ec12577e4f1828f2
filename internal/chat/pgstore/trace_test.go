package pgstore

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// The global delegating tracer binds to the first provider it is handed,
// so all span assertions share one provider swap.
func TestSpans(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	t.Run("start span attributes", func(t *testing.T) {
		exporter.Reset()

		_, span := startSpan(context.Background(), "pgstore.GetSession", "SELECT")
		span.End()

		spans := exporter.GetSpans()
		if len(spans) != 1 {
			t.Fatalf("spans = %d, want 1", len(spans))
		}
		if spans[0].Name != "pgstore.GetSession" {
			t.Errorf("span name = %q, want %q", spans[0].Name, "pgstore.GetSession")
		}

		attrs := make(map[string]string)
		for _, kv := range spans[0].Attributes {
			attrs[string(kv.Key)] = kv.Value.AsString()
		}
		if attrs["db.system"] != "postgresql" {
			t.Errorf("db.system = %q, want %q", attrs["db.system"], "postgresql")
		}
		if attrs["db.operation.name"] != "SELECT" {
			t.Errorf("db.operation.name = %q, want %q", attrs["db.operation.name"], "SELECT")
		}
	})

	t.Run("span error recorded and returned", func(t *testing.T) {
		exporter.Reset()

		_, span := startSpan(context.Background(), "pgstore.PutSession", "UPSERT")
		orig := errors.New("connection reset")
		got := spanErr(span, orig)
		span.End()

		if !errors.Is(got, orig) {
			t.Errorf("spanErr returned %v, want original error", got)
		}

		spans := exporter.GetSpans()
		if len(spans) != 1 {
			t.Fatalf("spans = %d, want 1", len(spans))
		}
		if spans[0].Status.Code != codes.Error {
			t.Errorf("status code = %v, want Error", spans[0].Status.Code)
		}
		if len(spans[0].Events) == 0 {
			t.Error("expected a recorded error event")
		}
	})
}

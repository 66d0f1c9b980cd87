package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestInitTracing_RecordsSpans verifies spans started through Tracer reach supplied processors
// and that the returned shutdown func flushes without error.
func TestInitTracing_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	shutdown := InitTracing(1.0, recorder)
	defer otel.SetTracerProvider(sdktrace.NewTracerProvider())

	_, span := Tracer().Start(context.Background(), "forecast.fetch")
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	if ended[0].Name() != "forecast.fetch" {
		t.Errorf("span name = %q, want forecast.fetch", ended[0].Name())
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

// TestInitTracing_ZeroRatioDropsRoots verifies a zero sample ratio records nothing.
func TestInitTracing_ZeroRatioDropsRoots(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	shutdown := InitTracing(0, recorder)
	defer otel.SetTracerProvider(sdktrace.NewTracerProvider())
	defer func() { _ = shutdown(context.Background()) }()

	_, span := Tracer().Start(context.Background(), "dropped")
	span.End()

	if n := len(recorder.Ended()); n != 0 {
		t.Errorf("ended spans = %d, want 0", n)
	}
}

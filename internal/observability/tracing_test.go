package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInitTracing_Enabled(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:      true,
		ServiceName:  "poolstore-test",
		SamplingRate: 1,
		Output:       "stderr",
	})
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	if !span.SpanContext().IsValid() {
		t.Error("span context should be valid with an SDK provider")
	}
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

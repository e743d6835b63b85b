package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/quells-bot/chat-session/internal/config"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestSetupDisabled(t *testing.T) {
	restoreGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), &config.Config{TracingEnabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("disabled tracing replaced the global provider")
	}
}

func TestSetupInstallsProvider(t *testing.T) {
	restoreGlobals(t)

	cfg := &config.Config{
		ServiceName:       "chatwidget",
		Environment:       "test",
		TracingEnabled:    true,
		OTLPEndpoint:      "http://localhost:4318",
		TraceSamplingRate: 1,
	}
	shutdown, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("global provider = %T", otel.GetTracerProvider())
	}

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	if TraceID(ctx) == "" || !span.SpanContext().IsSampled() {
		t.Error("span from installed provider is not recorded")
	}
	// The span is never ended so shutdown has nothing to send.

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestExporterOptions(t *testing.T) {
	tests := []struct {
		endpoint string
		want     int
	}{
		{"", 1},
		{"collector:4318", 2},
		{"http://collector:4318/", 2},
		{"https://collector.example.com", 1},
	}
	for _, tt := range tests {
		if got := len(exporterOptions(tt.endpoint)); got != tt.want {
			t.Errorf("exporterOptions(%q) has %d options, want %d", tt.endpoint, got, tt.want)
		}
	}
}

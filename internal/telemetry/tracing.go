package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quells-bot/chat-session/llm"
)

const tracerName = "github.com/quells-bot/chat-session/llm"

// Middleware starts a span around each model call using the global tracer provider.
func Middleware() llm.Middleware {
	return MiddlewareWithProvider(otel.GetTracerProvider())
}

// MiddlewareWithProvider is Middleware with an explicit tracer provider.
func MiddlewareWithProvider(tp trace.TracerProvider) llm.Middleware {
	tracer := tp.Tracer(tracerName)
	return func(ctx context.Context, req *llm.Request, next llm.CompleteFunc) (*llm.Response, error) {
		ctx, span := tracer.Start(ctx, "llm.complete",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("llm.provider", req.Provider),
				attribute.String("llm.model", req.Model),
				attribute.Int("llm.messages", len(req.Messages)),
				attribute.Bool("llm.image", req.HasImage()),
			),
		)
		defer span.End()

		resp, err := next(ctx, req)
		if err != nil {
			if kind, ok := llm.KindOf(err); ok {
				span.SetAttributes(attribute.String("llm.error_kind", kind.String()))
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		span.SetAttributes(
			attribute.String("llm.finish_reason", resp.FinishReason.Reason),
			attribute.Int("llm.usage.input_tokens", resp.Usage.InputTokens),
			attribute.Int("llm.usage.output_tokens", resp.Usage.OutputTokens),
		)
		span.SetStatus(codes.Ok, "")
		return resp, nil
	}
}

// TraceID returns the trace ID of the span in ctx, or "" when there is none.
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

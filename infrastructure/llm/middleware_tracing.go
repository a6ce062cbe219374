package llm

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type tracedLLM struct {
	next   CoreLLM
	tracer trace.Tracer
}

// TracingMiddleware wraps each request in an "llm.request" span carrying
// the provider, model, prompt size, and token usage.
func TracingMiddleware(tracer trace.Tracer) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &tracedLLM{next: next, tracer: tracer}
	}
}

func (t *tracedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, span := t.tracer.Start(ctx, "llm.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", ProviderOf(t.next)),
			attribute.String("llm.model", t.next.GetModel()),
			attribute.Int("llm.prompt.length", len(prompt)),
		),
	)
	defer span.End()

	response, tokensIn, tokensOut, err := t.next.DoRequest(ctx, prompt, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return response, tokensIn, tokensOut, err
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", tokensIn),
		attribute.Int("llm.tokens.output", tokensOut),
	)
	return response, tokensIn, tokensOut, nil
}

func (t *tracedLLM) GetModel() string  { return t.next.GetModel() }
func (t *tracedLLM) SetModel(m string) { t.next.SetModel(m) }
func (t *tracedLLM) Unwrap() CoreLLM   { return t.next }

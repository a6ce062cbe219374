package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

// MetricChatTurn is the latency series recorded per observed question.
const MetricChatTurn = "chat_turn"

var _ ports.QueryService = (*QueryObserver)(nil)

// QueryObserver wraps a QueryService with a span per question, events for
// every failed criterion and expert substitution, and one log line per
// answer. Shells put it in front of the orchestrator.
type QueryObserver struct {
	next    ports.QueryService
	metrics ports.MetricsCollector
	tracer  trace.Tracer
	logger  *zap.Logger
	surface string
}

// NewQueryObserver creates an observer for next. surface names the shell
// ("console", "web") in span attributes and logs. metrics, tracer, and
// logger may be nil.
func NewQueryObserver(
	next ports.QueryService,
	surface string,
	metrics ports.MetricsCollector,
	tracer trace.Tracer,
	logger *zap.Logger,
) *QueryObserver {
	if tracer == nil {
		tracer = otel.Tracer("github.com/ahrav/go-trustrag/infrastructure/middleware")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryObserver{next: next, metrics: metrics, tracer: tracer, logger: logger, surface: surface}
}

// Query implements ports.QueryService.
func (o *QueryObserver) Query(ctx context.Context, question string) (domain.Response, error) {
	ctx, span := o.tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("chat.surface", o.surface),
		attribute.Int("chat.question_length", len(question)),
	))
	defer span.End()

	start := time.Now()
	resp, err := o.next.Query(ctx, question)
	elapsed := time.Since(start)

	if o.metrics != nil {
		o.metrics.RecordLatency(MetricChatTurn, elapsed, map[string]string{"surface": o.surface})
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn("query failed",
			zap.String("surface", o.surface),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return resp, err
	}

	o.addSpanAttributes(span, resp)
	issues := o.recordIssues(span, resp)
	span.SetStatus(codes.Ok, "")

	o.logger.Info("query answered",
		zap.String("surface", o.surface),
		zap.Bool("is_bad_response", resp.IsBadResponse),
		zap.Bool("is_expert_answer", resp.IsExpertAnswer),
		zap.Strings("issues", issues),
		zap.Duration("duration", elapsed))
	return resp, nil
}

func (o *QueryObserver) addSpanAttributes(span trace.Span, resp domain.Response) {
	span.SetAttributes(
		attribute.Bool("rag.is_bad_response", resp.IsBadResponse),
		attribute.Bool("rag.is_expert_answer", resp.IsExpertAnswer),
		attribute.Int("rag.evals", len(resp.Evals)),
		attribute.Int("rag.response_length", len(resp.Response)),
	)
}

// recordIssues adds an event and a counter per failed criterion and
// returns their labels.
func (o *QueryObserver) recordIssues(span trace.Span, resp domain.Response) []string {
	if resp.IsExpertAnswer {
		span.AddEvent("rag.expert_answer")
	}

	var labels []string
	for _, e := range resp.BadEvals() {
		label := domain.IssueLabel(e.Name)
		labels = append(labels, label)
		span.AddEvent("rag.issue", trace.WithAttributes(
			attribute.String("criterion", e.Name),
			attribute.String("label", label),
			attribute.Float64("score", e.Score),
		))
		if o.metrics != nil {
			o.metrics.RecordCounter(MetricIssues, 1, map[string]string{"criterion": e.Name})
		}
	}
	return labels
}

package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

const tracerName = "github.com/ahrav/go-trustrag/internal/application"

// Query outcomes reported in metrics and spans.
const (
	OutcomeGood   = "good"
	OutcomeBad    = "bad"
	OutcomeExpert = "expert"
	OutcomeError  = "error"
)

var _ ports.QueryService = (*RAG)(nil)

// RAG answers questions by retrieving passages, generating a response
// from them, and validating it. A RAG holds no per-query state and is safe
// for concurrent use.
type RAG struct {
	retriever ports.Retriever
	formatter *PromptFormatter
	generator ports.Generator
	validator ports.Validator

	policy  domain.ExpertEvalPolicy
	logger  *zap.Logger
	metrics ports.MetricsCollector
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a RAG.
type Option func(*RAG)

// WithExpertEvalPolicy selects whether evals are kept when an expert
// answer replaces the generated response.
func WithExpertEvalPolicy(policy domain.ExpertEvalPolicy) Option {
	return func(r *RAG) { r.policy = policy }
}

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *RAG) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics ports.MetricsCollector) Option {
	return func(r *RAG) { r.metrics = metrics }
}

// WithTracer sets the tracer used for query and stage spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *RAG) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// NewRAG assembles a pipeline from its stages.
func NewRAG(
	retriever ports.Retriever,
	formatter *PromptFormatter,
	generator ports.Generator,
	validator ports.Validator,
	opts ...Option,
) (*RAG, error) {
	switch {
	case retriever == nil:
		return nil, fmt.Errorf("retriever cannot be nil")
	case formatter == nil:
		return nil, fmt.Errorf("prompt formatter cannot be nil")
	case generator == nil:
		return nil, fmt.Errorf("generator cannot be nil")
	case validator == nil:
		return nil, fmt.Errorf("validator cannot be nil")
	}

	r := &RAG{
		retriever: retriever,
		formatter: formatter,
		generator: generator,
		validator: validator,
		policy:    domain.ExpertEvalsDrop,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Query runs retrieve, generate, and validate for question. When the
// validator supplies an expert answer it replaces the generated response
// and the result is never marked bad. Stage failures are returned as
// *ports.StageError wrapping the upstream error.
func (r *RAG) Query(ctx context.Context, question string) (resp domain.Response, err error) {
	if strings.TrimSpace(question) == "" {
		return domain.Response{}, domain.ErrEmptyQuestion
	}

	ctx, span := r.tracer.Start(ctx, "rag.query")
	defer func() {
		outcome := queryOutcome(resp, err)
		span.SetAttributes(attribute.String("rag.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.count(outcome)
	}()

	var passages []domain.Passage
	err = r.stage(ctx, ports.StageRetrieve, func(ctx context.Context) error {
		var err error
		passages, err = r.retriever.Retrieve(ctx, question)
		return err
	})
	if err != nil {
		return domain.Response{}, err
	}
	r.observe(ports.MetricRetrievedPassages, float64(len(passages)), nil)

	contextText := r.formatter.FormatContext(passages)
	prompt := r.formatter.FormatPrompt(question, contextText)
	r.logger.Debug("retrieved context",
		zap.Int("passages", len(passages)),
		zap.Int("context_length", len(contextText)))

	var generated string
	err = r.stage(ctx, ports.StageGenerate, func(ctx context.Context) error {
		var err error
		generated, err = r.generator.Generate(ctx, prompt)
		return err
	})
	if err != nil {
		return domain.Response{}, err
	}

	var outcome domain.ValidationOutcome
	err = r.stage(ctx, ports.StageValidate, func(ctx context.Context) error {
		var err error
		outcome, err = r.validator.Validate(ctx, question, contextText, generated, r.formatter.FormatPrompt)
		return err
	})
	if err != nil {
		return domain.Response{}, err
	}

	for _, e := range outcome.Evals {
		r.observe(ports.MetricEvalScore, e.Score, map[string]string{"criterion": e.Name})
	}
	r.logger.Debug("validated response",
		zap.Bool("is_bad_response", outcome.IsBadResponse),
		zap.Bool("has_expert_answer", outcome.HasExpertAnswer()),
		zap.Int("evals", len(outcome.Evals)))

	return r.decide(generated, outcome), nil
}

// decide applies the expert-answer override.
func (r *RAG) decide(generated string, outcome domain.ValidationOutcome) domain.Response {
	if outcome.ExpertAnswer != nil {
		evals := []domain.EvalResult{}
		if r.policy == domain.ExpertEvalsKeep {
			evals = append(evals, outcome.Evals...)
		}
		return domain.Response{
			Response:       *outcome.ExpertAnswer,
			IsBadResponse:  false,
			IsExpertAnswer: true,
			Evals:          evals,
		}
	}

	evals := outcome.Evals
	if evals == nil {
		evals = []domain.EvalResult{}
	}
	return domain.Response{
		Response:      generated,
		IsBadResponse: outcome.IsBadResponse,
		Evals:         evals,
	}
}

// stage runs fn in a child span, records its latency, and wraps a failure
// in a StageError.
func (r *RAG) stage(ctx context.Context, stage ports.Stage, fn func(context.Context) error) error {
	ctx, span := r.tracer.Start(ctx, "rag."+string(stage))
	defer span.End()

	start := r.now()
	err := fn(ctx)
	if r.metrics != nil {
		r.metrics.RecordLatency(ports.MetricStageLatency, r.now().Sub(start), map[string]string{"stage": string(stage)})
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Debug("stage failed", zap.String("stage", string(stage)), zap.Error(err))
		return ports.NewStageError(stage, err)
	}
	return nil
}

func (r *RAG) count(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordCounter(ports.MetricQueries, 1, map[string]string{"outcome": outcome})
	}
}

func (r *RAG) observe(metric string, value float64, labels map[string]string) {
	if r.metrics != nil {
		r.metrics.RecordHistogram(metric, value, labels)
	}
}

func queryOutcome(resp domain.Response, err error) string {
	switch {
	case err != nil:
		return OutcomeError
	case resp.IsExpertAnswer:
		return OutcomeExpert
	case resp.IsBadResponse:
		return OutcomeBad
	default:
		return OutcomeGood
	}
}

package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

var _ ports.EvaluationService = (*JudgeService)(nil)

const (
	DefaultJudgeMaxConcurrency = 5
	DefaultJudgeMaxTokens      = 256
	DefaultJudgeTemperature    = 0.0

	tracerName = "github.com/ahrav/go-trustrag/infrastructure/evaluation"
)

// PromptIdentifier labels the full generation prompt for criteria with
// UsesPrompt set.
const PromptIdentifier = "Prompt"

const judgePromptTemplate = `You are an impartial evaluator of a question-answering assistant.
Score the inputs below against this criterion:

{{.Criteria}}
{{range .Inputs}}
<{{.Identifier}}>
{{.Text}}
</{{.Identifier}}>
{{end}}
Give a score between 0.0 (the criterion is not met at all) and 1.0 (the criterion is fully met).`

const judgeFormatSuffix = "\n\nIMPORTANT: You must respond with valid JSON in exactly this format:\n" +
	`{"score": <0.0-1.0>, "reasoning": "<brief explanation>"}`

var judgeTemplate = template.Must(template.New("judge").Parse(judgePromptTemplate))

// JudgeOptions tunes a JudgeService. Zero values select the defaults.
type JudgeOptions struct {
	Temperature    float64
	MaxTokens      int
	MaxConcurrency int
	System         string

	// Thresholds apply when a request carries none.
	Thresholds map[string]float64

	Logger *zap.Logger
	Tracer trace.Tracer
}

// JudgeService is an in-process evaluation service. Each criterion is
// scored by an LLM judge; a response is bad when any criterion falls below
// its threshold. Bad responses are looked up in the expert store.
type JudgeService struct {
	client   ports.LLMClient
	criteria []Criterion
	experts  ports.ExpertAnswerStore
	opts     JudgeOptions
	validate *validator.Validate
	logger   *zap.Logger
	tracer   trace.Tracer
}

type judgeInput struct {
	Identifier string
	Text       string
}

type judgeReply struct {
	Score     *float64 `json:"score" validate:"required,gte=0,lte=1"`
	Reasoning string   `json:"reasoning"`
}

// NewJudgeService creates a judge for criteria. experts may be nil, in which
// case expert_answer is always null.
func NewJudgeService(
	client ports.LLMClient,
	criteria []Criterion,
	experts ports.ExpertAnswerStore,
	opts JudgeOptions,
) (*JudgeService, error) {
	if client == nil {
		return nil, fmt.Errorf("LLM client cannot be nil")
	}
	if len(criteria) == 0 {
		return nil, fmt.Errorf("at least one criterion is required")
	}

	seen := make(map[string]bool, len(criteria))
	for _, c := range criteria {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if c.Name == domain.KeyIsBadResponse || c.Name == domain.KeyExpertAnswer {
			return nil, fmt.Errorf("criterion name %q is reserved", c.Name)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate criterion %q", c.Name)
		}
		seen[c.Name] = true
	}

	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultJudgeMaxConcurrency
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultJudgeMaxTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &JudgeService{
		client:   client,
		criteria: append([]Criterion(nil), criteria...),
		experts:  experts,
		opts:     opts,
		validate: validator.New(),
		logger:   logger,
		tracer:   tracer,
	}, nil
}

// Criteria returns the configured criteria in order.
func (s *JudgeService) Criteria() []Criterion {
	return append([]Criterion(nil), s.criteria...)
}

// Evaluate scores req against every criterion. A judge reply that cannot be
// parsed leaves that criterion's score null; a failed LLM call fails the
// whole evaluation.
func (s *JudgeService) Evaluate(ctx context.Context, req ports.EvaluationRequest) (map[string]any, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, domain.ErrEmptyQuestion
	}

	thresholds := req.Thresholds
	if len(thresholds) == 0 {
		thresholds = s.opts.Thresholds
	}

	scores := make([]*float64, len(s.criteria))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrency)

	for i, c := range s.criteria {
		g.Go(func() error {
			score, err := s.judge(gctx, c, req)
			if err != nil {
				return err
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(map[string]any, len(s.criteria)+2)
	isBad := false
	for i, c := range s.criteria {
		entry := map[string]any{"score": nil, "is_bad": false}
		if scores[i] != nil {
			bad := domain.IsBadScore(c.Name, *scores[i], thresholds)
			entry["score"] = *scores[i]
			entry["is_bad"] = bad
			isBad = isBad || bad
		}
		result[c.Name] = entry
	}
	result[domain.KeyIsBadResponse] = isBad
	result[domain.KeyExpertAnswer] = nil

	if isBad && s.experts != nil {
		answer, found, err := s.experts.Lookup(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("expert lookup: %w", err)
		}
		if found {
			result[domain.KeyExpertAnswer] = answer
		} else if err := s.experts.RecordUnanswered(ctx, req.Query); err != nil {
			s.logger.Warn("failed to record unanswered question", zap.Error(err))
		}
	}

	return result, nil
}

func (s *JudgeService) judge(ctx context.Context, c Criterion, req ports.EvaluationRequest) (*float64, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.judge",
		trace.WithAttributes(attribute.String("criterion", c.Name)))
	defer span.End()

	prompt, err := buildJudgePrompt(c, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	options := map[string]any{
		"temperature":     s.opts.Temperature,
		"max_tokens":      s.opts.MaxTokens,
		"response_format": "json_object",
	}
	if s.opts.System != "" {
		options["system"] = s.opts.System
	}

	reply, err := s.client.Complete(ctx, prompt, options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("judge %s: %w", c.Name, err)
	}

	score, err := s.parseReply(reply)
	if err != nil {
		span.AddEvent("unparseable judge reply")
		s.logger.Warn("discarding judge reply",
			zap.String("criterion", c.Name),
			zap.Int("reply_length", len(reply)),
			zap.Error(err))
		return nil, nil
	}

	span.SetAttributes(attribute.Float64("score", score))
	return &score, nil
}

func (s *JudgeService) parseReply(reply string) (float64, error) {
	jsonStr := extractJSON(reply)
	if jsonStr == "" {
		return 0, fmt.Errorf("%w: no JSON object in judge reply", ports.ErrInvalidResponse)
	}

	var parsed judgeReply
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return 0, fmt.Errorf("%w: %v", ports.ErrInvalidResponse, err)
	}
	if err := s.validate.Struct(parsed); err != nil {
		return 0, fmt.Errorf("%w: %v", ports.ErrInvalidResponse, err)
	}
	return *parsed.Score, nil
}

func buildJudgePrompt(c Criterion, req ports.EvaluationRequest) (string, error) {
	var inputs []judgeInput
	if c.UsesPrompt {
		prompt := req.Prompt
		if prompt == "" {
			prompt = req.Query
		}
		inputs = append(inputs, judgeInput{Identifier: PromptIdentifier, Text: prompt})
	}
	if c.QueryIdentifier != "" && !c.UsesPrompt {
		inputs = append(inputs, judgeInput{Identifier: c.QueryIdentifier, Text: req.Query})
	}
	if c.ContextIdentifier != "" && !c.UsesPrompt {
		inputs = append(inputs, judgeInput{Identifier: c.ContextIdentifier, Text: req.Context})
	}
	if c.ResponseIdentifier != "" {
		inputs = append(inputs, judgeInput{Identifier: c.ResponseIdentifier, Text: req.Response})
	}

	var buf bytes.Buffer
	data := struct {
		Criteria string
		Inputs   []judgeInput
	}{Criteria: c.Criteria, Inputs: inputs}
	if err := judgeTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("criterion %s: render judge prompt: %w", c.Name, err)
	}
	return buf.String() + judgeFormatSuffix, nil
}

// extractJSON returns the first JSON object in response, looking inside
// markdown code fences first.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if nl := strings.Index(response[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(response[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		ch := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}

package application

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-trustrag/infrastructure/cache"
	"github.com/ahrav/go-trustrag/infrastructure/evaluation"
	"github.com/ahrav/go-trustrag/infrastructure/expert"
	"github.com/ahrav/go-trustrag/infrastructure/knowledge"
	"github.com/ahrav/go-trustrag/infrastructure/llm"
	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

// DefaultPolitenessThreshold applies to the politeness criterion when
// custom evals are enabled without an explicit threshold.
const DefaultPolitenessThreshold = 0.7

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second
)

// ClientFactory resolves a "provider/model" spec to an LLM client.
type ClientFactory func(spec string) (ports.LLMClient, error)

// Pipeline is a built RAG together with the collaborators the shells and
// commands use directly.
type Pipeline struct {
	RAG *RAG

	// Store is the knowledge store behind the retriever.
	Store ports.KnowledgeStore
	// Evaluator is nil when validation is disabled.
	Evaluator ports.EvaluationService
	// Experts is nil when the expert store is disabled.
	Experts expert.Store
	// Generator is the configured generation client.
	Generator ports.LLMClient

	closers []func() error
}

// Close releases stores and connections opened by the builder.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PipelineBuilder constructs a Pipeline from configuration. Collaborators
// may be substituted before Build, which tests use to avoid network calls.
type PipelineBuilder struct {
	cfg     *Config
	logger  *zap.Logger
	metrics ports.MetricsCollector
	tracer  trace.Tracer

	clients   ClientFactory
	store     ports.KnowledgeStore
	evaluator ports.EvaluationService
	experts   expert.Store

	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error
}

// NewPipelineBuilder returns a builder for cfg. logger and metrics may be
// nil.
func NewPipelineBuilder(cfg *Config, logger *zap.Logger, metrics ports.MetricsCollector) *PipelineBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PipelineBuilder{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

// WithTracer sets the tracer for LLM requests and query spans.
func (b *PipelineBuilder) WithTracer(tracer trace.Tracer) *PipelineBuilder {
	b.tracer = tracer
	return b
}

// WithClientFactory replaces the provider registry.
func (b *PipelineBuilder) WithClientFactory(f ClientFactory) *PipelineBuilder {
	b.clients = f
	return b
}

// WithKnowledgeStore replaces the configured retrieval backend.
func (b *PipelineBuilder) WithKnowledgeStore(store ports.KnowledgeStore) *PipelineBuilder {
	b.store = store
	return b
}

// WithEvaluationService replaces the configured validation backend.
func (b *PipelineBuilder) WithEvaluationService(svc ports.EvaluationService) *PipelineBuilder {
	b.evaluator = svc
	return b
}

// WithExpertStore replaces the configured expert store.
func (b *PipelineBuilder) WithExpertStore(store expert.Store) *PipelineBuilder {
	b.experts = store
	return b
}

// Build wires every stage. On error anything opened so far is closed.
func (b *PipelineBuilder) Build(ctx context.Context) (p *Pipeline, err error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", domain.ErrInvalidConfiguration)
	}
	cfg := b.cfg

	p = &Pipeline{}
	defer func() {
		if err != nil {
			_ = p.Close()
			p = nil
		}
	}()

	if b.clients == nil {
		registry, err := b.newRegistry()
		if err != nil {
			return nil, err
		}
		b.clients = func(spec string) (ports.LLMClient, error) {
			client, err := registry.GetClient(spec)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}

	if p.Store, err = b.knowledgeStore(ctx, p); err != nil {
		return nil, fmt.Errorf("knowledge store: %w", err)
	}
	retriever, err := NewRetriever(p.Store, cfg.Retrieval.TopK, cfg.Retrieval.SimilarityThreshold)
	if err != nil {
		return nil, err
	}

	formatter, err := NewPromptFormatter("")
	if err != nil {
		return nil, err
	}

	if p.Generator, err = b.clients(cfg.GenerationSpec()); err != nil {
		return nil, fmt.Errorf("generation client: %w", err)
	}
	generator, err := NewGenerator(p.Generator, GenerationOptions{
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
		System:      cfg.Generation.System,
	})
	if err != nil {
		return nil, err
	}

	validator, err := b.validator(p)
	if err != nil {
		return nil, fmt.Errorf("validator: %w", err)
	}

	p.RAG, err = NewRAG(retriever, formatter, generator, validator,
		WithExpertEvalPolicy(cfg.ExpertEvalPolicy()),
		WithLogger(b.logger),
		WithMetrics(b.metrics),
		WithTracer(b.tracer),
	)
	if err != nil {
		return nil, err
	}

	b.logger.Info("pipeline ready",
		zap.String("retrieval", cfg.Retrieval.Backend),
		zap.Int("top_k", retriever.TopK()),
		zap.Float64("threshold", retriever.Threshold()),
		zap.String("generation", cfg.GenerationSpec()),
		zap.Bool("validation", cfg.Validation.Enabled),
		zap.String("expert_eval_policy", string(cfg.ExpertEvalPolicy())))
	return p, nil
}

// Criteria returns the evaluation criteria selected by the configuration.
func (c *Config) Criteria() []evaluation.Criterion {
	criteria := evaluation.DefaultCriteria()
	if c.Validation.CustomEvals {
		criteria = append(criteria, evaluation.CustomCriteria(c.Validation.Company, c.Validation.Competitors)...)
	}
	return append(criteria, c.Validation.Criteria...)
}

// Thresholds returns the bad-response thresholds selected by the
// configuration.
func (c *Config) Thresholds() map[string]float64 {
	thresholds := maps.Clone(c.Validation.Thresholds)
	if thresholds == nil {
		thresholds = make(map[string]float64)
	}
	if c.Validation.CustomEvals {
		if _, ok := thresholds[domain.CriterionPoliteness]; !ok {
			thresholds[domain.CriterionPoliteness] = DefaultPolitenessThreshold
		}
	}
	return thresholds
}

func (b *PipelineBuilder) newRegistry() (*llm.Registry, error) {
	cfg := b.cfg
	var breakerMetrics llm.CircuitBreakerMetrics
	if m, ok := b.metrics.(llm.CircuitBreakerMetrics); ok {
		breakerMetrics = m
	}

	providers := make(map[string]llm.ProviderConfig, len(llm.DefaultProviders))
	for name, pc := range llm.DefaultProviders {
		var mw []llm.Middleware
		if cfg.LLM.BreakerFailures > 0 {
			mw = append(mw, llm.CircuitBreakerMiddlewareWithMetrics(
				name, cfg.LLM.BreakerFailures, cfg.LLM.BreakerCooldown, breakerMetrics))
		}
		if cfg.LLM.RequestsPerSecond > 0 {
			burst := max(cfg.LLM.Burst, 1)
			mw = append(mw, llm.RateLimitMiddleware(rate.Limit(cfg.LLM.RequestsPerSecond), burst))
		}
		pc.Middleware = mw
		providers[name] = pc
	}

	// The first entries are outermost: one span and one metric sample per
	// logical request, retries inside them.
	defaults := []llm.Middleware{llm.TracingMiddleware(b.tracer)}
	if b.metrics != nil {
		defaults = append(defaults, llm.MetricsMiddleware(b.metrics))
	}
	if cfg.LLM.MaxRetries > 0 {
		defaults = append(defaults, llm.RetryMiddleware(cfg.LLM.MaxRetries, retryBaseDelay, retryMaxDelay))
	}
	if cfg.LLM.Timeout > 0 {
		defaults = append(defaults, llm.TimeoutMiddleware(cfg.LLM.Timeout))
	}

	return llm.NewRegistry(llm.RegistryConfig{
		Providers:       providers,
		DefaultProvider: cfg.Generation.Provider,
		Credentials: llm.Credentials{
			OpenAIKey:    cfg.Secrets.OpenAIKey,
			AnthropicKey: cfg.Secrets.AnthropicKey,
			GoogleKey:    cfg.Secrets.GoogleKey,
			AWSRegion:    cfg.Secrets.AWSRegion,
		},
		DefaultTimeout:    cfg.LLM.Timeout,
		DefaultMiddleware: defaults,
	})
}

func (b *PipelineBuilder) aws(ctx context.Context) (aws.Config, error) {
	b.awsOnce.Do(func() {
		b.awsCfg, b.awsErr = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(b.cfg.Secrets.AWSRegion))
		if b.awsErr != nil {
			b.awsErr = fmt.Errorf("load AWS config: %w", b.awsErr)
		}
	})
	return b.awsCfg, b.awsErr
}

func (b *PipelineBuilder) knowledgeStore(ctx context.Context, p *Pipeline) (ports.KnowledgeStore, error) {
	if b.store != nil {
		return b.store, nil
	}

	cfg := b.cfg
	switch cfg.Retrieval.Backend {
	case BackendBedrock:
		awsCfg, err := b.aws(ctx)
		if err != nil {
			return nil, err
		}
		return knowledge.NewBedrockStore(bedrockagentruntime.NewFromConfig(awsCfg), cfg.Secrets.KnowledgeBaseID)

	case BackendWeaviate:
		return knowledge.NewWeaviateStore(knowledge.WeaviateConfig{
			Host:           cfg.Secrets.WeaviateHost,
			Scheme:         cfg.Retrieval.Weaviate.Scheme,
			APIKey:         cfg.Secrets.WeaviateAPIKey,
			Class:          cfg.Retrieval.Weaviate.Class,
			TextProperty:   cfg.Retrieval.Weaviate.TextProperty,
			SourceProperty: cfg.Retrieval.Weaviate.SourceProperty,
		})

	case BackendLocal:
		loc, err := knowledge.ParseLocation(cfg.Retrieval.IndexLocation)
		if err != nil {
			return nil, err
		}
		objects, err := b.ObjectStore(ctx, loc)
		if err != nil {
			return nil, err
		}
		index, err := knowledge.LoadIndex(ctx, loc, objects)
		if err != nil {
			return nil, err
		}
		embedder, err := b.embedder(ctx, p, llm.TaskRetrievalQuery)
		if err != nil {
			return nil, err
		}
		store, err := knowledge.NewLocalStore(index, embedder)
		if err != nil {
			return nil, err
		}
		b.logger.Info("loaded local index", zap.Stringer("location", loc), zap.Int("chunks", store.Len()))
		return store, nil
	}
	return nil, fmt.Errorf("%w: unknown retrieval backend %q", domain.ErrInvalidConfiguration, cfg.Retrieval.Backend)
}

// ObjectStore returns the S3 client that serves loc, or nil for local
// paths.
func (b *PipelineBuilder) ObjectStore(ctx context.Context, loc knowledge.Location) (knowledge.ObjectAPI, error) {
	if !loc.IsS3() {
		return nil, nil
	}
	awsCfg, err := b.aws(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg), nil
}

// Embedder builds the configured embedder for taskType without caching.
func (b *PipelineBuilder) Embedder(taskType string) (ports.Embedder, error) {
	cfg := b.cfg
	clientCfg := llm.ClientConfig{Model: cfg.Retrieval.Embedding.Model, Timeout: cfg.LLM.Timeout}
	switch cfg.Retrieval.Embedding.Provider {
	case "openai":
		clientCfg.APIKey = cfg.Secrets.OpenAIKey
		return llm.NewOpenAIEmbedder(clientCfg)
	case "google", "":
		clientCfg.APIKey = cfg.Secrets.GoogleKey
		return llm.NewGoogleEmbedder(clientCfg, taskType)
	}
	return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrInvalidConfiguration, cfg.Retrieval.Embedding.Provider)
}

func (b *PipelineBuilder) embedder(ctx context.Context, p *Pipeline, taskType string) (ports.Embedder, error) {
	embedder, err := b.Embedder(taskType)
	if err != nil {
		return nil, err
	}

	cfg := b.cfg
	var store ports.CacheStore
	switch cfg.Cache.Backend {
	case "", "none":
		return embedder, nil
	case "memory":
		store = cache.NewMemoryStore()
	case "redis":
		redisStore, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:      cfg.Secrets.RedisAddr,
			Password:  cfg.Secrets.RedisPassword,
			DB:        cfg.Cache.DB,
			KeyPrefix: cfg.Cache.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, redisStore.Close)
		store = redisStore
	default:
		return nil, fmt.Errorf("%w: unknown cache backend %q", domain.ErrInvalidConfiguration, cfg.Cache.Backend)
	}
	return knowledge.NewCachedEmbedder(embedder, store, cfg.Cache.TTL, b.logger), nil
}

// OpenExpertStore opens the configured expert store. It returns nil when
// the store is disabled.
func OpenExpertStore(cfg ExpertsConfig) (expert.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	matcher := expert.Matcher{Threshold: cfg.MatchThreshold}
	switch cfg.Backend {
	case "memory":
		return expert.NewMemoryStore(matcher), nil
	case "sqlite", "":
		return expert.NewSQLiteStore(cfg.Path, matcher)
	}
	return nil, fmt.Errorf("%w: unknown expert backend %q", domain.ErrInvalidConfiguration, cfg.Backend)
}

func (b *PipelineBuilder) validator(p *Pipeline) (ports.Validator, error) {
	cfg := b.cfg
	if !cfg.Validation.Enabled {
		return PassThroughValidator{}, nil
	}

	experts := b.experts
	if experts == nil {
		var err error
		if experts, err = OpenExpertStore(cfg.Experts); err != nil {
			return nil, err
		}
		if experts != nil {
			p.closers = append(p.closers, experts.Close)
		}
	}
	p.Experts = experts

	criteria := cfg.Criteria()
	service := b.evaluator
	if service == nil {
		var err error
		switch cfg.Validation.Backend {
		case ValidationRemote:
			service, err = evaluation.NewRemoteService(evaluation.RemoteConfig{
				URL:     cfg.Secrets.EvalServiceURL,
				Token:   cfg.Secrets.EvalToken,
				Timeout: cfg.Validation.Timeout,
			})
		case ValidationJudge, "":
			service, err = b.judge(criteria, experts)
		default:
			err = fmt.Errorf("%w: unknown validation backend %q", domain.ErrInvalidConfiguration, cfg.Validation.Backend)
		}
		if err != nil {
			return nil, err
		}
	}
	p.Evaluator = service

	if timeout := cfg.Validation.Timeout; timeout > 0 {
		inner := service
		service = ports.EvaluationServiceFunc(func(ctx context.Context, req ports.EvaluationRequest) (map[string]any, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return inner.Evaluate(ctx, req)
		})
	}

	return NewValidator(service, cfg.Thresholds(), WithCriteriaOrder(evaluation.CriteriaOrder(criteria)))
}

func (b *PipelineBuilder) judge(criteria []evaluation.Criterion, experts expert.Store) (*evaluation.JudgeService, error) {
	cfg := b.cfg
	client, err := b.clients(cfg.JudgeSpec())
	if err != nil {
		return nil, fmt.Errorf("judge client: %w", err)
	}

	var store ports.ExpertAnswerStore
	if experts != nil {
		store = experts
	}
	return evaluation.NewJudgeService(client, criteria, store, evaluation.JudgeOptions{
		Temperature:    cfg.Validation.Judge.Temperature,
		MaxTokens:      cfg.Validation.Judge.MaxTokens,
		MaxConcurrency: cfg.Validation.Judge.MaxConcurrency,
		Thresholds:     cfg.Thresholds(),
		Logger:         b.logger.Named("judge"),
		Tracer:         b.tracer,
	})
}

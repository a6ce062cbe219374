// Package application wires the question-answering pipeline: retrieval,
// prompt formatting, generation, validation, and the orchestrator that
// runs them, together with the configuration that selects backends.
package application

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-trustrag/infrastructure/evaluation"
	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

// Retrieval backends.
const (
	BackendBedrock  = "bedrock"
	BackendWeaviate = "weaviate"
	BackendLocal    = "local"
)

// Validation backends.
const (
	ValidationJudge  = "judge"
	ValidationRemote = "remote"
)

// Environment variables read by LoadConfig.
const (
	EnvAWSRegion       = "AWS_REGION"
	EnvKnowledgeBaseID = "RAG_KNOWLEDGE_BASE_ID"
	EnvModelID         = "RAG_MODEL_ID"
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvAnthropicKey    = "ANTHROPIC_API_KEY"
	EnvGoogleKey       = "GOOGLE_API_KEY"
	EnvWeaviateHost    = "WEAVIATE_HOST"
	EnvWeaviateAPIKey  = "WEAVIATE_API_KEY"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvRedisPassword   = "REDIS_PASSWORD"
	EnvEvalServiceURL  = "EVALUATION_SERVICE_URL"
	EnvEvalToken       = "EVALUATION_SERVICE_TOKEN"
	EnvConfigPath      = "TRUSTRAG_CONFIG"
)

// Defaults applied before the YAML file is decoded.
const (
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.3
	DefaultEmbeddingModel      = "text-embedding-004"
	DefaultServerAddr          = ":8080"
	DefaultCompanyName         = "Cursor"
)

// DefaultCompetitors are used by the related_to_competitor criterion when
// none are configured.
var DefaultCompetitors = []string{"VSCode", "JetBrains", "Codeium Windsurf"}

// DefaultThresholds maps criteria to the minimum acceptable score.
func DefaultThresholds() map[string]float64 {
	return map[string]float64{
		domain.CriterionTrustworthiness:     0.75,
		domain.CriterionResponseHelpfulness: 0.75,
	}
}

// Config is the complete runtime configuration.
type Config struct {
	Retrieval  RetrievalConfig  `yaml:"retrieval" validate:"required"`
	Generation GenerationConfig `yaml:"generation" validate:"required"`
	Validation ValidationConfig `yaml:"validation"`
	Experts    ExpertsConfig    `yaml:"experts"`
	Cache      CacheConfig      `yaml:"cache"`
	LLM        LLMConfig        `yaml:"llm"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`

	// Secrets are only read from the environment.
	Secrets Secrets `yaml:"-"`
}

// RetrievalConfig selects the knowledge store and the retrieval parameters.
type RetrievalConfig struct {
	// Backend is one of bedrock, weaviate, or local.
	Backend string `yaml:"backend" validate:"required,retrieval_backend"`
	// TopK is the number of passages requested from the store.
	TopK int `yaml:"top_k" validate:"min=1,max=100"`
	// SimilarityThreshold drops passages scoring below it.
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"min=0,max=1"`
	// IndexLocation is a file path or s3://bucket/key for the local backend.
	IndexLocation string          `yaml:"index_location"`
	Embedding     EmbeddingConfig `yaml:"embedding"`
	Weaviate      WeaviateConfig  `yaml:"weaviate"`
}

// EmbeddingConfig selects the query embedder for the local backend.
type EmbeddingConfig struct {
	Provider string `yaml:"provider" validate:"omitempty,oneof=google openai"`
	Model    string `yaml:"model"`
}

// WeaviateConfig names the class searched by the weaviate backend. The
// host and API key come from the environment.
type WeaviateConfig struct {
	Scheme         string `yaml:"scheme" validate:"omitempty,oneof=http https"`
	Class          string `yaml:"class"`
	TextProperty   string `yaml:"text_property"`
	SourceProperty string `yaml:"source_property"`
}

// GenerationConfig selects the model that answers questions.
type GenerationConfig struct {
	// Provider is a registered LLM provider name.
	Provider    string   `yaml:"provider" validate:"required,provider"`
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens" validate:"omitempty,min=1,max=32000"`
	Temperature *float64 `yaml:"temperature" validate:"omitempty,min=0,max=2"`
	System      string   `yaml:"system"`
}

// ValidationConfig controls response evaluation.
type ValidationConfig struct {
	// Enabled false wires a pass-through validator.
	Enabled bool `yaml:"enabled"`
	// Backend is judge (in-process) or remote.
	Backend string `yaml:"backend" validate:"omitempty,oneof=judge remote"`
	// Thresholds maps criterion names to minimum scores.
	Thresholds map[string]float64 `yaml:"thresholds" validate:"dive,keys,criterion,endkeys,min=0,max=1"`
	// ExpertEvalPolicy is drop or keep.
	ExpertEvalPolicy string `yaml:"expert_eval_policy" validate:"expert_policy"`
	// CustomEvals adds the competitor and politeness criteria.
	CustomEvals bool     `yaml:"custom_evals"`
	Company     string   `yaml:"company"`
	Competitors []string `yaml:"competitors" validate:"dive,required"`
	// Criteria are appended after the built-in ones.
	Criteria []evaluation.Criterion `yaml:"criteria" validate:"dive"`
	Judge    JudgeConfig            `yaml:"judge"`
	Timeout  time.Duration          `yaml:"timeout"`
}

// JudgeConfig configures the in-process judge.
type JudgeConfig struct {
	Provider       string  `yaml:"provider" validate:"omitempty,provider"`
	Model          string  `yaml:"model"`
	MaxConcurrency int     `yaml:"max_concurrency" validate:"omitempty,min=1,max=20"`
	MaxTokens      int     `yaml:"max_tokens" validate:"omitempty,min=50,max=2000"`
	Temperature    float64 `yaml:"temperature" validate:"min=0,max=1"`
}

// ExpertsConfig configures the expert-answer store.
type ExpertsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend" validate:"omitempty,oneof=sqlite memory"`
	// Path is the SQLite database file.
	Path           string  `yaml:"path"`
	MatchThreshold float64 `yaml:"match_threshold" validate:"min=0,max=1"`
}

// CacheConfig configures the query-embedding cache.
type CacheConfig struct {
	Backend   string        `yaml:"backend" validate:"omitempty,oneof=none memory redis"`
	TTL       time.Duration `yaml:"ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
	DB        int           `yaml:"db" validate:"min=0,max=15"`
}

// LLMConfig configures the middleware applied to every LLM client.
type LLMConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries" validate:"min=0,max=10"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"min=0"`
	Burst             int           `yaml:"burst" validate:"min=0"`
	// BreakerFailures trips the circuit breaker after that many consecutive
	// failures. Zero disables the breaker.
	BreakerFailures int           `yaml:"breaker_failures" validate:"min=0"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// ServerConfig configures the web shell.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// ServeEvaluations exposes POST /api/evaluate.
	ServeEvaluations bool `yaml:"serve_evaluations"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio" validate:"min=0,max=1"`
}

// Secrets holds values taken from the environment only.
type Secrets struct {
	AWSRegion       string
	KnowledgeBaseID string
	OpenAIKey       string
	AnthropicKey    string
	GoogleKey       string
	WeaviateHost    string
	WeaviateAPIKey  string
	RedisAddr       string
	RedisPassword   string
	EvalServiceURL  string
	EvalToken       string
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Retrieval: RetrievalConfig{
			Backend:             BackendBedrock,
			TopK:                DefaultTopK,
			SimilarityThreshold: DefaultSimilarityThreshold,
			Embedding:           EmbeddingConfig{Provider: "google", Model: DefaultEmbeddingModel},
			Weaviate:            WeaviateConfig{Scheme: "https"},
		},
		Generation: GenerationConfig{
			Provider:  "bedrock",
			MaxTokens: 1024,
		},
		Validation: ValidationConfig{
			Enabled:          true,
			Backend:          ValidationJudge,
			Thresholds:       DefaultThresholds(),
			ExpertEvalPolicy: string(domain.ExpertEvalsDrop),
			Company:          DefaultCompanyName,
			Competitors:      append([]string(nil), DefaultCompetitors...),
			Judge: JudgeConfig{
				MaxConcurrency: evaluation.DefaultJudgeMaxConcurrency,
				MaxTokens:      evaluation.DefaultJudgeMaxTokens,
			},
			Timeout: 60 * time.Second,
		},
		Experts: ExpertsConfig{
			Enabled:        true,
			Backend:        "sqlite",
			Path:           "experts.db",
			MatchThreshold: 0.9,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     24 * time.Hour,
		},
		LLM: LLMConfig{
			Timeout:         60 * time.Second,
			MaxRetries:      3,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Tracing: TracingConfig{ServiceName: "trustrag", SampleRatio: 1},
	}
}

// LoadConfig reads path (optional), overlays the environment, and
// validates the result. A .env file in the working directory is loaded
// first when present. An empty path uses $TRUSTRAG_CONFIG or the defaults.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ports.NewConfigError(path, ports.ErrConfigNotFound)
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment values onto c.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	c.Secrets = Secrets{
		AWSRegion:       get(EnvAWSRegion),
		KnowledgeBaseID: get(EnvKnowledgeBaseID),
		OpenAIKey:       get(EnvOpenAIKey),
		AnthropicKey:    get(EnvAnthropicKey),
		GoogleKey:       get(EnvGoogleKey),
		WeaviateHost:    get(EnvWeaviateHost),
		WeaviateAPIKey:  get(EnvWeaviateAPIKey),
		RedisAddr:       get(EnvRedisAddr),
		RedisPassword:   get(EnvRedisPassword),
		EvalServiceURL:  get(EnvEvalServiceURL),
		EvalToken:       get(EnvEvalToken),
	}

	if model := get(EnvModelID); model != "" {
		c.Generation.Model = model
	}
	if v := get("TRUSTRAG_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			c.Retrieval.TopK = k
		}
	}
	if v := get("TRUSTRAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks struct constraints and that every secret required by the
// selected backends is present.
func (c *Config) Validate() error {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		verr := &domain.ValidationError{Entity: "config"}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				verr.AddErrorf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
			}
		} else {
			verr.AddError(err.Error())
		}
		return verr
	}
	return c.checkSecrets()
}

// ExpertEvalPolicy returns the parsed policy.
func (c *Config) ExpertEvalPolicy() domain.ExpertEvalPolicy {
	policy, err := domain.ParseExpertEvalPolicy(c.Validation.ExpertEvalPolicy)
	if err != nil {
		return domain.ExpertEvalsDrop
	}
	return policy
}

// JudgeSpec returns the "provider/model" used for judging. It falls back
// to the generation model.
func (c *Config) JudgeSpec() string {
	provider, model := c.Validation.Judge.Provider, c.Validation.Judge.Model
	if provider == "" {
		provider, model = c.Generation.Provider, c.Generation.Model
	}
	if model == "" {
		return provider
	}
	return provider + "/" + model
}

// GenerationSpec returns the "provider/model" used for generation.
func (c *Config) GenerationSpec() string {
	if c.Generation.Model == "" {
		return c.Generation.Provider
	}
	return c.Generation.Provider + "/" + c.Generation.Model
}

func (c *Config) checkSecrets() error {
	var missing []string
	need := func(ok bool, key string) {
		if !ok && !slices.Contains(missing, key) {
			missing = append(missing, key)
		}
	}

	providers := []string{c.Generation.Provider}
	if c.Validation.Enabled && c.Validation.Backend == ValidationJudge {
		if p := c.Validation.Judge.Provider; p != "" {
			providers = append(providers, p)
		}
	}
	if c.Retrieval.Backend == BackendLocal && c.Retrieval.Embedding.Provider != "" {
		providers = append(providers, c.Retrieval.Embedding.Provider)
	}
	for _, p := range providers {
		switch p {
		case "openai":
			need(c.Secrets.OpenAIKey != "", EnvOpenAIKey)
		case "anthropic":
			need(c.Secrets.AnthropicKey != "", EnvAnthropicKey)
		case "google":
			need(c.Secrets.GoogleKey != "", EnvGoogleKey)
		case "bedrock":
			need(c.Secrets.AWSRegion != "", EnvAWSRegion)
		}
	}

	switch c.Retrieval.Backend {
	case BackendBedrock:
		need(c.Secrets.AWSRegion != "", EnvAWSRegion)
		need(c.Secrets.KnowledgeBaseID != "", EnvKnowledgeBaseID)
	case BackendWeaviate:
		need(c.Secrets.WeaviateHost != "", EnvWeaviateHost)
		if c.Retrieval.Weaviate.Class == "" {
			return ports.NewConfigError("retrieval.weaviate.class", ports.ErrConfigNotFound)
		}
	case BackendLocal:
		if c.Retrieval.IndexLocation == "" {
			return ports.NewConfigError("retrieval.index_location", ports.ErrConfigNotFound)
		}
		if strings.HasPrefix(c.Retrieval.IndexLocation, "s3://") {
			need(c.Secrets.AWSRegion != "", EnvAWSRegion)
		}
	}

	if c.Cache.Backend == "redis" {
		need(c.Secrets.RedisAddr != "", EnvRedisAddr)
	}
	if c.Validation.Enabled && c.Validation.Backend == ValidationRemote {
		need(c.Secrets.EvalServiceURL != "", EnvEvalServiceURL)
	}

	if len(missing) > 0 {
		return ports.NewConfigError(strings.Join(missing, ", "),
			fmt.Errorf("%w: missing required environment variable", ports.ErrConfigNotFound))
	}
	return nil
}

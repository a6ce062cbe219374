package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

const (
	GoogleDefaultModel = "gemini-2.0-flash"
	// GoogleDefaultEmbeddingModel matches the index builder's default.
	GoogleDefaultEmbeddingModel = "text-embedding-004"
)

// Gemini embedding task types. Queries and documents are embedded
// asymmetrically.
const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements CoreLLM on the Gemini API.
type googleProvider struct {
	BaseProvider
	client          *genai.Client
	errorClassifier *ErrorClassifier
}

func newGenAIClient(config ClientConfig) (*genai.Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		baseURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		cc.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	return client, nil
}

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	client, err := newGenAIClient(config)
	if err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	return &googleProvider{
		BaseProvider:    BaseProvider{name: "google", model: model},
		client:          client,
		errorClassifier: &ErrorClassifier{Provider: "google"},
	}, nil
}

// DoRequest sends prompt as a single user turn.
func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, options.Model, contents, p.buildGenerationConfig(options))
	if err != nil {
		return "", 0, 0, classifyGoogleError(p.errorClassifier, err)
	}

	content := resp.Text()
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	var in, out int32
	if resp.UsageMetadata != nil {
		in, out = resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount
	}
	return content, tokenCount(in, prompt), tokenCount(out, content), nil
}

func (p *googleProvider) buildGenerationConfig(options RequestOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if options.System != "" {
		config.SystemInstruction = genai.NewContentFromText(options.System, genai.RoleUser)
	}
	if options.Temperature != nil {
		config.Temperature = genai.Ptr(float32(clamp(*options.Temperature, MinTemperature, MaxTemperature)))
	}
	if options.MaxTokens > 0 {
		config.MaxOutputTokens = int32(min(options.MaxTokens, math.MaxInt32))
	}
	if options.TopP != nil {
		config.TopP = genai.Ptr(float32(clamp(*options.TopP, MinTopP, MaxTopP)))
	}
	if topK, ok := options.Extra["top_k"].(int); ok {
		config.TopK = genai.Ptr(float32(clamp(topK, 1, 40)))
	}
	if format, ok := options.Extra["response_format"].(string); ok && format == "json_object" {
		config.ResponseMIMEType = "application/json"
	}

	return config
}

func classifyGoogleError(ec *ErrorClassifier, err error) error {
	if isContextError(err) {
		return ec.ClassifyContextError(err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}
		if isContentPolicyError(apiErr) {
			return NewProviderError(ec.Provider, ErrorTypeContentPolicy, apiErr.Code,
				"request blocked by safety filters", err)
		}
		return ec.ClassifyHTTPError(apiErr.Code, message, err)
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return ec.ClassifyHTTPError(genaiErr.Code, genaiErr.Message, err)
	}

	return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "request failed", err)
}

func isContentPolicyError(apiErr *googleapi.Error) bool {
	lower := strings.ToLower(apiErr.Message)
	if strings.Contains(lower, "safety") || strings.Contains(lower, "blocked") {
		return true
	}
	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}
	return false
}

// GoogleEmbedder computes embeddings with the Gemini embedding models.
type GoogleEmbedder struct {
	client          *genai.Client
	model           string
	taskType        string
	errorClassifier *ErrorClassifier
}

// NewGoogleEmbedder creates an embedder for taskType, one of
// TaskRetrievalQuery or TaskRetrievalDocument. An empty model selects
// GoogleDefaultEmbeddingModel.
func NewGoogleEmbedder(config ClientConfig, taskType string) (*GoogleEmbedder, error) {
	client, err := newGenAIClient(config)
	if err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultEmbeddingModel
	}

	return &GoogleEmbedder{
		client:          client,
		model:           model,
		taskType:        taskType,
		errorClassifier: &ErrorClassifier{Provider: "google"},
	}, nil
}

// Embed returns one vector per text in input order.
func (e *GoogleEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{TaskType: e.taskType})
	if err != nil {
		return nil, classifyGoogleError(e.errorClassifier, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("google returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Model returns the embedding model identifier.
func (e *GoogleEmbedder) Model() string { return e.model }

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const (
	OpenAIDefaultModel          = "gpt-4o-mini"
	OpenAIDefaultEmbeddingModel = "text-embedding-3-small"
)

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

// openAIProvider implements CoreLLM on the chat completions API.
type openAIProvider struct {
	BaseProvider
	client          *openai.Client
	errorClassifier *ErrorClassifier
}

func newOpenAIClient(config ClientConfig) (*openai.Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	clientConfig := openai.DefaultConfig(config.APIKey)

	if config.BaseURL != "" {
		validatedURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		clientConfig.BaseURL = validatedURL
	}

	if timeout := ValidateTimeout(config.Timeout); timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	}

	return openai.NewClientWithConfig(clientConfig), nil
}

func newOpenAIProvider(config ClientConfig) (CoreLLM, error) {
	client, err := newOpenAIClient(config)
	if err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	return &openAIProvider{
		BaseProvider:    BaseProvider{name: "openai", model: model},
		client:          client,
		errorClassifier: &ErrorClassifier{Provider: "openai"},
	}, nil
}

// DoRequest sends a single-turn chat completion.
func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	resp, err := p.client.CreateChatCompletion(ctx, p.buildChatCompletionRequest(prompt, options))
	if err != nil {
		return "", 0, 0, classifyOpenAIError(p.errorClassifier, err)
	}

	if len(resp.Choices) == 0 {
		return "", 0, 0, ErrNoResponseChoice
	}

	content := resp.Choices[0].Message.Content
	return content, tokenCount(resp.Usage.PromptTokens, prompt), tokenCount(resp.Usage.CompletionTokens, content), nil
}

func (p *openAIProvider) buildChatCompletionRequest(prompt string, options RequestOptions) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if options.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: options.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:     options.Model,
		Messages:  messages,
		MaxTokens: options.MaxTokens,
	}

	if options.Temperature != nil {
		req.Temperature = float32(clamp(*options.Temperature, MinTemperature, MaxTemperature))
	}
	if options.TopP != nil {
		req.TopP = float32(clamp(*options.TopP, MinTopP, MaxTopP))
	}
	if v, ok := options.Extra["frequency_penalty"]; ok {
		if penalty, valid := SafeFloat32(v); valid {
			req.FrequencyPenalty = float32(clamp(float64(penalty), MinPenalty, MaxPenalty))
		}
	}
	if v, ok := options.Extra["presence_penalty"]; ok {
		if penalty, valid := SafeFloat32(v); valid {
			req.PresencePenalty = float32(clamp(float64(penalty), MinPenalty, MaxPenalty))
		}
	}
	if format, ok := options.Extra["response_format"].(string); ok && format == "json_object" {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	return req
}

func classifyOpenAIError(ec *ErrorClassifier, err error) error {
	if isContextError(err) {
		return ec.ClassifyContextError(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "unknown error"
		}
		return ec.ClassifyHTTPError(apiErr.HTTPStatusCode, message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ec.ClassifyHTTPError(reqErr.HTTPStatusCode, "request failed", err)
	}

	return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "request failed", err)
}

// OpenAIEmbedder computes embeddings with the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client          *openai.Client
	model           string
	errorClassifier *ErrorClassifier
}

// NewOpenAIEmbedder creates an embedder. An empty model selects
// OpenAIDefaultEmbeddingModel.
func NewOpenAIEmbedder(config ClientConfig) (*OpenAIEmbedder, error) {
	client, err := newOpenAIClient(config)
	if err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = OpenAIDefaultEmbeddingModel
	}

	return &OpenAIEmbedder{
		client:          client,
		model:           model,
		errorClassifier: &ErrorClassifier{Provider: "openai"},
	}, nil
}

// Embed returns one vector per text in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, classifyOpenAIError(e.errorClassifier, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai returned embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Model returns the embedding model identifier.
func (e *OpenAIEmbedder) Model() string { return e.model }

package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ahrav/go-trustrag/infrastructure/llm"
	"github.com/ahrav/go-trustrag/internal/ports"
)

var _ ports.EvaluationService = (*RemoteService)(nil)

const (
	DefaultRemoteTimeout = 60 * time.Second
	// maxResponseBytes bounds the decoded evaluation body.
	maxResponseBytes = 1 << 20
)

// RemoteConfig configures a RemoteService.
type RemoteConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
}

// RemoteService calls an evaluation service over HTTP. The request body is
// a JSON ports.EvaluationRequest and the reply is the raw evaluation
// mapping.
type RemoteService struct {
	url        string
	token      string
	httpClient *http.Client
	classifier *llm.ErrorClassifier
}

// NewRemoteService validates config and returns a client.
func NewRemoteService(config RemoteConfig) (*RemoteService, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("evaluation service URL cannot be empty")
	}
	url, err := llm.ValidateBaseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid evaluation service URL: %w", err)
	}

	client := config.HTTPClient
	if client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = DefaultRemoteTimeout
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &RemoteService{
		url:        url,
		token:      config.Token,
		httpClient: client,
		classifier: &llm.ErrorClassifier{Provider: "evaluation"},
	}, nil
}

// Evaluate posts req and decodes the evaluation mapping.
func (s *RemoteService) Evaluate(ctx context.Context, req ports.EvaluationRequest) (map[string]any, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode evaluation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build evaluation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, s.classifier.ClassifyContextError(err)
		}
		return nil, llm.NewProviderError(s.classifier.Provider, llm.ErrorTypeNetwork, 0, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read evaluation response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := strings.TrimSpace(string(data))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, s.classifier.ClassifyHTTPError(resp.StatusCode, message,
			fmt.Errorf("evaluation service returned %s", resp.Status))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty evaluation response", ports.ErrInvalidResponse)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode evaluation response: %v", ports.ErrInvalidResponse, err)
	}
	return raw, nil
}

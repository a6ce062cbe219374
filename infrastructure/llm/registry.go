package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Credentials carries the secrets and locations providers need. Values are
// resolved by the configuration layer; the registry never reads the
// environment itself.
type Credentials struct {
	OpenAIKey    string
	AnthropicKey string
	GoogleKey    string
	// AWSRegion enables the bedrock provider.
	AWSRegion string
}

// ProviderConfig describes how the registry builds clients for one provider.
type ProviderConfig struct {
	// Type is the name the provider factory is registered under.
	Type         string
	DefaultModel string
	BaseURL      string
	Middleware   []Middleware
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Providers         map[string]ProviderConfig
	DefaultProvider   string
	Credentials       Credentials
	DefaultTimeout    time.Duration
	DefaultMiddleware []Middleware
}

// DefaultProviders lists the built-in providers with sensible default models.
var DefaultProviders = map[string]ProviderConfig{
	"openai":    {Type: "openai", DefaultModel: OpenAIDefaultModel},
	"anthropic": {Type: "anthropic", DefaultModel: AnthropicDefaultModel},
	"google":    {Type: "google", DefaultModel: GoogleDefaultModel},
	"bedrock":   {Type: "bedrock", DefaultModel: "anthropic.claude-3-haiku-20240307-v1:0"},
}

// Registry builds and caches one client per "provider/model" pair. The
// generator and the LLM judges resolve their models through a shared
// registry so that they share middleware such as rate limiters.
type Registry struct {
	mu                sync.RWMutex
	providers         map[string]ProviderConfig
	clients           map[string]*Client
	credentials       Credentials
	defaultProvider   string
	defaultMiddleware []Middleware
	defaultTimeout    time.Duration
}

// NewRegistry validates config and returns an empty registry.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.DefaultProvider == "" {
		return nil, fmt.Errorf("default provider cannot be empty")
	}
	if _, ok := config.Providers[config.DefaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q not found in providers configuration", config.DefaultProvider)
	}

	return &Registry{
		providers:         config.Providers,
		clients:           make(map[string]*Client),
		credentials:       config.Credentials,
		defaultProvider:   config.DefaultProvider,
		defaultMiddleware: config.DefaultMiddleware,
		defaultTimeout:    config.DefaultTimeout,
	}, nil
}

// ParseSpec splits "provider/model" into its parts. A bare provider name
// returns an empty model. Bedrock model IDs may themselves contain "/", so
// only the first separator is significant.
func ParseSpec(spec string) (provider, model string) {
	provider, model, _ = strings.Cut(spec, "/")
	return provider, model
}

// GetDefaultClient returns the client for the default provider and model.
func (r *Registry) GetDefaultClient() (*Client, error) {
	return r.GetClient(r.defaultProvider)
}

// GetClient returns the client for spec, creating it on first use. spec is
// either "provider" (default model) or "provider/model".
func (r *Registry) GetClient(spec string) (*Client, error) {
	if spec == "" {
		return nil, fmt.Errorf("provider specification cannot be empty; use GetDefaultClient() for default provider")
	}

	provider, model := ParseSpec(spec)
	pc, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if model == "" {
		model = pc.DefaultModel
	}
	key := provider + "/" + model

	r.mu.RLock()
	client, ok := r.clients[key]
	r.mu.RUnlock()
	if ok {
		return client, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[key]; ok {
		return client, nil
	}

	client, err := r.createClient(pc, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create client %q: %w", key, err)
	}
	r.clients[key] = client
	return client, nil
}

func (r *Registry) createClient(pc ProviderConfig, model string) (*Client, error) {
	config := ClientConfig{
		Model:      model,
		BaseURL:    pc.BaseURL,
		Timeout:    r.defaultTimeout,
		Middleware: append(append([]Middleware{}, r.defaultMiddleware...), pc.Middleware...),
	}

	switch pc.Type {
	case "openai":
		config.APIKey = r.credentials.OpenAIKey
	case "anthropic":
		config.APIKey = r.credentials.AnthropicKey
	case "google":
		config.APIKey = r.credentials.GoogleKey
	case "bedrock":
		config.Region = r.credentials.AWSRegion
	}

	return NewClient(pc.Type, config)
}

// RegisterClient installs a prebuilt client under spec, replacing any
// cached one. Tests use it to substitute fakes.
func (r *Registry) RegisterClient(spec string, client *Client) error {
	provider, model := ParseSpec(spec)
	pc, ok := r.providers[provider]
	if !ok {
		return fmt.Errorf("unknown provider %q", provider)
	}
	if model == "" {
		model = pc.DefaultModel
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[provider+"/"+model] = client
	return nil
}

// CachedClients lists the "provider/model" keys of clients created so far.
func (r *Registry) CachedClients() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.clients))
	for k := range r.clients {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

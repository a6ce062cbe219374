package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"

	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

var _ ports.KnowledgeStore = (*WeaviateStore)(nil)

// WeaviateConfig configures a WeaviateStore.
type WeaviateConfig struct {
	Host   string
	Scheme string
	APIKey string

	// Class is the collection holding the chunks.
	Class string

	// TextProperty and SourceProperty name the chunk text and origin
	// properties. They default to "content" and "source".
	TextProperty   string
	SourceProperty string
}

// WeaviateStore searches a Weaviate class with nearText. The class must
// have a text vectorizer module configured.
type WeaviateStore struct {
	client     *weaviate.Client
	class      string
	textProp   string
	sourceProp string
}

// NewWeaviateStore creates a client for config. No request is made until
// the first search.
func NewWeaviateStore(config WeaviateConfig) (*WeaviateStore, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("weaviate host is required")
	}
	if config.Class == "" {
		return nil, fmt.Errorf("weaviate class is required")
	}
	if config.Scheme == "" {
		config.Scheme = "https"
	}
	if config.TextProperty == "" {
		config.TextProperty = "content"
	}
	if config.SourceProperty == "" {
		config.SourceProperty = "source"
	}

	cfg := weaviate.Config{Host: config.Host, Scheme: config.Scheme}
	if config.APIKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: config.APIKey}
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	return &WeaviateStore{
		client:     client,
		class:      config.Class,
		textProp:   config.TextProperty,
		sourceProp: config.SourceProperty,
	}, nil
}

// Search returns the topK objects nearest to query. The certainty Weaviate
// reports is used as the passage score.
func (s *WeaviateStore) Search(ctx context.Context, query string, topK int) ([]domain.Passage, error) {
	nearText := (&graphql.NearTextArgumentBuilder{}).WithConcepts([]string{query})

	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithNearText(nearText).
		WithFields(
			graphql.Field{Name: s.textProp},
			graphql.Field{Name: s.sourceProp},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
		).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("weaviate search failed: %s", strings.Join(msgs, "; "))
	}

	return parseWeaviateObjects(result.Data["Get"], s.class, s.textProp, s.sourceProp), nil
}

// parseWeaviateObjects extracts passages from the "Get" member of a
// GraphQL response. Objects without text are skipped.
func parseWeaviateObjects(get any, class, textProp, sourceProp string) []domain.Passage {
	byClass, ok := get.(map[string]any)
	if !ok {
		return nil
	}
	objects, ok := byClass[class].([]any)
	if !ok {
		return nil
	}

	passages := make([]domain.Passage, 0, len(objects))
	for _, o := range objects {
		obj, ok := o.(map[string]any)
		if !ok {
			continue
		}
		text, _ := obj[textProp].(string)
		if text == "" {
			continue
		}
		p := domain.Passage{Text: text}
		p.Source, _ = obj[sourceProp].(string)
		if additional, ok := obj["_additional"].(map[string]any); ok {
			p.Score, _ = additional["certainty"].(float64)
		}
		passages = append(passages, p)
	}
	return passages
}

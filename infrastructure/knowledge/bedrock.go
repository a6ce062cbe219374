// Package knowledge implements the knowledge stores the retriever searches:
// an Amazon Bedrock knowledge base, a Weaviate class, and a local embedded
// index persisted on disk or in S3.
package knowledge

import (
	"context"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/ahrav/go-trustrag/infrastructure/llm"
	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

var _ ports.KnowledgeStore = (*BedrockStore)(nil)

// RetrieveAPI is the subset of the Bedrock agent runtime client used by
// BedrockStore.
type RetrieveAPI interface {
	Retrieve(ctx context.Context, params *bedrockagentruntime.RetrieveInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
}

// BedrockStore searches an Amazon Bedrock knowledge base with hybrid
// (semantic plus keyword) search.
type BedrockStore struct {
	client          RetrieveAPI
	knowledgeBaseID string
	searchType      types.SearchType
	errorClassifier *llm.ErrorClassifier
}

// NewBedrockStore returns a store for the knowledge base with id.
func NewBedrockStore(client RetrieveAPI, knowledgeBaseID string) (*BedrockStore, error) {
	if client == nil {
		return nil, fmt.Errorf("bedrock agent runtime client is required")
	}
	if knowledgeBaseID == "" {
		return nil, fmt.Errorf("knowledge base id is required")
	}
	return &BedrockStore{
		client:          client,
		knowledgeBaseID: knowledgeBaseID,
		searchType:      types.SearchTypeHybrid,
		errorClassifier: &llm.ErrorClassifier{Provider: "bedrock-kb"},
	}, nil
}

// Search retrieves the topK most relevant chunks. Results keep the order
// Bedrock returns them in.
func (s *BedrockStore) Search(ctx context.Context, query string, topK int) ([]domain.Passage, error) {
	out, err := s.client.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(s.knowledgeBaseID),
		RetrievalQuery:  &types.KnowledgeBaseQuery{Text: aws.String(query)},
		RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults:    aws.Int32(int32(min(max(topK, 1), math.MaxInt32))),
				OverrideSearchType: s.searchType,
			},
		},
	})
	if err != nil {
		return nil, llm.ClassifyAWSError(s.errorClassifier, err)
	}

	passages := make([]domain.Passage, 0, len(out.RetrievalResults))
	for _, r := range out.RetrievalResults {
		if r.Content == nil || r.Content.Text == nil {
			continue
		}
		passages = append(passages, domain.Passage{
			Text:   aws.ToString(r.Content.Text),
			Score:  aws.ToFloat64(r.Score),
			Source: resultSource(r.Location),
		})
	}
	return passages, nil
}

func resultSource(loc *types.RetrievalResultLocation) string {
	switch {
	case loc == nil:
		return ""
	case loc.S3Location != nil:
		return aws.ToString(loc.S3Location.Uri)
	case loc.WebLocation != nil:
		return aws.ToString(loc.WebLocation.Url)
	default:
		return string(loc.Type)
	}
}

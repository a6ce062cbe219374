package llm

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-trustrag/internal/ports"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestBedrockProvider_DoRequest(t *testing.T) {
	// Given a Converse API that returns a text reply
	fake := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "Returns accepted within 30 days."}},
		}},
		Usage: &types.TokenUsage{InputTokens: aws.Int32(42), OutputTokens: aws.Int32(7)},
	}}
	provider := newBedrockProviderWithClient(fake, "anthropic.claude-3-haiku-20240307-v1:0")

	// When a prompt is sent
	resp, in, out, err := provider.DoRequest(context.Background(), "What is your return policy?", map[string]any{"temperature": 0.0})

	// Then one user message carries the prompt and the reply is returned
	require.NoError(t, err)
	assert.Equal(t, "Returns accepted within 30 days.", resp)
	assert.Equal(t, 42, in)
	assert.Equal(t, 7, out)

	require.NotNil(t, fake.input)
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", aws.ToString(fake.input.ModelId))
	require.Len(t, fake.input.Messages, 1)
	assert.Equal(t, types.ConversationRoleUser, fake.input.Messages[0].Role)
	text, ok := fake.input.Messages[0].Content[0].(*types.ContentBlockMemberText)
	require.True(t, ok)
	assert.Equal(t, "What is your return policy?", text.Value)
	assert.Equal(t, int32(DefaultMaxTokens), aws.ToInt32(fake.input.InferenceConfig.MaxTokens))
	assert.Equal(t, float32(0), aws.ToFloat32(fake.input.InferenceConfig.Temperature))
	assert.Empty(t, fake.input.System)
}

func TestBedrockProvider_DoRequest_FirstTextBlock(t *testing.T) {
	fake := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: "first completion"},
				&types.ContentBlockMemberText{Value: " trailing block"},
			},
		}},
	}}
	provider := newBedrockProviderWithClient(fake, "m")

	resp, _, _, err := provider.DoRequest(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "first completion", resp)
}

func TestBedrockProvider_DoRequest_EmptyReply(t *testing.T) {
	fake := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{}},
	}}
	provider := newBedrockProviderWithClient(fake, "m")

	_, _, _, err := provider.DoRequest(context.Background(), "p", nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClassifyAWSError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "bedrock"}

	tests := []struct {
		code     string
		want     ErrorType
		sentinel error
	}{
		{code: "ThrottlingException", want: ErrorTypeRateLimit, sentinel: ports.ErrRateLimited},
		{code: "AccessDeniedException", want: ErrorTypeAuthentication, sentinel: ports.ErrAuthenticationFailed},
		{code: "ResourceNotFoundException", want: ErrorTypeNotFound, sentinel: ports.ErrNotFound},
		{code: "ModelTimeoutException", want: ErrorTypeTimeout, sentinel: ports.ErrTimeout},
		{code: "ServiceUnavailableException", want: ErrorTypeServerError, sentinel: ports.ErrServiceUnavailable},
		{code: "ValidationException", want: ErrorTypeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := ClassifyAWSError(ec, &smithy.GenericAPIError{Code: tt.code, Message: "m"})

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.want, pe.Type)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}

	t.Run("deadline", func(t *testing.T) {
		err := ClassifyAWSError(ec, context.DeadlineExceeded)
		assert.ErrorIs(t, err, ports.ErrTimeout)
	})
}

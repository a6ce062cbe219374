package llm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

func init() {
	RegisterProviderFactory("bedrock", newBedrockProvider)
}

// converseAPI is the subset of the Bedrock runtime client the provider uses.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// bedrockProvider implements CoreLLM on the Bedrock Converse API. It
// authenticates through the AWS default credential chain.
type bedrockProvider struct {
	BaseProvider
	client          converseAPI
	errorClassifier *ErrorClassifier
}

func newBedrockProvider(config ClientConfig) (CoreLLM, error) {
	if config.Region == "" {
		return nil, ErrEmptyRegion
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if config.BaseURL != "" {
			o.BaseEndpoint = aws.String(config.BaseURL)
		}
	})

	return newBedrockProviderWithClient(client, config.Model), nil
}

func newBedrockProviderWithClient(client converseAPI, model string) *bedrockProvider {
	return &bedrockProvider{
		BaseProvider:    BaseProvider{name: "bedrock", model: model},
		client:          client,
		errorClassifier: &ErrorClassifier{Provider: "bedrock"},
	}
}

// DoRequest sends prompt as a single user message and returns the first
// text block of the reply.
func (p *bedrockProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	out, err := p.client.Converse(ctx, p.buildConverseInput(prompt, options))
	if err != nil {
		return "", 0, 0, ClassifyAWSError(p.errorClassifier, err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", 0, 0, ErrNoResponseChoice
	}

	var content string
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			content = tb.Value
			break
		}
	}
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	var in, outTokens int32
	if out.Usage != nil {
		in, outTokens = aws.ToInt32(out.Usage.InputTokens), aws.ToInt32(out.Usage.OutputTokens)
	}
	return content, tokenCount(in, prompt), tokenCount(outTokens, content), nil
}

func (p *bedrockProvider) buildConverseInput(prompt string, options RequestOptions) *bedrockruntime.ConverseInput {
	inference := &types.InferenceConfiguration{
		MaxTokens: aws.Int32(int32(min(options.MaxTokens, math.MaxInt32))),
	}
	if options.Temperature != nil {
		inference.Temperature = aws.Float32(float32(clamp(*options.Temperature, 0, 1)))
	}
	if options.TopP != nil {
		inference.TopP = aws.Float32(float32(*options.TopP))
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(options.Model),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
		}},
		InferenceConfig: inference,
	}
	if options.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: options.System}}
	}

	return input
}

// ClassifyAWSError maps Smithy error codes and HTTP statuses from AWS
// services onto ProviderError types.
func ClassifyAWSError(ec *ErrorClassifier, err error) error {
	if isContextError(err) {
		return ec.ClassifyContextError(err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
			return NewProviderError(ec.Provider, ErrorTypeRateLimit, 429, apiErr.ErrorMessage(), err)
		case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
			return NewProviderError(ec.Provider, ErrorTypeAuthentication, 403, apiErr.ErrorMessage(), err)
		case "ResourceNotFoundException":
			return NewProviderError(ec.Provider, ErrorTypeNotFound, 404, apiErr.ErrorMessage(), err)
		case "ModelTimeoutException":
			return NewProviderError(ec.Provider, ErrorTypeTimeout, 408, apiErr.ErrorMessage(), err)
		case "ValidationException":
			return NewProviderError(ec.Provider, ErrorTypeBadRequest, 400, apiErr.ErrorMessage(), err)
		case "ServiceUnavailableException", "InternalServerException", "ModelNotReadyException":
			return NewProviderError(ec.Provider, ErrorTypeServerError, 503, apiErr.ErrorMessage(), err)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return ec.ClassifyHTTPError(respErr.HTTPStatusCode(), "request failed", err)
	}

	return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "request failed", err)
}

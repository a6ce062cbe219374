package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-trustrag/internal/ports"
)

func TestErrorClassifier_ClassifyHTTPError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "openai"}

	tests := []struct {
		status    int
		want      ErrorType
		retryable bool
	}{
		{status: 401, want: ErrorTypeAuthentication},
		{status: 403, want: ErrorTypeAuthentication},
		{status: 429, want: ErrorTypeRateLimit, retryable: true},
		{status: 400, want: ErrorTypeBadRequest},
		{status: 422, want: ErrorTypeBadRequest},
		{status: 404, want: ErrorTypeNotFound},
		{status: 504, want: ErrorTypeTimeout, retryable: true},
		{status: 500, want: ErrorTypeServerError, retryable: true},
		{status: 529, want: ErrorTypeServerError, retryable: true},
		{status: 200, want: ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			pe := ec.ClassifyHTTPError(tt.status, "msg", errors.New("boom"))
			assert.Equal(t, tt.want, pe.Type)
			assert.Equal(t, tt.retryable, pe.IsRetryable())
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestProviderError_MatchesPortSentinels(t *testing.T) {
	rateLimited := NewProviderError("bedrock", ErrorTypeRateLimit, 429, "slow down", nil)
	wrapped := fmt.Errorf("generate: %w", rateLimited)

	assert.ErrorIs(t, wrapped, ports.ErrRateLimited)
	assert.NotErrorIs(t, wrapped, ports.ErrAuthenticationFailed)

	assert.ErrorIs(t, NewProviderError("x", ErrorTypeAuthentication, 401, "", nil), ports.ErrAuthenticationFailed)
	assert.ErrorIs(t, NewProviderError("x", ErrorTypeServerError, 503, "", nil), ports.ErrServiceUnavailable)
	assert.ErrorIs(t, NewProviderError("x", ErrorTypeTimeout, 0, "", nil), ports.ErrTimeout)
	assert.ErrorIs(t, NewProviderError("x", ErrorTypeNotFound, 404, "", nil), ports.ErrNotFound)
}

func TestProviderError_Error(t *testing.T) {
	pe := NewProviderError("anthropic", ErrorTypeRateLimit, 429, "anthropic rate limit exceeded", errors.New("upstream"))
	assert.Equal(t, "anthropic error (HTTP 429) [rate_limit]: anthropic rate limit exceeded: upstream", pe.Error())
}

func TestErrorClassifier_ClassifyContextError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "google"}

	deadline := ec.ClassifyContextError(context.DeadlineExceeded)
	assert.Equal(t, ErrorTypeTimeout, deadline.Type)
	assert.ErrorIs(t, deadline, context.DeadlineExceeded)

	canceled := ec.ClassifyContextError(context.Canceled)
	assert.Equal(t, ErrorTypeNetwork, canceled.Type)
}

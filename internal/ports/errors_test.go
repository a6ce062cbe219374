package ports

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLLMError tests the functionality of the LLMError error type.
// It covers error creation, message formatting, and retryable logic.
func TestLLMError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := NewLLMError("gpt-4", "Complete", ErrTokenLimitExceeded)

		assert.Equal(t, "LLM error: model=gpt-4, operation=Complete, err=token limit exceeded", err.Error())
		assert.Equal(t, "gpt-4", err.Model)
		assert.Equal(t, "Complete", err.Operation)
		assert.True(t, errors.Is(err, ErrTokenLimitExceeded))
	})

	t.Run("with tokens used", func(t *testing.T) {
		err := &LLMError{
			Model:      "claude-3",
			Operation:  "Complete",
			Err:        ErrTokenLimitExceeded,
			TokensUsed: 8192,
		}

		assert.Contains(t, err.Error(), "tokens_used=8192")
	})

	t.Run("with retry after", func(t *testing.T) {
		retryAfter := 30 * time.Second
		err := &LLMError{
			Model:      "gpt-3.5",
			Operation:  "Complete",
			Err:        ErrRateLimited,
			RetryAfter: &retryAfter,
		}

		assert.Contains(t, err.Error(), "retry_after=30s")
	})

	t.Run("retryable errors", func(t *testing.T) {
		retryableErrors := []error{
			ErrRateLimited,
			ErrServiceUnavailable,
			ErrTimeout,
		}

		for _, baseErr := range retryableErrors {
			err := NewLLMError("test-model", "Test", baseErr)
			assert.True(t, err.IsRetryable(), "%v should be retryable", baseErr)
		}

		nonRetryableErrors := []error{
			ErrTokenLimitExceeded,
			ErrInvalidResponse,
			ErrAuthenticationFailed,
		}

		for _, baseErr := range nonRetryableErrors {
			err := NewLLMError("test-model", "Test", baseErr)
			assert.False(t, err.IsRetryable(), "%v should not be retryable", baseErr)
		}
	})
}

// TestCacheError tests the functionality of the CacheError error type.
// It verifies that the error message is formatted correctly and contains the expected context.
func TestCacheError(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		operation string
		err       error
		wantMsg   string
	}{
		{
			name:      "backend failure",
			key:       "embedding:text-embedding-004:9f86d08",
			operation: "Set",
			err:       errors.New("connection refused"),
			wantMsg:   "cache error: operation=Set, key=embedding:text-embedding-004:9f86d08, err=connection refused",
		},
		{
			name:      "cache corruption",
			key:       "embedding:gemini:abc",
			operation: "Get",
			err:       ErrCacheCorrupted,
			wantMsg:   "cache error: operation=Get, key=embedding:gemini:abc, err=cache corrupted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCacheError(tt.key, tt.operation, tt.err)

			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.key, err.Key)
			assert.Equal(t, tt.operation, err.Operation)
			assert.True(t, errors.Is(err, tt.err))
		})
	}
}

// TestStageError tests that StageError names the failing stage and keeps
// the upstream error matchable.
func TestStageError(t *testing.T) {
	err := NewStageError(StageGenerate, ErrRateLimited)

	assert.Equal(t, "generate stage failed: rate limited", err.Error())
	assert.Equal(t, StageGenerate, err.Stage)
	assert.True(t, errors.Is(err, ErrRateLimited))

	var stageErr *StageError
	wrapped := fmt.Errorf("query: %w", err)
	require.True(t, errors.As(wrapped, &stageErr))
	assert.Equal(t, StageGenerate, stageErr.Stage)
}

// TestConfigError tests the functionality of the ConfigError error type.
// It verifies that the error message is formatted correctly and contains the relevant configuration key.
func TestConfigError(t *testing.T) {
	err := NewConfigError("retrieval.bedrock.knowledge_base_id", ErrConfigNotFound)

	assert.Equal(t, "config error: key=retrieval.bedrock.knowledge_base_id, err=configuration not found", err.Error())
	assert.Equal(t, "retrieval.bedrock.knowledge_base_id", err.ConfigKey)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

// TestCommonInfrastructureErrors tests that the common infrastructure errors are defined.
// It checks that each error has the expected error message.
func TestCommonInfrastructureErrors(t *testing.T) {
	tests := []struct {
		err     error
		message string
	}{
		{ErrTokenLimitExceeded, "token limit exceeded"},
		{ErrRateLimited, "rate limited"},
		{ErrServiceUnavailable, "service unavailable"},
		{ErrTimeout, "operation timed out"},
		{ErrInvalidResponse, "invalid response"},
		{ErrAuthenticationFailed, "authentication failed"},
		{ErrNotFound, "not found"},
		{ErrCacheCorrupted, "cache corrupted"},
		{ErrConfigNotFound, "configuration not found"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
		})
	}
}

// TestErrorUnwrapping tests that all custom error types in the package support unwrapping.
// It ensures that the underlying error can be extracted correctly using errors.Is and Unwrap.
func TestErrorUnwrapping(t *testing.T) {
	baseErr := errors.New("underlying error")

	errorList := []interface {
		error
		Unwrap() error
	}{
		NewLLMError("model", "op", baseErr),
		NewCacheError("key", "op", baseErr),
		NewStageError(StageRetrieve, baseErr),
		NewConfigError("key", baseErr),
	}

	for _, err := range errorList {
		unwrapped := err.Unwrap()
		assert.Equal(t, baseErr, unwrapped, "%T should unwrap to base error", err)
		assert.True(t, errors.Is(err, baseErr), "%T should match base error with Is", err)
	}
}

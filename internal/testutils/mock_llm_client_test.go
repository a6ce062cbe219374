package testutils

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockLLMClient_PatternMatching(t *testing.T) {
	client := NewMockLLMClient("mock-model")
	client.AddResponse(MockResponse{Pattern: "Return Policy", Response: "30 days"})
	client.AddResponse(MockResponse{Pattern: "policy", Response: "second rule"})

	resp, err := client.Complete(context.Background(), "what is the return policy?", nil)
	require.NoError(t, err)
	assert.Equal(t, "30 days", resp, "matching is case-insensitive and the first rule wins")

	resp, err = client.Complete(context.Background(), "privacy policy", nil)
	require.NoError(t, err)
	assert.Equal(t, "second rule", resp)

	resp, err = client.Complete(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMockResponse, resp)
}

func TestMockLLMClient_Errors(t *testing.T) {
	client := NewMockLLMClient("mock-model")
	boom := errors.New("boom")
	client.AddResponse(MockResponse{Pattern: "fail", Err: boom})

	_, err := client.Complete(context.Background(), "please fail", nil)
	assert.ErrorIs(t, err, boom)

	_, err = client.Complete(context.Background(), "", nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Complete(ctx, "anything", nil)
	assert.ErrorIs(t, err, context.Canceled)

	client.SetDefault("", boom)
	_, err = client.Complete(context.Background(), "unmatched", nil)
	assert.ErrorIs(t, err, boom)
}

func TestMockLLMClient_RecordsCalls(t *testing.T) {
	client := NewMockLLMClient("mock-model")

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = client.Complete(context.Background(), "q", map[string]any{"temperature": 0.0})
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, client.CallCount())
	assert.Equal(t, 0.0, client.Calls()[0].Options["temperature"])

	client.Reset()
	assert.Zero(t, client.CallCount())

	n, err := client.EstimateTokens("12345678")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	client.SetModel("other")
	assert.Equal(t, "other", client.GetModel())
}

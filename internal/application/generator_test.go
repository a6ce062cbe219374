package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-trustrag/internal/ports"
	"github.com/ahrav/go-trustrag/internal/testutils"
)

func TestLLMGenerator_Generate(t *testing.T) {
	client := testutils.NewMockLLMClient("test-model")
	client.AddResponse(testutils.MockResponse{Pattern: "return policy", Response: "Thirty days."})

	temp := 0.2
	g, err := NewGenerator(client, GenerationOptions{MaxTokens: 512, Temperature: &temp, System: "be brief"})
	require.NoError(t, err)

	got, err := g.Generate(context.Background(), "What is the Return Policy?")
	require.NoError(t, err)
	assert.Equal(t, "Thirty days.", got)
	assert.Equal(t, "test-model", g.Model())

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "What is the Return Policy?", calls[0].Prompt)
	assert.Equal(t, map[string]any{"max_tokens": 512, "temperature": 0.2, "system": "be brief"}, calls[0].Options)
}

func TestLLMGenerator_OptionsAreNotShared(t *testing.T) {
	client := testutils.NewMockLLMClient("m")
	g, err := NewGenerator(client, GenerationOptions{MaxTokens: 10})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "one")
	require.NoError(t, err)
	client.Calls()[0].Options["max_tokens"] = 99

	_, err = g.Generate(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, 10, client.Calls()[1].Options["max_tokens"])
}

func TestLLMGenerator_PropagatesClientError(t *testing.T) {
	client := testutils.NewMockLLMClient("m")
	client.SetDefault("", ports.ErrRateLimited)

	g, err := NewGenerator(client, GenerationOptions{})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, ports.ErrRateLimited)
}

func TestNewGenerator_NilClient(t *testing.T) {
	_, err := NewGenerator(nil, GenerationOptions{})
	assert.Error(t, err)
}

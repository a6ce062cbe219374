package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeaviateObjects(t *testing.T) {
	get := map[string]any{
		"Document": []any{
			map[string]any{
				"content":     "Cursor supports GPT-4o.",
				"source":      "models.md",
				"_additional": map[string]any{"certainty": 0.91},
			},
			map[string]any{"content": "", "source": "empty.md"},
			"not an object",
			map[string]any{"content": "No certainty."},
		},
	}

	passages := parseWeaviateObjects(get, "Document", "content", "source")

	require.Len(t, passages, 2)
	assert.Equal(t, "Cursor supports GPT-4o.", passages[0].Text)
	assert.Equal(t, "models.md", passages[0].Source)
	assert.Equal(t, 0.91, passages[0].Score)
	assert.Zero(t, passages[1].Score)
}

func TestParseWeaviateObjects_UnexpectedShape(t *testing.T) {
	assert.Empty(t, parseWeaviateObjects(nil, "Document", "content", "source"))
	assert.Empty(t, parseWeaviateObjects(map[string]any{"Other": []any{}}, "Document", "content", "source"))
}

func TestNewWeaviateStore_Validation(t *testing.T) {
	_, err := NewWeaviateStore(WeaviateConfig{Class: "Document"})
	assert.ErrorContains(t, err, "host")

	_, err = NewWeaviateStore(WeaviateConfig{Host: "localhost:8080"})
	assert.ErrorContains(t, err, "class")

	store, err := NewWeaviateStore(WeaviateConfig{Host: "localhost:8080", Scheme: "http", Class: "Document"})
	require.NoError(t, err)
	assert.Equal(t, "content", store.textProp)
	assert.Equal(t, "source", store.sourceProp)
}

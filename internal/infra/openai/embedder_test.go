package openai

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)
	require.NoError(t, err)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
	assert.Equal(t, 100, embedder.MaxBatchSize())
}

func TestNewEmbedderRequiresAPIKey(t *testing.T) {
	_, err := NewEmbedder("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestTruncateKeepsShortInput(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key")
	require.NoError(t, err)

	text := "a short sentence about work experience"
	assert.Equal(t, text, embedder.truncate(context.Background(), text))
}

func TestTruncateCapsLongInput(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key")
	require.NoError(t, err)

	long := strings.Repeat("word ", 20000)
	truncated := embedder.truncate(context.Background(), long)

	require.NotEqual(t, long, truncated)
	tokens := embedder.encoder.Encode(truncated, nil, nil)
	assert.LessOrEqual(t, len(tokens), maxInputTokens)
}

func TestBatchEmbedRejectsOversizedBatch(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key")
	require.NoError(t, err)

	texts := make([]string, 101)
	for i := range texts {
		texts[i] = "text"
	}

	_, err = embedder.BatchEmbed(context.Background(), texts)
	assert.ErrorContains(t, err, "exceeds maximum")
}

func TestBatchEmbedRejectsEmptyInput(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key")
	require.NoError(t, err)

	_, err = embedder.BatchEmbed(context.Background(), nil)
	assert.ErrorContains(t, err, "no texts provided")
}

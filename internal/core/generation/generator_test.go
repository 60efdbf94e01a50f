package generation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/persona-rag/internal/core/ingestion"
	"github.com/jinford/persona-rag/internal/core/retrieval"
)

type stubCompletionClient struct {
	answer  string
	err     error
	lastReq CompletionRequest
}

func (c *stubCompletionClient) Complete(_ context.Context, req CompletionRequest) (string, error) {
	c.lastReq = req
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func contextChunk(heading, text string, score float64) *retrieval.ScoredChunk {
	return &retrieval.ScoredChunk{
		Chunk: &ingestion.Chunk{
			ID:      "cv-0",
			Text:    text,
			Source:  "cv",
			Heading: heading,
			Type:    ingestion.ChunkTypeExperience,
		},
		Score: score,
	}
}

func TestGenerateBuildsPromptsFromContexts(t *testing.T) {
	client := &stubCompletionClient{answer: "I led the backend team at Acme."}
	generator := NewGenerator(client,
		WithOwnerName("Jin"),
		WithSampling(0.2, 300),
	)

	contexts := []*retrieval.ScoredChunk{
		contextChunk("Experience", "Led the backend team at Acme.", 0.91),
	}

	answer := generator.Generate(context.Background(), "What did you do at Acme?", contexts)

	assert.Equal(t, "I led the backend team at Acme.", answer)
	assert.Contains(t, client.lastReq.System, "AI assistant of Jin")
	assert.Contains(t, client.lastReq.System, "[Context 1 - Experience | source: cv (relevance: 0.91)]:")
	assert.Contains(t, client.lastReq.System, "Led the backend team at Acme.")
	assert.Contains(t, client.lastReq.User, "Question: What did you do at Acme?")
	assert.Equal(t, 0.2, client.lastReq.Temperature)
	assert.Equal(t, 300, client.lastReq.MaxTokens)
}

func TestGenerateWithNoContextInsertsPlaceholder(t *testing.T) {
	client := &stubCompletionClient{answer: "I don't have that information."}
	generator := NewGenerator(client)

	answer := generator.Generate(context.Background(), "What's your shoe size?", nil)

	assert.Equal(t, "I don't have that information.", answer)
	assert.Contains(t, client.lastReq.System, noContextPlaceholder)
}

func TestGenerateFallsBackOnClientError(t *testing.T) {
	client := &stubCompletionClient{err: fmt.Errorf("api unavailable")}
	generator := NewGenerator(client)

	answer := generator.Generate(context.Background(), "anything", nil)

	assert.Equal(t, FallbackAnswer, answer)
}

func TestBuildSystemPromptIsDeterministic(t *testing.T) {
	contexts := []*retrieval.ScoredChunk{
		contextChunk("Experience", "Led the backend team.", 0.9),
		contextChunk("", "Worked on search infra.", 0.8),
	}

	first := BuildSystemPrompt("Jin", contexts)
	second := BuildSystemPrompt("Jin", contexts)
	require.Equal(t, first, second)

	// 見出しのないチャンクはタイプ名で表示される
	assert.Contains(t, first, "[Context 2 - experience | source: cv (relevance: 0.80)]:")
}

func TestBuildSystemPromptUsesDefaultOwnerName(t *testing.T) {
	client := &stubCompletionClient{answer: "ok"}
	generator := NewGenerator(client)

	generator.Generate(context.Background(), "hi", nil)

	assert.Contains(t, client.lastReq.System, DefaultOwnerName)
}

package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/persona-rag/internal/core/ingestion"
	"github.com/jinford/persona-rag/internal/core/retrieval"
)

type stubRetriever struct {
	results []*retrieval.ScoredChunk
	err     error
	calls   int
}

func (r *stubRetriever) Retrieve(_ context.Context, _ retrieval.RetrieveParams) ([]*retrieval.ScoredChunk, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.results, nil
}

type stubGenerator struct {
	answer       string
	lastContexts []*retrieval.ScoredChunk
}

func (g *stubGenerator) Generate(_ context.Context, _ string, contexts []*retrieval.ScoredChunk) string {
	g.lastContexts = contexts
	return g.answer
}

type stubModerator struct {
	flagged bool
	err     error
}

func (m *stubModerator) Flagged(_ context.Context, _ string) (bool, error) {
	return m.flagged, m.err
}

type stubUserStore struct {
	count        int
	countErr     error
	turns        [][2]string
	recordErr    error
	recordedUser uuid.UUID
}

func (s *stubUserStore) IncrementMessageCount(_ context.Context, _ uuid.UUID) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	s.count++
	return s.count, nil
}

func (s *stubUserStore) RecordChatTurn(_ context.Context, userID uuid.UUID, question, answer string) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recordedUser = userID
	s.turns = append(s.turns, [2]string{question, answer})
	return nil
}

func blogChunk(title string, score float64) *retrieval.ScoredChunk {
	return &retrieval.ScoredChunk{
		Chunk: &ingestion.Chunk{
			ID:     "medium-0",
			Source: "medium",
			Type:   ingestion.ChunkTypeBlog,
			Metadata: map[string]string{
				"title": title,
				"url":   "https://medium.com/@me/post",
			},
		},
		Score: score,
	}
}

func cvChunk(score float64) *retrieval.ScoredChunk {
	return &retrieval.ScoredChunk{
		Chunk: &ingestion.Chunk{
			ID:     "cv-0",
			Source: "cv",
			Type:   ingestion.ChunkTypeExperience,
		},
		Score: score,
	}
}

func TestAnswerReturnsSourcesFromContexts(t *testing.T) {
	retriever := &stubRetriever{
		results: []*retrieval.ScoredChunk{
			blogChunk("On Go Concurrency", 0.85),
			cvChunk(0.72),
		},
	}
	generator := &stubGenerator{answer: "I wrote about concurrency."}
	service := NewService(retriever, generator)

	result, err := service.Answer(context.Background(), AnswerParams{Message: "What have you written?"})
	require.NoError(t, err)

	assert.Equal(t, "I wrote about concurrency.", result.Answer)
	require.Len(t, result.Sources, 2)

	require.NotNil(t, result.Sources[0].Title)
	assert.Equal(t, "On Go Concurrency", *result.Sources[0].Title)
	require.NotNil(t, result.Sources[0].URL)
	assert.Equal(t, 0.85, result.Sources[0].Score)

	// CVチャンクはタイトルもURLも持たない
	assert.Nil(t, result.Sources[1].Title)
	assert.Nil(t, result.Sources[1].URL)
}

func TestAnswerWithEmptyContextsStillGenerates(t *testing.T) {
	retriever := &stubRetriever{}
	generator := &stubGenerator{answer: "I don't have that information."}
	service := NewService(retriever, generator)

	result, err := service.Answer(context.Background(), AnswerParams{Message: "Unknown topic?"})
	require.NoError(t, err)

	assert.Equal(t, "I don't have that information.", result.Answer)
	assert.Empty(t, result.Sources)
	assert.NotNil(t, result.Sources)
}

func TestAnswerRequiresMessage(t *testing.T) {
	service := NewService(&stubRetriever{}, &stubGenerator{})

	_, err := service.Answer(context.Background(), AnswerParams{Message: "   "})
	assert.ErrorContains(t, err, "message is required")
}

func TestAnswerPropagatesRetrievalFailure(t *testing.T) {
	retriever := &stubRetriever{
		err: fmt.Errorf("%w: connection refused", retrieval.ErrRetrievalFailed),
	}
	service := NewService(retriever, &stubGenerator{})

	_, err := service.Answer(context.Background(), AnswerParams{Message: "anything"})
	assert.ErrorIs(t, err, retrieval.ErrRetrievalFailed)
}

func TestAnswerRefusesFlaggedMessage(t *testing.T) {
	retriever := &stubRetriever{}
	store := &stubUserStore{}
	service := NewService(retriever, &stubGenerator{answer: "should not be used"},
		WithModerator(&stubModerator{flagged: true}),
		WithUserStore(store, 50),
	)

	id := uuid.New()
	result, err := service.Answer(context.Background(), AnswerParams{
		Message: "something inappropriate",
		UserID:  mo.Some(id),
	})
	require.NoError(t, err)

	assert.Equal(t, RefusedAnswer, result.Answer)
	assert.Empty(t, result.Sources)
	// 検索も生成も行われない
	assert.Equal(t, 0, retriever.calls)
	// 拒否応答も履歴には残る
	require.Len(t, store.turns, 1)
	assert.Equal(t, RefusedAnswer, store.turns[0][1])
}

func TestAnswerAllowsMessageWhenModerationFails(t *testing.T) {
	retriever := &stubRetriever{}
	service := NewService(retriever, &stubGenerator{answer: "ok"},
		WithModerator(&stubModerator{err: fmt.Errorf("api down")}),
	)

	result, err := service.Answer(context.Background(), AnswerParams{Message: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "ok", result.Answer)
	assert.Equal(t, 1, retriever.calls)
}

func TestAnswerEnforcesSoftMessageLimit(t *testing.T) {
	retriever := &stubRetriever{}
	store := &stubUserStore{count: 2}
	service := NewService(retriever, &stubGenerator{answer: "ok"},
		WithUserStore(store, 3),
	)

	id := uuid.New()
	params := AnswerParams{Message: "hello", UserID: mo.Some(id)}

	// 3通目まで許容、4通目で上限
	result, err := service.Answer(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Answer)

	result, err = service.Answer(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, LimitReachedAnswer, result.Answer)
	assert.Equal(t, 1, retriever.calls)
}

func TestAnswerLimitIsSoftOnCounterFailure(t *testing.T) {
	retriever := &stubRetriever{}
	store := &stubUserStore{countErr: fmt.Errorf("database offline")}
	service := NewService(retriever, &stubGenerator{answer: "ok"},
		WithUserStore(store, 3),
	)

	result, err := service.Answer(context.Background(), AnswerParams{
		Message: "hello",
		UserID:  mo.Some(uuid.New()),
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Answer)
}

func TestAnswerRecordsChatTurn(t *testing.T) {
	retriever := &stubRetriever{}
	store := &stubUserStore{}
	service := NewService(retriever, &stubGenerator{answer: "my answer"},
		WithUserStore(store, 50),
	)

	id := uuid.New()
	_, err := service.Answer(context.Background(), AnswerParams{
		Message: "my question",
		UserID:  mo.Some(id),
	})
	require.NoError(t, err)

	require.Len(t, store.turns, 1)
	assert.Equal(t, id, store.recordedUser)
	assert.Equal(t, "my question", store.turns[0][0])
	assert.Equal(t, "my answer", store.turns[0][1])
}

func TestAnswerAnonymousUserSkipsPersistence(t *testing.T) {
	retriever := &stubRetriever{}
	store := &stubUserStore{}
	service := NewService(retriever, &stubGenerator{answer: "ok"},
		WithUserStore(store, 50),
	)

	_, err := service.Answer(context.Background(), AnswerParams{Message: "hello"})
	require.NoError(t, err)

	assert.Empty(t, store.turns)
	assert.Equal(t, 0, store.count)
}

func TestAnswerRecordFailureIsNotFatal(t *testing.T) {
	retriever := &stubRetriever{}
	store := &stubUserStore{recordErr: fmt.Errorf("database offline")}
	service := NewService(retriever, &stubGenerator{answer: "ok"},
		WithUserStore(store, 50),
	)

	result, err := service.Answer(context.Background(), AnswerParams{
		Message: "hello",
		UserID:  mo.Some(uuid.New()),
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Answer)
}

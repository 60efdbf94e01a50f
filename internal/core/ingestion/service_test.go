package ingestion

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	model        string
	dimension    int
	maxBatchSize int
	failBatches  map[int]bool // 呼び出し回数(0始まり)ごとの失敗指定
	calls        int
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{
		model:        "text-embedding-3-small",
		dimension:    4,
		maxBatchSize: 100,
	}
}

func (e *stubEmbedder) BatchEmbed(_ context.Context, texts []string) ([][]float32, error) {
	call := e.calls
	e.calls++
	if e.failBatches[call] {
		return nil, fmt.Errorf("%w: rate limited", ErrEmbeddingFailed)
	}

	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0, 0}
	}
	return vectors, nil
}

func (e *stubEmbedder) ModelName() string { return e.model }
func (e *stubEmbedder) Dimension() int    { return e.dimension }
func (e *stubEmbedder) MaxBatchSize() int { return e.maxBatchSize }

type stubVectorStore struct {
	collection     *Collection
	collectionErr  error
	points         map[string]*Point
	deletedSources []string
	upsertErr      error
}

func newStubVectorStore() *stubVectorStore {
	return &stubVectorStore{
		collection: &Collection{
			Name:      "personal_docs",
			Model:     "text-embedding-3-small",
			Dimension: 4,
		},
		points: map[string]*Point{},
	}
}

func (s *stubVectorStore) GetCollection(_ context.Context, name string) (*Collection, error) {
	if s.collectionErr != nil {
		return nil, s.collectionErr
	}
	return s.collection, nil
}

func (s *stubVectorStore) UpsertPoints(_ context.Context, _ string, points []*Point) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, p := range points {
		s.points[p.ChunkID] = p
	}
	return nil
}

func (s *stubVectorStore) DeleteBySource(_ context.Context, _ string, source string) error {
	s.deletedSources = append(s.deletedSources, source)
	for id, p := range s.points {
		if p.Payload.Source == source {
			delete(s.points, id)
		}
	}
	return nil
}

func markdownCV(words int) *Document {
	return &Document{
		SourceLabel: "cv",
		Format:      FormatMarkdown,
		Filename:    "cv.md",
		Raw:         []byte("# Experience\n\n" + wordRun("w", words)),
	}
}

func TestIngestDocuments(t *testing.T) {
	embedder := newStubEmbedder()
	store := newStubVectorStore()
	service := NewIngestService(embedder, store, "personal_docs")

	report, err := service.IngestDocuments(context.Background(), []*Document{markdownCV(50)})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 0, report.FailedDocuments)
	assert.Equal(t, 1, report.TotalChunks)
	assert.Equal(t, 1, report.UpsertedChunks)
	assert.Empty(t, report.SkippedChunkIDs)

	point, ok := store.points["cv-0"]
	require.True(t, ok)
	assert.Equal(t, "Experience", point.Payload.Heading)
	assert.Equal(t, []string{"cv"}, store.deletedSources)
}

func TestIngestDocumentsRenumbersAcrossDocuments(t *testing.T) {
	embedder := newStubEmbedder()
	store := newStubVectorStore()
	service := NewIngestService(embedder, store, "personal_docs")

	// 同一ソースの複数ドキュメント（ブログ記事など）はソース単位で連番になる
	docs := []*Document{
		{
			SourceLabel: "medium",
			Format:      FormatMarkdown,
			Title:       "Post One",
			Category:    ChunkTypeBlog,
			Raw:         []byte(wordRun("one", 80)),
		},
		{
			SourceLabel: "medium",
			Format:      FormatMarkdown,
			Title:       "Post Two",
			Category:    ChunkTypeBlog,
			Raw:         []byte(wordRun("two", 80)),
		},
	}

	report, err := service.IngestDocuments(context.Background(), docs)
	require.NoError(t, err)
	require.Equal(t, 2, report.UpsertedChunks)

	first, ok := store.points["medium-0"]
	require.True(t, ok)
	second, ok := store.points["medium-1"]
	require.True(t, ok)

	assert.Equal(t, "Post One", first.Payload.Metadata["title"])
	assert.Equal(t, "Post Two", second.Payload.Metadata["title"])
	assert.Equal(t, 0, first.Payload.Index)
	assert.Equal(t, 1, second.Payload.Index)
}

func TestIngestDocumentsIsolatesFailedDocument(t *testing.T) {
	embedder := newStubEmbedder()
	store := newStubVectorStore()
	service := NewIngestService(embedder, store, "personal_docs")

	docs := []*Document{
		{SourceLabel: "cv", Format: FormatMarkdown, Raw: []byte("   ")},
		markdownCV(40),
	}

	report, err := service.IngestDocuments(context.Background(), docs)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 1, report.FailedDocuments)
	assert.Equal(t, 1, report.UpsertedChunks)
}

func TestIngestDocumentsRejectsModelMismatch(t *testing.T) {
	embedder := newStubEmbedder()
	embedder.model = "text-embedding-3-large"
	store := newStubVectorStore()
	service := NewIngestService(embedder, store, "personal_docs")

	_, err := service.IngestDocuments(context.Background(), []*Document{markdownCV(40)})
	assert.ErrorIs(t, err, ErrModelMismatch)
}

func TestIngestDocumentsRequiresCollection(t *testing.T) {
	embedder := newStubEmbedder()
	store := newStubVectorStore()
	store.collectionErr = fmt.Errorf("%w: personal_docs", ErrCollectionNotFound)
	service := NewIngestService(embedder, store, "personal_docs")

	_, err := service.IngestDocuments(context.Background(), []*Document{markdownCV(40)})
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestUpsertChunksSkipsFailedBatchAndContinues(t *testing.T) {
	embedder := newStubEmbedder()
	embedder.maxBatchSize = 2
	embedder.failBatches = map[int]bool{0: true}
	store := newStubVectorStore()
	service := NewIngestService(embedder, store, "personal_docs")

	chunks := []*Chunk{
		{ID: "cv-0", Index: 0, Text: "one", Source: "cv", Type: ChunkTypeGeneral, WordCount: 1},
		{ID: "cv-1", Index: 1, Text: "two", Source: "cv", Type: ChunkTypeGeneral, WordCount: 1},
		{ID: "cv-2", Index: 2, Text: "three", Source: "cv", Type: ChunkTypeGeneral, WordCount: 1},
	}

	report := &IngestReport{}
	err := service.UpsertChunks(context.Background(), chunks, report)
	require.NoError(t, err)

	// 1バッチ目(cv-0, cv-1)は失敗してスキップ、2バッチ目(cv-2)は成功
	assert.Equal(t, 3, report.TotalChunks)
	assert.Equal(t, 1, report.UpsertedChunks)
	assert.ElementsMatch(t, []string{"cv-0", "cv-1"}, report.SkippedChunkIDs)
	assert.Contains(t, store.points, "cv-2")
}

func TestUpsertChunksDeletesStaleSourcePoints(t *testing.T) {
	embedder := newStubEmbedder()
	store := newStubVectorStore()
	service := NewIngestService(embedder, store, "personal_docs")

	// 3チャンクの旧状態を作ってから、1チャンクで再取り込みする
	initial := []*Chunk{
		{ID: "cv-0", Index: 0, Text: "one", Source: "cv", Type: ChunkTypeGeneral, WordCount: 1},
		{ID: "cv-1", Index: 1, Text: "two", Source: "cv", Type: ChunkTypeGeneral, WordCount: 1},
		{ID: "cv-2", Index: 2, Text: "three", Source: "cv", Type: ChunkTypeGeneral, WordCount: 1},
	}
	require.NoError(t, service.UpsertChunks(context.Background(), initial, nil))
	require.Len(t, store.points, 3)

	reduced := []*Chunk{
		{ID: "cv-0", Index: 0, Text: "only", Source: "cv", Type: ChunkTypeGeneral, WordCount: 1},
	}
	require.NoError(t, service.UpsertChunks(context.Background(), reduced, nil))

	// 旧 cv-1 / cv-2 が残留しない
	assert.Len(t, store.points, 1)
	assert.Contains(t, store.points, "cv-0")
}

func TestUpsertChunksFailsOnStoreError(t *testing.T) {
	embedder := newStubEmbedder()
	store := newStubVectorStore()
	store.upsertErr = fmt.Errorf("connection reset")
	service := NewIngestService(embedder, store, "personal_docs")

	chunks := []*Chunk{
		{ID: "cv-0", Index: 0, Text: "one", Source: "cv", Type: ChunkTypeGeneral, WordCount: 1},
	}

	err := service.UpsertChunks(context.Background(), chunks, nil)
	assert.ErrorContains(t, err, "failed to upsert points")
}

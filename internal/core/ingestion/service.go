package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// BatchEmbed は複数テキストのEmbeddingを入力順を保って生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	// ModelName は使用中のEmbeddingモデル名を返す
	ModelName() string
	// Dimension はベクトル次元数を返す
	Dimension() int
	// MaxBatchSize は1回の呼び出しで処理できる最大テキスト数を返す
	MaxBatchSize() int
}

// Collection はベクトルコレクションのメタデータを表す。
// Model はコレクション作成時に固定され、書き込み・検索の両経路で
// 同一モデルであることの検証に使う。
type Collection struct {
	Name      string
	Model     string
	Dimension int
}

// Point はベクトルストアへ書き込む1レコードを表す
type Point struct {
	ChunkID string
	Vector  []float32
	Payload *Chunk
}

// VectorStore はインジェスト経路のベクトルストア操作インターフェース
type VectorStore interface {
	// GetCollection はコレクションのメタデータを取得する
	GetCollection(ctx context.Context, name string) (*Collection, error)
	// UpsertPoints は (id, vector, payload) を書き込む。同一IDは上書きされる
	UpsertPoints(ctx context.Context, collection string, points []*Point) error
	// DeleteBySource は指定ソースの全ポイントを削除する（再取り込み用）
	DeleteBySource(ctx context.Context, collection string, source string) error
}

// IngestReport はインジェスト処理の結果を表す。
// ドキュメント単位・チャンク単位の失敗は処理を止めず、ここへ集計される。
type IngestReport struct {
	Documents       int
	FailedDocuments int
	TotalChunks     int
	UpsertedChunks  int
	SkippedChunkIDs []string
	Duration        time.Duration
}

// IngestService はドキュメントの抽出・分割・Embedding・格納を統括する
type IngestService struct {
	extractor  *TextExtractor
	embedder   Embedder
	store      VectorStore
	collection string
	cvConfig   *ChunkerConfig
	logger     *slog.Logger
}

type ingestServiceOptions struct {
	cvConfig *ChunkerConfig
	logger   *slog.Logger
}

// IngestServiceOption は IngestService のオプション設定
type IngestServiceOption func(*ingestServiceOptions)

// WithIngestLogger は IngestService にロガーを設定する
func WithIngestLogger(logger *slog.Logger) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.logger = logger
	}
}

// WithIngestChunkerConfig はCVソース向けのチャンク設定を上書きする
func WithIngestChunkerConfig(cfg *ChunkerConfig) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.cvConfig = cfg
	}
}

// NewIngestService は新しい IngestService を作成する
func NewIngestService(embedder Embedder, store VectorStore, collection string, opts ...IngestServiceOption) *IngestService {
	options := ingestServiceOptions{
		cvConfig: DefaultChunkerConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.cvConfig == nil {
		options.cvConfig = DefaultChunkerConfig()
	}

	return &IngestService{
		extractor:  NewTextExtractor(),
		embedder:   embedder,
		store:      store,
		collection: collection,
		cvConfig:   options.cvConfig,
		logger:     options.logger,
	}
}

// IngestDocuments はドキュメント群を取り込み、結果レポートを返す。
// 同一 source のチャンクIDは再実行時も同一になるため、既存ポイントを
// 削除してから upsert することで安全な置き換えになる。
func (s *IngestService) IngestDocuments(ctx context.Context, docs []*Document) (*IngestReport, error) {
	startTime := time.Now()

	report := &IngestReport{}
	chunks := s.prepareChunks(docs, report)

	s.logger.Info("チャンク化が完了",
		"documents", report.Documents,
		"failedDocuments", report.FailedDocuments,
		"chunks", len(chunks),
	)

	if err := s.UpsertChunks(ctx, chunks, report); err != nil {
		return nil, err
	}

	report.Duration = time.Since(startTime)

	s.logger.Info("インジェストが完了",
		"chunks", report.TotalChunks,
		"upserted", report.UpsertedChunks,
		"skipped", len(report.SkippedChunkIDs),
		"duration", report.Duration,
	)

	return report, nil
}

// ExportChunks はドキュメント群をチャンク化し、行区切りJSONとして書き出す
func (s *IngestService) ExportChunks(ctx context.Context, docs []*Document, w io.Writer) (*IngestReport, error) {
	report := &IngestReport{}
	chunks := s.prepareChunks(docs, report)
	report.TotalChunks = len(chunks)

	if err := WriteChunksJSONL(w, chunks); err != nil {
		return nil, fmt.Errorf("failed to export chunks: %w", err)
	}
	return report, nil
}

// UpsertChunks はチャンク列をEmbeddingしてベクトルストアへ書き込む。
// バッチ単位のEmbedding失敗はチャンクをスキップ扱いにして処理を続行する
// （部分的成功）。ストア書き込みの失敗はリクエスト全体のエラーになる。
func (s *IngestService) UpsertChunks(ctx context.Context, chunks []*Chunk, report *IngestReport) error {
	if report == nil {
		report = &IngestReport{}
	}
	report.TotalChunks += len(chunks)

	if len(chunks) == 0 {
		return nil
	}

	// コレクションに固定されたモデルとの一致を検証する。
	// 書き込みと検索でEmbedding空間が混ざることを防ぐ。
	collection, err := s.store.GetCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to get collection %q: %w", s.collection, err)
	}
	if collection.Model != s.embedder.ModelName() {
		return fmt.Errorf("collection %q is pinned to model %q but embedder uses %q: %w",
			s.collection, collection.Model, s.embedder.ModelName(), ErrModelMismatch)
	}

	// 再取り込みの置き換えセマンティクス: 対象ソースの既存ポイントを先に消す
	for _, source := range chunkSources(chunks) {
		if err := s.store.DeleteBySource(ctx, s.collection, source); err != nil {
			return fmt.Errorf("failed to delete stale points for source %q: %w", source, err)
		}
	}

	batchSize := s.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = 1
	}

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		vectors, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// リトライ済みの失敗。バッチ内のチャンクをスキップして続行する
			s.logger.Warn("バッチEmbedding生成に失敗、チャンクをスキップ",
				"batchSize", len(batch),
				"error", err,
			)
			for _, chunk := range batch {
				report.SkippedChunkIDs = append(report.SkippedChunkIDs, chunk.ID)
			}
			continue
		}

		if len(vectors) != len(batch) {
			s.logger.Warn("Embeddingベクトル数が入力数と一致しない",
				"expected", len(batch),
				"actual", len(vectors),
			)
		}

		limit := len(vectors)
		if limit > len(batch) {
			limit = len(batch)
		}

		points := make([]*Point, 0, limit)
		for i := 0; i < limit; i++ {
			points = append(points, &Point{
				ChunkID: batch[i].ID,
				Vector:  vectors[i],
				Payload: batch[i],
			})
		}
		for i := limit; i < len(batch); i++ {
			report.SkippedChunkIDs = append(report.SkippedChunkIDs, batch[i].ID)
		}

		if err := s.store.UpsertPoints(ctx, s.collection, points); err != nil {
			return fmt.Errorf("failed to upsert points: %w", err)
		}
		report.UpsertedChunks += len(points)
	}

	return nil
}

// prepareChunks はドキュメント群を抽出・分割し、ソースごとに連番を振り直す。
// ドキュメント単体の失敗はレポートに記録し、残りの処理を続行する。
func (s *IngestService) prepareChunks(docs []*Document, report *IngestReport) []*Chunk {
	var all []*Chunk
	sourceIndex := map[string]int{}

	for _, doc := range docs {
		report.Documents++

		body, markers, err := s.extractor.Extract(doc)
		if err != nil {
			report.FailedDocuments++
			if errors.Is(err, ErrNoExtractableText) {
				s.logger.Error("本文を抽出できないドキュメントをスキップ",
					"source", doc.SourceLabel,
					"filename", doc.Filename,
				)
			} else {
				s.logger.Error("ドキュメントの抽出に失敗",
					"source", doc.SourceLabel,
					"filename", doc.Filename,
					"error", err,
				)
			}
			continue
		}

		chunks := s.chunkerFor(doc).ChunkDocument(doc, body, markers)
		if len(chunks) == 0 {
			s.logger.Warn("チャンクが生成されなかったドキュメント",
				"source", doc.SourceLabel,
				"filename", doc.Filename,
			)
			continue
		}

		// chunk_index はソース単位で単調増加させる（ドキュメント横断）
		for _, chunk := range chunks {
			index := sourceIndex[chunk.Source]
			chunk.Index = index
			chunk.ID = ChunkID(chunk.Source, index)
			sourceIndex[chunk.Source] = index + 1
		}

		all = append(all, chunks...)
	}

	return all
}

// chunkerFor はドキュメントのカテゴリに応じたチャンク設定を選ぶ
func (s *IngestService) chunkerFor(doc *Document) *Chunker {
	switch doc.Category {
	case ChunkTypeBlog:
		return NewChunker(BlogChunkerConfig())
	case ChunkTypeRepoMeta:
		return NewChunker(RepoChunkerConfig())
	default:
		return NewChunker(s.cvConfig)
	}
}

// chunkSources はチャンク列に現れるソース名を出現順で返す
func chunkSources(chunks []*Chunk) []string {
	seen := map[string]bool{}
	var sources []string
	for _, chunk := range chunks {
		if !seen[chunk.Source] {
			seen[chunk.Source] = true
			sources = append(sources, chunk.Source)
		}
	}
	return sources
}

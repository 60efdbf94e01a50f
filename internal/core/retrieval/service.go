package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/mo"

	"github.com/jinford/persona-rag/internal/core/ingestion"
)

// Embedder はクエリのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
	// ModelName は使用中のEmbeddingモデル名を返す
	ModelName() string
}

// Repository は検索経路のベクトルストア操作インターフェース
type Repository interface {
	// CollectionModel はコレクションに固定されたEmbeddingモデル名を返す
	CollectionModel(ctx context.Context, collection string) (string, error)
	// Search はコサイン類似度の降順で上位k件を返す。
	// threshold 未満のスコアの結果は含まれない。
	Search(ctx context.Context, collection string, vector []float32, k int, threshold float64, source mo.Option[string]) ([]*ScoredChunk, error)
}

// Retriever はクエリのEmbedding生成と近傍検索を統括する
type Retriever struct {
	repo       Repository
	embedder   Embedder
	collection string
	topK       int
	minScore   float64
	logger     *slog.Logger

	// モデル一致検証は成功するまで検索のたびに試み、成功後は省略する
	verifyMu sync.Mutex
	verified bool
}

type retrieverOptions struct {
	topK     int
	minScore float64
	logger   *slog.Logger
}

// RetrieverOption は Retriever のオプション設定
type RetrieverOption func(*retrieverOptions)

// WithRetrieverLogger は Retriever にロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(o *retrieverOptions) {
		o.logger = logger
	}
}

// WithRetrieverDefaults はデフォルトの取得件数と類似度下限を上書きする
func WithRetrieverDefaults(topK int, minScore float64) RetrieverOption {
	return func(o *retrieverOptions) {
		o.topK = topK
		o.minScore = minScore
	}
}

// NewRetriever は新しい Retriever を作成する
func NewRetriever(repo Repository, embedder Embedder, collection string, opts ...RetrieverOption) *Retriever {
	options := retrieverOptions{
		topK:     DefaultTopK,
		minScore: DefaultMinScore,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.topK <= 0 {
		options.topK = DefaultTopK
	}

	return &Retriever{
		repo:       repo,
		embedder:   embedder,
		collection: collection,
		topK:       options.topK,
		minScore:   options.minScore,
		logger:     options.logger,
	}
}

// Retrieve はクエリに類似するチャンクをスコア降順で返す。
// 閾値を超える結果がない場合は空スライスを返す（エラーではない）。
// トランスポート障害は ErrRetrievalFailed でラップされる。
func (r *Retriever) Retrieve(ctx context.Context, params RetrieveParams) ([]*ScoredChunk, error) {
	if params.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	if err := r.verifyCollectionModel(ctx); err != nil {
		return nil, err
	}

	topK := params.TopK
	if topK <= 0 {
		topK = r.topK
	}
	minScore := params.MinScore.OrElse(r.minScore)

	queryVector, err := r.embedder.Embed(ctx, params.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.repo.Search(ctx, r.collection, queryVector, topK, minScore, params.Source)
	if err != nil {
		// 検証済みでも後からコレクションが消える場合がある
		if errors.Is(err, ingestion.ErrCollectionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	r.logger.Info("retrieval completed",
		"query", truncateForLog(params.Query, 50),
		"results", len(results),
		"topK", topK,
		"minScore", minScore,
	)

	return results, nil
}

// verifyCollectionModel はコレクションに固定されたモデルと
// このRetrieverのEmbedderのモデルが一致することを検証する。
// 書き込み経路と異なるEmbedding空間で検索することを防ぐ。
func (r *Retriever) verifyCollectionModel(ctx context.Context) error {
	r.verifyMu.Lock()
	defer r.verifyMu.Unlock()

	if r.verified {
		return nil
	}

	model, err := r.repo.CollectionModel(ctx, r.collection)
	if err != nil {
		return fmt.Errorf("failed to resolve collection model: %w", err)
	}
	if model != r.embedder.ModelName() {
		return fmt.Errorf("collection %q is pinned to model %q but embedder uses %q: %w",
			r.collection, model, r.embedder.ModelName(), ingestion.ErrModelMismatch)
	}

	r.verified = true
	return nil
}

// truncateForLog はログ用にテキストを短縮する
func truncateForLog(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

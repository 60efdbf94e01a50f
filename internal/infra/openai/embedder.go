package openai

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/persona-rag/internal/core/ingestion"
	"github.com/jinford/persona-rag/internal/core/retrieval"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension はOpenAI推奨のデフォルト次元
	DefaultEmbeddingDimension = 1536
	// maxEmbeddingBatchSize はOpenAI APIの1リクエスト上限
	maxEmbeddingBatchSize = 100
	// maxInputTokens は埋め込みモデルの入力トークン上限。
	// 超過した入力はエラーにせず末尾を切り詰める
	maxInputTokens = 8191
	// embeddingEncoding は text-embedding-3 系が使うトークナイザ
	embeddingEncoding = "cl100k_base"
)

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	encoder   *tiktoken.Tiktoken
	logger    *slog.Logger
}

type embedderOptions struct {
	model     string
	dimension int
	logger    *slog.Logger
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithEmbedderLogger はロガーを上書きする
func WithEmbedderLogger(logger *slog.Logger) EmbedderOption {
	return func(o *embedderOptions) {
		o.logger = logger
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	encoder, err := tiktoken.GetEncoding(embeddingEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", embeddingEncoding, err)
	}

	return &Embedder{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
		),
		model:     options.model,
		dimension: options.dimension,
		encoder:   encoder,
		logger:    options.logger,
	}, nil
}

// Embed は単一テキストの Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings generated")
	}

	return embeddings[0], nil
}

// BatchEmbed はバッチで Embedding を生成する（最大100件）。
// 戻り値は入力と同じ順序になる
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	if len(texts) > maxEmbeddingBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds maximum of %d", len(texts), maxEmbeddingBatchSize)
	}

	inputs := make([]string, len(texts))
	for i, text := range texts {
		inputs[i] = e.truncate(ctx, text)
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
	}

	if len(inputs) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(inputs[0]),
		}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: inputs,
		}
	}

	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.embedWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	// APIは順序を保証しないのでIndexで並べ直す
	data := make([]openai.Embedding, len(resp.Data))
	copy(data, resp.Data)
	sort.Slice(data, func(i, j int) bool {
		return data[i].Index < data[j].Index
	})

	embeddings := make([][]float32, 0, len(data))
	for _, d := range data {
		vector := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vector[i] = float32(v)
		}
		embeddings = append(embeddings, vector)
	}

	return embeddings, nil
}

func (e *Embedder) embedWithRetry(ctx context.Context, params openai.EmbeddingNewParams) (*openai.CreateEmbeddingResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDuration(attempt)):
			}
		}

		resp, err := e.client.Embeddings.New(ctx, params)
		if err != nil {
			lastErr = err

			if isRetryableError(err) {
				e.logger.WarnContext(ctx, "embedding request failed, retrying",
					slog.Int("attempt", attempt+1),
					slog.String("error", err.Error()),
				)
				continue
			}

			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// truncate はトークン上限を超えるテキストを上限以内に切り詰める
func (e *Embedder) truncate(ctx context.Context, text string) string {
	tokens := e.encoder.Encode(text, nil, nil)
	if len(tokens) <= maxInputTokens {
		return text
	}

	e.logger.WarnContext(ctx, "input exceeds token limit, truncating",
		slog.Int("tokens", len(tokens)),
		slog.Int("limit", maxInputTokens),
	)

	return e.encoder.Decode(tokens[:maxInputTokens])
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// MaxBatchSize は1回の呼び出しで処理できる最大テキスト数を返す
func (e *Embedder) MaxBatchSize() int {
	return maxEmbeddingBatchSize
}

// インターフェース実装の確認
var (
	_ ingestion.Embedder = (*Embedder)(nil)
	_ retrieval.Embedder = (*Embedder)(nil)
)

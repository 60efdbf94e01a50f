package generation

import (
	"context"
	"log/slog"

	"github.com/jinford/persona-rag/internal/core/retrieval"
)

const (
	// DefaultOwnerName はペルソナ名未設定時の呼称
	DefaultOwnerName = "the portfolio owner"

	// FallbackAnswer は生成APIの失敗時にユーザーへ返す定型文
	FallbackAnswer = "I'm sorry, I encountered an error while processing your question. Please try again."
)

// CompletionRequest は補完APIへの要求を表す
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// CompletionClient は外部のテキスト補完サービスのインターフェース
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Generator は検索コンテキストからプロンプトを組み立て、回答を生成する
type Generator struct {
	client      CompletionClient
	ownerName   string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

type generatorOptions struct {
	ownerName   string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// GeneratorOption は Generator のオプション設定
type GeneratorOption func(*generatorOptions)

// WithOwnerName はペルソナ名を設定する
func WithOwnerName(name string) GeneratorOption {
	return func(o *generatorOptions) {
		if name != "" {
			o.ownerName = name
		}
	}
}

// WithSampling は温度と最大トークン数を上書きする
func WithSampling(temperature float64, maxTokens int) GeneratorOption {
	return func(o *generatorOptions) {
		o.temperature = temperature
		if maxTokens > 0 {
			o.maxTokens = maxTokens
		}
	}
}

// WithGeneratorLogger は Generator にロガーを設定する
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(o *generatorOptions) {
		o.logger = logger
	}
}

// NewGenerator は新しい Generator を作成する
func NewGenerator(client CompletionClient, opts ...GeneratorOption) *Generator {
	options := generatorOptions{
		ownerName:   DefaultOwnerName,
		temperature: 0.7,
		maxTokens:   500,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Generator{
		client:      client,
		ownerName:   options.ownerName,
		temperature: options.temperature,
		maxTokens:   options.maxTokens,
		logger:      options.logger,
	}
}

// Generate は質問とコンテキストから回答を生成する。
// 補完APIの失敗は呼び出し側へ伝播させず、定型の謝罪文へ落とす。
func (g *Generator) Generate(ctx context.Context, question string, contexts []*retrieval.ScoredChunk) string {
	req := CompletionRequest{
		System:      BuildSystemPrompt(g.ownerName, contexts),
		User:        BuildUserPrompt(question),
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}

	answer, err := g.client.Complete(ctx, req)
	if err != nil {
		g.logger.Error("answer generation failed, returning fallback",
			"error", err,
			"contexts", len(contexts),
		)
		return FallbackAnswer
	}

	g.logger.Info("answer generated",
		"answerLength", len(answer),
		"contexts", len(contexts),
	)

	return answer
}

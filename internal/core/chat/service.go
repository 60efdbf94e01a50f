package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/persona-rag/internal/core/retrieval"
	"github.com/jinford/persona-rag/internal/core/user"
)

const (
	// DefaultMessageLimit はユーザーあたりのソフトなメッセージ数上限
	DefaultMessageLimit = 50

	// RefusedAnswer はモデレーションで弾かれた質問への定型応答
	RefusedAnswer = "I'm sorry, but I can't help with that request. Feel free to ask me something else about my background or work."

	// LimitReachedAnswer はメッセージ数上限に達したユーザーへの定型応答
	LimitReachedAnswer = "You've reached the message limit for this chat. Thanks for the great conversation!"
)

// Retriever は質問に関連するチャンクを検索する
type Retriever interface {
	Retrieve(ctx context.Context, params retrieval.RetrieveParams) ([]*retrieval.ScoredChunk, error)
}

// Generator は検索結果を文脈として回答文を生成する
type Generator interface {
	Generate(ctx context.Context, question string, contexts []*retrieval.ScoredChunk) string
}

// Moderator は入力テキストがポリシー違反かどうかを判定する
type Moderator interface {
	Flagged(ctx context.Context, text string) (bool, error)
}

// UserStore は任意依存。nil の場合レート制限と履歴記録はスキップされる
type UserStore interface {
	IncrementMessageCount(ctx context.Context, id uuid.UUID) (int, error)
	RecordChatTurn(ctx context.Context, userID uuid.UUID, question, answer string) error
}

var _ UserStore = (user.Repository)(nil)

// Service は検索と生成を束ねてチャット応答を組み立てるオーケストレータ
type Service struct {
	retriever    Retriever
	generator    Generator
	moderator    Moderator
	users        UserStore
	messageLimit int
	logger       *slog.Logger
}

type serviceOptions struct {
	moderator    Moderator
	users        UserStore
	messageLimit int
	logger       *slog.Logger
}

type ServiceOption func(*serviceOptions)

// WithModerator はモデレーションゲートを有効にする
func WithModerator(m Moderator) ServiceOption {
	return func(o *serviceOptions) {
		o.moderator = m
	}
}

// WithUserStore はレート制限と履歴記録を有効にする
func WithUserStore(s UserStore, messageLimit int) ServiceOption {
	return func(o *serviceOptions) {
		o.users = s
		if messageLimit > 0 {
			o.messageLimit = messageLimit
		}
	}
}

func WithChatLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

func NewService(retriever Retriever, generator Generator, opts ...ServiceOption) *Service {
	options := &serviceOptions{
		messageLimit: DefaultMessageLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Service{
		retriever:    retriever,
		generator:    generator,
		moderator:    options.moderator,
		users:        options.users,
		messageLimit: options.messageLimit,
		logger:       options.logger,
	}
}

// Answer はユーザーの質問に対する回答と出典を返す。
// 検索に失敗した場合のみエラーを返し、生成の失敗は Generator 側で
// フォールバック応答に吸収される。
func (s *Service) Answer(ctx context.Context, params AnswerParams) (*AnswerResult, error) {
	message := strings.TrimSpace(params.Message)
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}

	if refused := s.moderate(ctx, message); refused {
		s.recordTurn(ctx, params.UserID, message, RefusedAnswer)
		return &AnswerResult{Answer: RefusedAnswer, Sources: []Source{}}, nil
	}

	if limited := s.checkLimit(ctx, params.UserID); limited {
		return &AnswerResult{Answer: LimitReachedAnswer, Sources: []Source{}}, nil
	}

	contexts, err := s.retriever.Retrieve(ctx, retrieval.RetrieveParams{
		Query: message,
	})
	if err != nil {
		return nil, err
	}

	answer := s.generator.Generate(ctx, message, contexts)

	s.recordTurn(ctx, params.UserID, message, answer)

	return &AnswerResult{
		Answer:  answer,
		Sources: buildSources(contexts),
	}, nil
}

// moderate は true を返した場合、質問を処理せず定型応答で打ち切る。
// 判定自体の失敗は警告ログに留めて通過させる。
func (s *Service) moderate(ctx context.Context, message string) bool {
	if s.moderator == nil {
		return false
	}

	flagged, err := s.moderator.Flagged(ctx, message)
	if err != nil {
		s.logger.WarnContext(ctx, "moderation check failed, allowing message",
			slog.String("error", err.Error()),
		)
		return false
	}

	if flagged {
		s.logger.InfoContext(ctx, "message flagged by moderation")
	}
	return flagged
}

// checkLimit はメッセージ数をインクリメントし、上限超過なら true を返す。
// カウントの失敗はソフトに扱い、制限なしで通過させる。
func (s *Service) checkLimit(ctx context.Context, userID mo.Option[uuid.UUID]) bool {
	id, ok := userID.Get()
	if !ok || s.users == nil {
		return false
	}

	count, err := s.users.IncrementMessageCount(ctx, id)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to increment message count",
			slog.String("user_id", id.String()),
			slog.String("error", err.Error()),
		)
		return false
	}

	return s.messageLimit > 0 && count > s.messageLimit
}

func (s *Service) recordTurn(ctx context.Context, userID mo.Option[uuid.UUID], question, answer string) {
	id, ok := userID.Get()
	if !ok || s.users == nil {
		return
	}

	if err := s.users.RecordChatTurn(ctx, id, question, answer); err != nil {
		s.logger.WarnContext(ctx, "failed to record chat turn",
			slog.String("user_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
}

func buildSources(contexts []*retrieval.ScoredChunk) []Source {
	sources := make([]Source, 0, len(contexts))
	for _, c := range contexts {
		src := Source{Score: c.Score}
		if title := sourceTitle(c); title != "" {
			src.Title = &title
		}
		if url, ok := c.Chunk.Metadata["url"]; ok && url != "" {
			src.URL = &url
		}
		sources = append(sources, src)
	}
	return sources
}

// sourceTitle はメタデータのタイトルを優先し、無ければ見出しを使う
func sourceTitle(c *retrieval.ScoredChunk) string {
	if title, ok := c.Chunk.Metadata["title"]; ok && title != "" {
		return title
	}
	return c.Chunk.Heading
}

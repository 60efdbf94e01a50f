package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Repository はユーザーと会話履歴の永続化層
type Repository interface {
	// CreateUser は新しいユーザーを作成して返す
	CreateUser(ctx context.Context, name, interests string) (*User, error)
	// GetUser は ID でユーザーを取得する。存在しない場合は ErrUserNotFound を返す
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	// IncrementMessageCount はメッセージ数をアトミックに +1 し、加算後の値を返す
	IncrementMessageCount(ctx context.Context, id uuid.UUID) (int, error)
	// RecordChatTurn は質問と回答を1トランザクションで履歴に追記する
	RecordChatTurn(ctx context.Context, userID uuid.UUID, question, answer string) error
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

type serviceOptions struct {
	logger *slog.Logger
}

type ServiceOption func(*serviceOptions)

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

func NewService(repo Repository, opts ...ServiceOption) *Service {
	options := &serviceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Service{
		repo:   repo,
		logger: options.logger,
	}
}

// Onboard は名前と興味分野を受け取り新規ユーザーを作成する
func (s *Service) Onboard(ctx context.Context, name, interests string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	u, err := s.repo.CreateUser(ctx, name, strings.TrimSpace(interests))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user onboarded",
		slog.String("user_id", u.ID.String()),
		slog.String("name", u.Name),
	)

	return u, nil
}

// Get は ID でユーザーを取得する
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return u, nil
}

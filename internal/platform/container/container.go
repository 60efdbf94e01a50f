package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/persona-rag/internal/core/chat"
	"github.com/jinford/persona-rag/internal/core/generation"
	"github.com/jinford/persona-rag/internal/core/ingestion"
	"github.com/jinford/persona-rag/internal/core/retrieval"
	"github.com/jinford/persona-rag/internal/core/user"
	"github.com/jinford/persona-rag/internal/infra/openai"
	"github.com/jinford/persona-rag/internal/infra/postgres"
	"github.com/jinford/persona-rag/internal/platform/config"
	"github.com/jinford/persona-rag/internal/platform/database"
)

// Container はアプリケーションの依存関係を組み立てて保持する
type Container struct {
	Config     *config.Config
	Database   *database.DB
	VectorRepo *postgres.VectorRepository
	UserRepo   *postgres.UserRepository
	Embedder   *openai.Embedder
	Ingest     *ingestion.IngestService
	Retriever  *retrieval.Retriever
	Generator  *generation.Generator
	Chat       *chat.Service
	Users      *user.Service

	logger *slog.Logger
}

type containerOptions struct {
	logger    *slog.Logger
	moderator chat.Moderator
}

// ContainerOption は Container 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithContainerModerator はモデレーション実装を差し替える
func WithContainerModerator(m chat.Moderator) ContainerOption {
	return func(o *containerOptions) {
		o.moderator = m
	}
}

// New は設定からDBに接続し、全サービスを組み立てる
func New(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	c, err := NewWithDB(cfg, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewWithDB は既存のDB接続を受け取り、全サービスを組み立てる
func NewWithDB(cfg *config.Config, db *database.DB, opts ...ContainerOption) (*Container, error) {
	options := containerOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	embedder, err := openai.NewEmbedder(cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		openai.WithEmbedderLogger(options.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	completionClient, err := openai.NewClient(cfg.OpenAI.APIKey,
		openai.WithCompletionModel(cfg.OpenAI.CompletionModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize completion client: %w", err)
	}

	moderator := options.moderator
	if moderator == nil && cfg.OpenAI.ModerationEnabled {
		m, err := openai.NewModerator(cfg.OpenAI.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize moderator: %w", err)
		}
		moderator = m
	}

	vectorRepo := postgres.NewVectorRepository(db)
	userRepo := postgres.NewUserRepository(db)

	ingest := ingestion.NewIngestService(embedder, vectorRepo, cfg.Collection.Name,
		ingestion.WithIngestLogger(options.logger),
		ingestion.WithIngestChunkerConfig(&ingestion.ChunkerConfig{
			TargetWords: cfg.Chunking.TargetWords,
			MaxWords:    cfg.Chunking.MaxWords,
			MinWords:    cfg.Chunking.MinWords,
		}),
	)

	retriever := retrieval.NewRetriever(vectorRepo, embedder, cfg.Collection.Name,
		retrieval.WithRetrieverLogger(options.logger),
		retrieval.WithRetrieverDefaults(cfg.Retrieval.TopK, cfg.Retrieval.MinScore),
	)

	generatorOpts := []generation.GeneratorOption{
		generation.WithSampling(cfg.OpenAI.Temperature, cfg.OpenAI.MaxTokens),
		generation.WithGeneratorLogger(options.logger),
	}
	if cfg.Chat.OwnerName != "" {
		generatorOpts = append(generatorOpts, generation.WithOwnerName(cfg.Chat.OwnerName))
	}
	generator := generation.NewGenerator(completionClient, generatorOpts...)

	chatOpts := []chat.ServiceOption{
		chat.WithChatLogger(options.logger),
		chat.WithUserStore(userRepo, cfg.Chat.MessageLimit),
	}
	if moderator != nil {
		chatOpts = append(chatOpts, chat.WithModerator(moderator))
	}
	chatService := chat.NewService(retriever, generator, chatOpts...)

	userService := user.NewService(userRepo, user.WithServiceLogger(options.logger))

	return &Container{
		Config:     cfg,
		Database:   db,
		VectorRepo: vectorRepo,
		UserRepo:   userRepo,
		Embedder:   embedder,
		Ingest:     ingest,
		Retriever:  retriever,
		Generator:  generator,
		Chat:       chatService,
		Users:      userService,
		logger:     options.logger,
	}, nil
}

// Logger はコンテナのロガーを返す
func (c *Container) Logger() *slog.Logger {
	return c.logger
}

// Close は保持しているリソースを解放する
func (c *Container) Close() {
	if c.Database != nil {
		c.Database.Close()
	}
}

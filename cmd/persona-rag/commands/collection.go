package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/persona-rag/internal/infra/postgres"
)

// CollectionInitAction はスキーマを適用し、設定されたEmbeddingモデルで
// コレクションを作成する。既存コレクションのモデルが異なる場合は失敗する
func CollectionInitAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	if err := postgres.Migrate(ctx, app.Container.Database); err != nil {
		return err
	}

	cfg := app.Config
	if err := app.Container.VectorRepo.EnsureCollection(ctx,
		cfg.Collection.Name,
		cfg.OpenAI.EmbeddingModel,
		cfg.OpenAI.EmbeddingDimension,
	); err != nil {
		return err
	}

	fmt.Printf("コレクション %q を初期化しました (model=%s, dimension=%d)\n",
		cfg.Collection.Name, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.EmbeddingDimension)

	return nil
}

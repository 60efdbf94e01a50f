package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/persona-rag/internal/core/ingestion"
)

// ExportChunksAction はCVファイルをチャンク化してJSONLに書き出す。
// Embedding生成もベクトルストアへの書き込みも行わない
func ExportChunksAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	doc, err := loadCVDocument(cmd.String("file"))
	if err != nil {
		return err
	}

	outputPath := cmd.String("output")
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("出力ファイルを作成できません: %w", err)
	}
	defer out.Close()

	report, err := app.Container.Ingest.ExportChunks(ctx, []*ingestion.Document{doc}, out)
	if err != nil {
		return err
	}

	fmt.Printf("%d件のチャンクを %s に書き出しました\n", report.TotalChunks, outputPath)
	return nil
}

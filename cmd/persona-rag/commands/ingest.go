package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/persona-rag/internal/core/ingestion"
	"github.com/jinford/persona-rag/internal/infra/github"
	"github.com/jinford/persona-rag/internal/infra/medium"
)

// IngestCVAction はローカルのCVファイルを取り込む
func IngestCVAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	doc, err := loadCVDocument(cmd.String("file"))
	if err != nil {
		return err
	}

	report, err := app.Container.Ingest.IngestDocuments(ctx, []*ingestion.Document{doc})
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

// IngestMediumAction はMediumのRSSフィードからブログ記事を取り込む
func IngestMediumAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	feedURL := cmd.String("feed")
	if feedURL == "" {
		feedURL = app.Config.Sources.MediumFeedURL
	}

	source, err := medium.NewSource(feedURL, medium.WithSourceLogger(app.Logger()))
	if err != nil {
		return err
	}

	docs, err := source.FetchDocuments(ctx)
	if err != nil {
		return err
	}

	report, err := app.Container.Ingest.IngestDocuments(ctx, docs)
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

// IngestGitHubAction はGitHubの公開リポジトリメタデータを取り込む
func IngestGitHubAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	user := cmd.String("user")
	if user == "" {
		user = app.Config.Sources.GitHubUser
	}

	source, err := github.NewSource(user,
		github.WithToken(app.Config.Sources.GitHubToken),
		github.WithSourceLogger(app.Logger()),
	)
	if err != nil {
		return err
	}

	docs, err := source.FetchDocuments(ctx)
	if err != nil {
		return err
	}

	report, err := app.Container.Ingest.IngestDocuments(ctx, docs)
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

// IngestChunksAction はチャンク化済みJSONLファイルを取り込む
func IngestChunksAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	path := cmd.String("file")
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("JSONLファイルを開けません: %w", err)
	}
	defer f.Close()

	chunks, err := ingestion.ReadChunksJSONL(f)
	if err != nil {
		return err
	}

	report := &ingestion.IngestReport{}
	if err := app.Container.Ingest.UpsertChunks(ctx, chunks, report); err != nil {
		return err
	}

	printReport(report)
	return nil
}

// loadCVDocument はCVファイルを読み込み、拡張子からフォーマットを判定する
func loadCVDocument(path string) (*ingestion.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("CVファイルを読み込めません: %w", err)
	}

	var format ingestion.SourceFormat
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		format = ingestion.FormatPDF
	case ".md", ".markdown":
		format = ingestion.FormatMarkdown
	case ".html", ".htm":
		format = ingestion.FormatHTML
	default:
		return nil, fmt.Errorf("未対応のファイル形式です: %s", path)
	}

	return &ingestion.Document{
		SourceLabel: "cv",
		Format:      format,
		Raw:         raw,
		Filename:    filepath.Base(path),
	}, nil
}

func printReport(report *ingestion.IngestReport) {
	fmt.Printf("ドキュメント: %d件（失敗 %d件）\n", report.Documents, report.FailedDocuments)
	fmt.Printf("チャンク: %d件中 %d件を登録\n", report.TotalChunks, report.UpsertedChunks)
	if len(report.SkippedChunkIDs) > 0 {
		fmt.Printf("スキップ: %d件 (%s)\n", len(report.SkippedChunkIDs), strings.Join(report.SkippedChunkIDs, ", "))
	}
	if report.Duration > 0 {
		fmt.Printf("所要時間: %s\n", report.Duration)
	}
}

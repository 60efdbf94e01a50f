package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/persona-rag/cmd/persona-rag/commands"
	"github.com/jinford/persona-rag/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger.New(logger.FromEnv())

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "persona-rag",
		Usage: "本人のCV・ブログ・リポジトリを知識源とするパーソナルRAGチャットボット",
		Commands: []*cli.Command{
			{
				Name:  "collection",
				Usage: "ベクトルコレクション管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "スキーマを適用し、設定されたモデルでコレクションを作成",
						Flags:  []cli.Flag{envFlag},
						Action: commands.CollectionInitAction,
					},
				},
			},
			{
				Name:  "ingest",
				Usage: "ドキュメント取り込みコマンド",
				Commands: []*cli.Command{
					{
						Name:  "cv",
						Usage: "CVファイル（PDF / Markdown）を取り込む",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "file",
								Usage:    "CVファイルのパス",
								Required: true,
							},
						},
						Action: commands.IngestCVAction,
					},
					{
						Name:  "medium",
						Usage: "MediumのRSSフィードからブログ記事を取り込む",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:  "feed",
								Usage: "フィードURL（未指定時は MEDIUM_FEED_URL）",
							},
						},
						Action: commands.IngestMediumAction,
					},
					{
						Name:  "github",
						Usage: "GitHubの公開リポジトリメタデータを取り込む",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:  "user",
								Usage: "GitHubユーザー名（未指定時は GITHUB_USERNAME）",
							},
						},
						Action: commands.IngestGitHubAction,
					},
					{
						Name:  "chunks",
						Usage: "チャンク化済みJSONLファイルを取り込む",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "file",
								Usage:    "JSONLファイルのパス",
								Required: true,
							},
						},
						Action: commands.IngestChunksAction,
					},
				},
			},
			{
				Name:  "export",
				Usage: "エクスポートコマンド",
				Commands: []*cli.Command{
					{
						Name:  "chunks",
						Usage: "CVファイルをチャンク化してJSONLに書き出す（取り込みは行わない）",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "file",
								Usage:    "CVファイルのパス",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "output",
								Usage:    "出力先JSONLファイルのパス",
								Required: true,
							},
						},
						Action: commands.ExportChunksAction,
					},
				},
			},
			{
				Name:  "server",
				Usage: "HTTPサーバコマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "チャットAPIサーバを起動",
						Flags: []cli.Flag{
							envFlag,
							&cli.IntFlag{
								Name:  "port",
								Usage: "待ち受けポート（未指定時は PORT 環境変数）",
							},
						},
						Action: commands.ServerStartAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

package medium

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/jinford/persona-rag/internal/core/ingestion"
)

// DefaultTimeout はフィード取得のタイムアウト
const DefaultTimeout = 30 * time.Second

// Source はMediumのRSSフィードからブログ記事を取り込み用ドキュメントに変換する。
// MediumのフィードはHTML本文を含むので Format は html になる
type Source struct {
	parser  *gofeed.Parser
	feedURL string
	logger  *slog.Logger
}

type sourceOptions struct {
	logger *slog.Logger
}

// SourceOption は Source のオプション設定
type SourceOption func(*sourceOptions)

// WithSourceLogger はロガーを上書きする
func WithSourceLogger(logger *slog.Logger) SourceOption {
	return func(o *sourceOptions) {
		o.logger = logger
	}
}

// NewSource はRSSフィードURLを読む Source を作成する。
// MediumのフィードURLは https://medium.com/feed/@username の形式
func NewSource(feedURL string, opts ...SourceOption) (*Source, error) {
	if feedURL == "" {
		return nil, fmt.Errorf("feed URL is required")
	}

	options := sourceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Source{
		parser:  gofeed.NewParser(),
		feedURL: feedURL,
		logger:  options.logger,
	}, nil
}

// FetchDocuments はフィードの各記事をドキュメントに変換して返す
func (s *Source) FetchDocuments(ctx context.Context) ([]*ingestion.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	feed, err := s.parser.ParseURLWithContext(s.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", s.feedURL, err)
	}

	documents := make([]*ingestion.Document, 0, len(feed.Items))
	for _, item := range feed.Items {
		body := item.Content
		if body == "" {
			body = item.Description
		}
		if body == "" {
			s.logger.WarnContext(ctx, "feed item has no content, skipping",
				slog.String("title", item.Title),
			)
			continue
		}

		documents = append(documents, &ingestion.Document{
			SourceLabel: "medium",
			Format:      ingestion.FormatHTML,
			Raw:         []byte(body),
			Title:       item.Title,
			URL:         item.Link,
			Category:    ingestion.ChunkTypeBlog,
		})
	}

	s.logger.InfoContext(ctx, "fetched medium feed",
		slog.String("feed", feed.Title),
		slog.Int("items", len(feed.Items)),
		slog.Int("documents", len(documents)),
	)

	return documents, nil
}

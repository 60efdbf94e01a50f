package ingestion

import (
	"errors"
	"fmt"
)

// SourceFormat はドキュメントの元フォーマットを表す
type SourceFormat string

const (
	FormatPDF      SourceFormat = "pdf"
	FormatMarkdown SourceFormat = "markdown"
	FormatHTML     SourceFormat = "html"
)

// ChunkType はチャンクの分類カテゴリを表す
type ChunkType string

const (
	ChunkTypeExperience  ChunkType = "experience"
	ChunkTypeEducation   ChunkType = "education"
	ChunkTypeSkills      ChunkType = "skills"
	ChunkTypeAchievement ChunkType = "achievement"
	ChunkTypeGeneral     ChunkType = "general"
	ChunkTypeBlog        ChunkType = "blog"
	ChunkTypeRepoMeta    ChunkType = "repo-meta"
)

var (
	// ErrNoExtractableText はドキュメントから本文を抽出できなかった場合のエラー
	ErrNoExtractableText = errors.New("document contains no extractable text")

	// ErrEmbeddingFailed はリトライ後もEmbedding生成に失敗した場合のエラー
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrModelMismatch はコレクションに固定されたモデルとEmbedderのモデルが異なる場合のエラー
	ErrModelMismatch = errors.New("embedding model does not match collection model")

	// ErrCollectionNotFound は対象コレクションが存在しない場合のエラー。
	// コレクションの事前作成は呼び出し側の責務とする。
	ErrCollectionNotFound = errors.New("collection not found")
)

// Document はインジェスト対象の不変なソースドキュメントを表す。
// 取り込み実行中にのみ存在し、永続化はされない。
type Document struct {
	SourceLabel string       // ソース識別子（"cv", "medium", "github" など）
	Format      SourceFormat // 元フォーマット
	Raw         []byte       // 生のバイト列またはテキスト
	Filename    string       // 元ファイル名（メタデータ用）
	Title       string       // ブログ記事やリポジトリのタイトル（任意）
	URL         string       // 元URL（任意）

	// Category が指定されている場合、見出しによる分類を行わず
	// 全チャンクにこのタイプを付与する（blog / repo-meta ソース用）
	Category ChunkType
}

// Chunk は検索の最小単位となるテキスト断片を表す。
// ID はソース名とインデックスから決定的に生成されるため、
// 同一入力の再取り込みは同じ ID 列を生成する（upsert セマンティクス）。
type Chunk struct {
	ID        string            `json:"id"`
	Index     int               `json:"chunk_index"`
	Text      string            `json:"text"`
	Source    string            `json:"source"`
	Heading   string            `json:"heading,omitempty"`
	Type      ChunkType         `json:"chunk_type"`
	WordCount int               `json:"word_count"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ChunkID はチャンクIDを生成する
// 形式: {source_label}-{chunk_index}
func ChunkID(source string, index int) string {
	return fmt.Sprintf("%s-%d", source, index)
}

// SectionMarker は本文中のセクション境界を表す。
// Offset は見出しテキストを除去した本文内の位置を指す。
type SectionMarker struct {
	Offset  int
	Heading string
}

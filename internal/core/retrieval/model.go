package retrieval

import (
	"errors"

	"github.com/samber/mo"

	"github.com/jinford/persona-rag/internal/core/ingestion"
)

const (
	// DefaultTopK は検索結果のデフォルト取得件数
	DefaultTopK = 3
	// DefaultMinScore はデフォルトの類似度下限
	DefaultMinScore = 0.3
)

// ErrRetrievalFailed は検索時のトランスポート障害を表す。
// 「一致なし（空の結果）」とは区別され、サービスレベルの失敗として呼び出し側へ伝播する。
var ErrRetrievalFailed = errors.New("retrieval failed")

// ScoredChunk は類似度スコア付きの検索結果を表す
type ScoredChunk struct {
	Chunk *ingestion.Chunk
	Score float64
}

// RetrieveParams は検索パラメータを表す
type RetrieveParams struct {
	Query    string
	TopK     int                // 0以下でデフォルト適用
	MinScore mo.Option[float64] // 未指定でデフォルト適用
	Source   mo.Option[string]  // ソースによる絞り込み（任意）
}

package chat

import (
	"github.com/google/uuid"
	"github.com/samber/mo"
)

// AnswerParams はチャット応答のリクエストパラメータ
type AnswerParams struct {
	// Message はユーザーからの質問文
	Message string
	// UserID は任意。指定された場合のみレート制限と履歴記録が行われる
	UserID mo.Option[uuid.UUID]
}

// Source は回答の根拠となったチャンクの出典情報。
// CV 由来のチャンクはタイトルも URL も持たないことがある。
type Source struct {
	Title *string `json:"title"`
	URL   *string `json:"url"`
	Score float64 `json:"score"`
}

// AnswerResult はチャット応答の結果
type AnswerResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

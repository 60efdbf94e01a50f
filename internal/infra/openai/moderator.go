package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jinford/persona-rag/internal/core/chat"
)

// Moderator は OpenAI Moderations API で入力テキストを検査する
type Moderator struct {
	client openai.Client
}

// NewModerator は新しい Moderator を作成する
func NewModerator(apiKey string) (*Moderator, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return &Moderator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Flagged はテキストがポリシー違反と判定された場合に true を返す
func (m *Moderator) Flagged(ctx context.Context, text string) (bool, error) {
	resp, err := m.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return false, fmt.Errorf("moderation request failed: %w", err)
	}

	if len(resp.Results) == 0 {
		return false, fmt.Errorf("no moderation results returned")
	}

	return resp.Results[0].Flagged, nil
}

// インターフェース実装の確認
var _ chat.Moderator = (*Moderator)(nil)

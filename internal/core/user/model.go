package user

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sender はメッセージの送信者種別を表す
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// ErrUserNotFound は対象ユーザーが存在しない場合のエラー
var ErrUserNotFound = errors.New("user not found")

// User はオンボーディングで作成される利用者レコードを表す。
// 作成後の変更は message_count のインクリメントのみ。
type User struct {
	ID           uuid.UUID
	Name         string
	Interests    string
	CreatedAt    time.Time
	MessageCount int
}

// Message はチャットの1発言を表す。追記のみで更新・削除はされない。
type Message struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Text      string
	Sender    Sender
	CreatedAt time.Time
}

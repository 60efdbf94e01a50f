package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jinford/persona-rag/internal/core/user"
	"github.com/jinford/persona-rag/internal/platform/database"
)

// UserRepository は user.Repository を実装する PostgreSQL リポジトリ
type UserRepository struct {
	db *database.DB
}

// NewUserRepository は新しい UserRepository を返す
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

var _ user.Repository = (*UserRepository)(nil)

func (r *UserRepository) CreateUser(ctx context.Context, name, interests string) (*user.User, error) {
	var u user.User
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO users (name, interests)
		VALUES ($1, $2)
		RETURNING id, name, interests, message_count, created_at`,
		name, interests,
	).Scan(&u.ID, &u.Name, &u.Interests, &u.MessageCount, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return &u, nil
}

func (r *UserRepository) GetUser(ctx context.Context, id uuid.UUID) (*user.User, error) {
	var u user.User
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, interests, message_count, created_at
		FROM users
		WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Name, &u.Interests, &u.MessageCount, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", user.ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &u, nil
}

// IncrementMessageCount は message_count をアトミックに +1 し、加算後の値を返す
func (r *UserRepository) IncrementMessageCount(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE users
		SET message_count = message_count + 1
		WHERE id = $1
		RETURNING message_count`,
		id,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", user.ErrUserNotFound, id)
		}
		return 0, fmt.Errorf("failed to increment message count: %w", err)
	}

	return count, nil
}

// RecordChatTurn は質問と回答を1トランザクションで履歴に追記する
func (r *UserRepository) RecordChatTurn(ctx context.Context, userID uuid.UUID, question, answer string) error {
	_, err := database.Transact(ctx, r.db, func(tx pgx.Tx) (struct{}, error) {
		if err := insertMessage(ctx, tx, userID, question, user.SenderUser); err != nil {
			return struct{}{}, err
		}
		if err := insertMessage(ctx, tx, userID, answer, user.SenderAgent); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("failed to record chat turn: %w", err)
	}
	return nil
}

func insertMessage(ctx context.Context, tx pgx.Tx, userID uuid.UUID, text string, sender user.Sender) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO messages (user_id, text, sender)
		VALUES ($1, $2, $3)`,
		userID, text, string(sender),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s message: %w", sender, err)
	}
	return nil
}

// ListMessages はユーザーの会話履歴を時系列で返す
func (r *UserRepository) ListMessages(ctx context.Context, userID uuid.UUID, limit int) ([]*user.Message, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, user_id, text, sender, created_at
		FROM messages
		WHERE user_id = $1
		ORDER BY created_at ASC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*user.Message, 0)
	for rows.Next() {
		var m user.Message
		var sender string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Text, &sender, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Sender = user.Sender(sender)
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}

	return messages, nil
}

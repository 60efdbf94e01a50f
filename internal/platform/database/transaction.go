package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Transact はプール上でトランザクションを開始して fn に渡し、
// 成功時にコミット、エラー時にロールバックする。
// https://threedots.tech/post/database-transactions-in-go/ のパターンに従う。
func Transact[T any](ctx context.Context, db *DB, fn func(pgx.Tx) (T, error)) (T, error) {
	var zero T
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}

	result, err := fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return zero, fmt.Errorf("tx rollback failed: %v (original err: %w)", rbErr, err)
		}
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

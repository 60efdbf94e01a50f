package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jinford/persona-rag/internal/platform/database"
)

//go:embed schema.sql
var schemaSQL string

// Migrate はスキーマを適用する。全DDLが IF NOT EXISTS なので再実行は安全
func Migrate(ctx context.Context, db *database.DB) error {
	if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

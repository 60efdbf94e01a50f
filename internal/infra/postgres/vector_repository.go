package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/persona-rag/internal/core/ingestion"
	"github.com/jinford/persona-rag/internal/core/retrieval"
	"github.com/jinford/persona-rag/internal/platform/database"
)

// VectorRepository は pgvector を使ったベクトルストア実装。
// インジェスト側 (ingestion.VectorStore) と検索側 (retrieval.Repository)
// の両インターフェースを実装する。
type VectorRepository struct {
	db *database.DB
}

// NewVectorRepository は新しい VectorRepository を返す
func NewVectorRepository(db *database.DB) *VectorRepository {
	return &VectorRepository{db: db}
}

var (
	_ ingestion.VectorStore = (*VectorRepository)(nil)
	_ retrieval.Repository  = (*VectorRepository)(nil)
)

// EnsureCollection はコレクションを作成する。既存の場合はモデルと次元が
// 一致することを検証し、不一致なら ingestion.ErrModelMismatch を返す
func (r *VectorRepository) EnsureCollection(ctx context.Context, name, model string, dimension int) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO collections (name, embedding_model, dimension)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING`,
		name, model, dimension,
	)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	existing, err := r.GetCollection(ctx, name)
	if err != nil {
		return err
	}

	if existing.Model != model || existing.Dimension != dimension {
		return fmt.Errorf("%w: collection %q is pinned to %s (dim %d), got %s (dim %d)",
			ingestion.ErrModelMismatch, name, existing.Model, existing.Dimension, model, dimension)
	}

	return nil
}

// GetCollection はコレクションのメタデータを取得する
func (r *VectorRepository) GetCollection(ctx context.Context, name string) (*ingestion.Collection, error) {
	var c ingestion.Collection
	err := r.db.Pool.QueryRow(ctx, `
		SELECT name, embedding_model, dimension
		FROM collections
		WHERE name = $1`,
		name,
	).Scan(&c.Name, &c.Model, &c.Dimension)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ingestion.ErrCollectionNotFound, name)
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	return &c, nil
}

// CollectionModel はコレクションに固定されたEmbeddingモデル名を返す
func (r *VectorRepository) CollectionModel(ctx context.Context, collection string) (string, error) {
	c, err := r.GetCollection(ctx, collection)
	if err != nil {
		return "", err
	}
	return c.Model, nil
}

// UpsertPoints は (id, vector, payload) のバッチを書き込む。同一IDは上書き
func (r *VectorRepository) UpsertPoints(ctx context.Context, collection string, points []*ingestion.Point) error {
	if len(points) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload for %s: %w", p.ChunkID, err)
		}

		batch.Queue(`
			INSERT INTO chunk_points (collection_name, chunk_id, source, embedding, payload, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (collection_name, chunk_id) DO UPDATE
			SET source = EXCLUDED.source,
			    embedding = EXCLUDED.embedding,
			    payload = EXCLUDED.payload,
			    updated_at = now()`,
			collection, p.ChunkID, p.Payload.Source, pgvector.NewVector(p.Vector), payload,
		)
	}

	results := r.db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	for range points {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert points: %w", err)
		}
	}

	return nil
}

// DeleteBySource は指定ソースの全ポイントを削除する
func (r *VectorRepository) DeleteBySource(ctx context.Context, collection string, source string) error {
	_, err := r.db.Pool.Exec(ctx, `
		DELETE FROM chunk_points
		WHERE collection_name = $1 AND source = $2`,
		collection, source,
	)
	if err != nil {
		return fmt.Errorf("failed to delete points for source %s: %w", source, err)
	}
	return nil
}

// Search はコサイン類似度の降順で上位k件を返す。
// スコアが threshold 未満の行は結果に含まれない。
// コレクションが存在しない場合は空結果ではなく
// ingestion.ErrCollectionNotFound を返す
func (r *VectorRepository) Search(ctx context.Context, collection string, vector []float32, k int, threshold float64, source mo.Option[string]) ([]*retrieval.ScoredChunk, error) {
	if _, err := r.GetCollection(ctx, collection); err != nil {
		return nil, err
	}

	query := `
		SELECT payload, 1 - (embedding <=> $1) AS score
		FROM chunk_points
		WHERE collection_name = $2
		  AND 1 - (embedding <=> $1) >= $3`
	args := []any{pgvector.NewVector(vector), collection, threshold}

	if src, ok := source.Get(); ok {
		query += ` AND source = $4`
		args = append(args, src)
	}

	query += `
		ORDER BY score DESC
		LIMIT ` + fmt.Sprintf("%d", k)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	results := make([]*retrieval.ScoredChunk, 0, k)
	for rows.Next() {
		var (
			payload []byte
			score   float64
		)
		if err := rows.Scan(&payload, &score); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}

		var chunk ingestion.Chunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk payload: %w", err)
		}

		results = append(results, &retrieval.ScoredChunk{
			Chunk: &chunk,
			Score: score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search rows: %w", err)
	}

	return results, nil
}

// CountPoints はコレクション内のポイント数を返す
func (r *VectorRepository) CountPoints(ctx context.Context, collection string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT count(*) FROM chunk_points WHERE collection_name = $1`,
		collection,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return count, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// GalleryCacheRepository caches gallery embeddings keyed by image content hash.
type GalleryCacheRepository struct {
	pool *Pool
}

func NewGalleryCacheRepository(pool *Pool) *GalleryCacheRepository {
	return &GalleryCacheRepository{pool: pool}
}

// LookupEmbedding returns the cached embedding for hash and whether it was found.
func (r *GalleryCacheRepository) LookupEmbedding(ctx context.Context, hash string) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := r.pool.db.QueryRowContext(ctx, "SELECT embedding FROM gallery_embeddings WHERE hash = $1", hash).Scan(&vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query gallery embedding: %w", err)
	}
	return vec.Slice(), true, nil
}

// StoreEmbedding inserts or replaces the embedding for hash.
func (r *GalleryCacheRepository) StoreEmbedding(ctx context.Context, hash, identity, path string, embedding []float32) error {
	query := `
		INSERT INTO gallery_embeddings (hash, identity, path, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hash) DO UPDATE SET
			identity = EXCLUDED.identity,
			path = EXCLUDED.path,
			embedding = EXCLUDED.embedding,
			created_at = NOW()
	`
	if _, err := r.pool.db.ExecContext(ctx, query, hash, identity, path, pgvector.NewVector(embedding)); err != nil {
		return fmt.Errorf("save gallery embedding: %w", err)
	}
	return nil
}

func (r *GalleryCacheRepository) CountEmbeddings(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM gallery_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count gallery embeddings: %w", err)
	}
	return count, nil
}

package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const selectIndexSQL = `
SELECT name, label, property, dimensions
FROM vector_indexes
WHERE name = $1
`

const insertIndexSQL = `
INSERT INTO vector_indexes (name, label, property, dimensions)
VALUES ($1, $2, $3, $4)
ON CONFLICT (name) DO NOTHING
`

// createIndexSQL builds the HNSW expression index. The cast fixes the
// vector width so inserts of another width fail.
func createIndexSQL(idx store.VectorIndex) string {
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON chunks USING hnsw ((embedding::vector(%d)) vector_cosine_ops)",
		pgxv5.Identifier{idx.Name}.Sanitize(),
		idx.Dimensions,
	)
}

func validateIndex(idx store.VectorIndex) error {
	if idx.Name == "" {
		return common.ValidationError("ensure vector index", "index name must not be empty")
	}
	if idx.Dimensions <= 0 {
		return common.ValidationError("ensure vector index", "dimensions must be positive, got %d", idx.Dimensions)
	}
	if idx.Label != "Chunk" || idx.Property != "embedding" {
		return common.ValidationError("ensure vector index", "only Chunk.embedding can be indexed, got %s.%s", idx.Label, idx.Property)
	}
	return nil
}

func (s *GraphDBStorage) EnsureVectorIndex(ctx context.Context, idx store.VectorIndex) error {
	if err := validateIndex(idx); err != nil {
		return err
	}

	if _, err := s.write(ctx, insertIndexSQL, idx.Name, idx.Label, idx.Property, idx.Dimensions); err != nil {
		return classify("ensure vector index", err)
	}
	existing, err := s.lookupIndex(ctx, idx.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		return common.StoreError("ensure vector index", fmt.Errorf("index %s vanished after insert", idx.Name))
	}
	if existing.Dimensions != idx.Dimensions {
		return fmt.Errorf("index %s has %d dimensions, requested %d: %w",
			idx.Name, existing.Dimensions, idx.Dimensions, store.ErrDimensionMismatch)
	}

	if _, err := s.write(ctx, createIndexSQL(idx)); err != nil {
		return classify("create vector index", err)
	}

	s.indexMu.Lock()
	s.index = existing
	s.indexMu.Unlock()
	return nil
}

func (s *GraphDBStorage) lookupIndex(ctx context.Context, name string) (*store.VectorIndex, error) {
	var idx store.VectorIndex
	err := s.conn.QueryRow(ctx, selectIndexSQL, name).Scan(&idx.Name, &idx.Label, &idx.Property, &idx.Dimensions)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("lookup vector index", err)
	}
	return &idx, nil
}

// chunkIndex returns the chunk embedding index, loading it once if this
// process has not ensured it. nil means nothing was ever indexed.
func (s *GraphDBStorage) chunkIndex(ctx context.Context) (*store.VectorIndex, error) {
	s.indexMu.RLock()
	idx := s.index
	s.indexMu.RUnlock()
	if idx != nil {
		return idx, nil
	}

	idx, err := s.lookupIndex(ctx, store.DefaultVectorIndex(0).Name)
	if err != nil || idx == nil {
		return nil, err
	}
	s.indexMu.Lock()
	s.index = idx
	s.indexMu.Unlock()
	return idx, nil
}

package pgx

import (
	"context"
	"fmt"

	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/logger"
	"github.com/kgrag/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// searchChunksSQL filters by scope before the limit. <=> is cosine
// distance in [0,2]; (2 - d) / 2 maps it onto [0,1].
func searchChunksSQL(dims int) string {
	return fmt.Sprintf(`
SELECT c.id,
       c.document_id,
       c.chunk_index,
       c.content,
       COALESCE(d.metadata->>'filename', ''),
       (2 - (c.embedding::vector(%[1]d) <=> $3)) / 2 AS similarity
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE d.workspace_id = $1
  AND d.collection_id = $2
ORDER BY c.embedding::vector(%[1]d) <=> $3, c.id
LIMIT $4
`, dims)
}

const mentionedEntitiesSQL = `
SELECT m.chunk_id, e.name
FROM chunk_mentions m
JOIN entities e ON e.id = m.entity_id
WHERE m.chunk_id = ANY($1)
ORDER BY m.chunk_id, e.id
`

const outgoingRelationsSQL = `
SELECT m.chunk_id, src.name, r.kind, tgt.name
FROM chunk_mentions m
JOIN entity_relations r ON r.source_id = m.entity_id
JOIN entities src ON src.id = r.source_id
JOIN entities tgt ON tgt.id = r.target_id
WHERE m.chunk_id = ANY($1)
ORDER BY m.chunk_id, r.source_id, r.target_id, r.kind
`

func (s *GraphDBStorage) SearchChunks(ctx context.Context, params store.SearchParams) ([]common.ChunkHit, error) {
	hits := []common.ChunkHit{}
	if params.K <= 0 {
		return hits, nil
	}

	idx, err := s.chunkIndex(ctx)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return hits, nil
	}
	if len(params.Embedding) != idx.Dimensions {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w",
			len(params.Embedding), idx.Dimensions, store.ErrDimensionMismatch)
	}

	err = s.read(ctx, func(tx pgxv5.Tx) error {
		rows, err := tx.Query(ctx, searchChunksSQL(idx.Dimensions),
			params.WorkspaceID, params.CollectionID, pgvector.NewVector(params.Embedding), params.K)
		if err != nil {
			return err
		}
		defer rows.Close()

		byID := make(map[string]int)
		for rows.Next() {
			var h common.ChunkHit
			if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.ChunkIndex, &h.Content, &h.Filename, &h.Similarity); err != nil {
				return err
			}
			h.Entities = []string{}
			h.Relationships = []common.RelationTriple{}
			byID[h.ChunkID] = len(hits)
			hits = append(hits, h)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(hits) == 0 {
			return nil
		}

		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.ChunkID
		}
		return s.expand(ctx, tx, ids, byID, hits)
	})
	if err != nil {
		return nil, classify("search chunks", err)
	}

	logger.Debug("[Store] Vector search", "workspace_id", params.WorkspaceID, "collection_id", params.CollectionID, "hits", len(hits))
	return hits, nil
}

// expand attaches the one-hop neighbourhood: mentioned entities and their
// outgoing relationships.
func (s *GraphDBStorage) expand(ctx context.Context, tx pgxv5.Tx, ids []string, byID map[string]int, hits []common.ChunkHit) error {
	rows, err := tx.Query(ctx, mentionedEntitiesSQL, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var chunkID, name string
		if err := rows.Scan(&chunkID, &name); err != nil {
			rows.Close()
			return err
		}
		h := &hits[byID[chunkID]]
		h.Entities = append(h.Entities, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = tx.Query(ctx, outgoingRelationsSQL, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var chunkID string
		var rel common.RelationTriple
		if err := rows.Scan(&chunkID, &rel.Source, &rel.Type, &rel.Target); err != nil {
			return err
		}
		h := &hits[byID[chunkID]]
		h.Relationships = append(h.Relationships, rel)
	}
	return rows.Err()
}

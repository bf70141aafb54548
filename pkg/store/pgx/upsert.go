package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kgrag/backend/internal/util"
	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/store"

	"github.com/pgvector/pgvector-go"
)

const upsertWorkspaceSQL = `
INSERT INTO workspaces (id)
VALUES ($1)
ON CONFLICT (id) DO NOTHING
`

const upsertCollectionSQL = `
WITH ws AS (
    INSERT INTO workspaces (id)
    VALUES ($1)
    ON CONFLICT (id) DO NOTHING
)
INSERT INTO collections (workspace_id, id, name)
VALUES ($1, $2, $3)
ON CONFLICT (workspace_id, id) DO UPDATE
SET name = EXCLUDED.name
`

const upsertDocumentSQL = `
INSERT INTO documents (id, workspace_id, collection_id, source_id, metadata)
VALUES ($1, $2, $3, $4, $5::jsonb)
ON CONFLICT (id) DO UPDATE
SET metadata   = documents.metadata || EXCLUDED.metadata,
    source_id  = EXCLUDED.source_id,
    updated_at = now()
`

const upsertChunkSQL = `
INSERT INTO chunks (id, document_id, chunk_index, content, embedding)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET chunk_index = EXCLUDED.chunk_index,
    content     = EXCLUDED.content,
    embedding   = EXCLUDED.embedding
`

// The entity insert keeps the first seen display name.
const upsertEntityMentionSQL = `
WITH entity AS (
    INSERT INTO entities (id, workspace_id, collection_id, name, type)
    VALUES ($2, $3, $4, $5, $6)
    ON CONFLICT (id) DO NOTHING
)
INSERT INTO chunk_mentions (chunk_id, entity_id)
VALUES ($1, $2)
ON CONFLICT (chunk_id, entity_id) DO NOTHING
`

const upsertRelationshipSQL = `
INSERT INTO entity_relations (source_id, target_id, kind)
VALUES ($1, $2, $3)
ON CONFLICT (source_id, target_id, kind) DO NOTHING
`

func (s *GraphDBStorage) UpsertWorkspace(ctx context.Context, ws common.Workspace) error {
	_, err := s.write(ctx, upsertWorkspaceSQL, ws.ID)
	return classify("upsert workspace", err)
}

func (s *GraphDBStorage) UpsertCollection(ctx context.Context, col common.Collection) error {
	_, err := s.write(ctx, upsertCollectionSQL, col.WorkspaceID, col.ID, col.Name)
	return classify("upsert collection", err)
}

func (s *GraphDBStorage) UpsertDocument(ctx context.Context, doc common.Document) error {
	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return common.ValidationError("upsert document", "metadata is not JSON serializable: %v", err)
	}
	_, err = s.write(ctx, upsertDocumentSQL,
		doc.ID, doc.WorkspaceID, doc.CollectionID, doc.SourceID, util.SanitizePostgresText(string(raw)))
	return classify("upsert document", err)
}

func (s *GraphDBStorage) UpsertChunk(ctx context.Context, chunk common.Chunk) error {
	idx, err := s.chunkIndex(ctx)
	if err != nil {
		return err
	}
	if idx != nil && len(chunk.Embedding) != idx.Dimensions {
		return fmt.Errorf("chunk %s has %d dimensions, index has %d: %w",
			chunk.ID, len(chunk.Embedding), idx.Dimensions, store.ErrDimensionMismatch)
	}

	_, err = s.write(ctx, upsertChunkSQL,
		chunk.ID,
		chunk.DocumentID,
		chunk.Index,
		util.SanitizePostgresText(chunk.Content),
		pgvector.NewVector(chunk.Embedding),
	)
	return classify("upsert chunk", err)
}

func (s *GraphDBStorage) UpsertEntityMention(ctx context.Context, chunkID string, entity common.Entity) error {
	_, err := s.write(ctx, upsertEntityMentionSQL,
		chunkID,
		entity.ID,
		entity.WorkspaceID,
		entity.CollectionID,
		util.SanitizePostgresText(entity.Name),
		util.SanitizePostgresText(entity.Type),
	)
	return classify("upsert entity mention", err)
}

func (s *GraphDBStorage) UpsertRelationship(ctx context.Context, rel common.Relationship) error {
	_, err := s.write(ctx, upsertRelationshipSQL, rel.SourceID, rel.TargetID, rel.Type)
	return classify("upsert relationship", err)
}

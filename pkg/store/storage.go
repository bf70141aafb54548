package store

import (
	"context"
	"errors"

	"github.com/kgrag/backend/pkg/common"
)

// ErrDimensionMismatch is returned when a vector does not match the width
// the index was created with. It is a validation error.
var ErrDimensionMismatch error = &common.Error{
	Kind: common.KindValidation,
	Err:  errors.New("vector dimension mismatch"),
}

// VectorIndex describes the similarity index over chunk embeddings.
type VectorIndex struct {
	Name       string // e.g. "chunk_embeddings"
	Label      string // node kind the index covers, "Chunk"
	Property   string // "embedding"
	Dimensions int
}

// DefaultVectorIndex is the chunk embedding index for dims wide vectors.
func DefaultVectorIndex(dims int) VectorIndex {
	return VectorIndex{
		Name:       "chunk_embeddings",
		Label:      "Chunk",
		Property:   "embedding",
		Dimensions: dims,
	}
}

// SearchParams scopes a nearest neighbour query. Filtering by workspace and
// collection happens before the K limit is applied.
type SearchParams struct {
	WorkspaceID  string
	CollectionID string
	Embedding    []float32
	K            int
}

// GraphStorage persists the knowledge graph. Every mutation is an upsert
// keyed on the entity's identity, so replaying a write is harmless.
// Implementations are safe for concurrent use.
type GraphStorage interface {
	// EnsureVectorIndex creates the index if missing. It fails with
	// ErrDimensionMismatch if an index of the same name has another width.
	EnsureVectorIndex(ctx context.Context, idx VectorIndex) error

	UpsertWorkspace(ctx context.Context, ws common.Workspace) error
	// UpsertCollection also links the collection to its workspace.
	UpsertCollection(ctx context.Context, col common.Collection) error
	// UpsertDocument merges metadata, last write wins per key.
	UpsertDocument(ctx context.Context, doc common.Document) error
	// UpsertChunk overwrites content, embedding and index of an existing chunk.
	UpsertChunk(ctx context.Context, chunk common.Chunk) error
	// UpsertEntityMention merges the entity, its collection link and the
	// chunk's MENTIONS edge.
	UpsertEntityMention(ctx context.Context, chunkID string, entity common.Entity) error
	UpsertRelationship(ctx context.Context, rel common.Relationship) error

	// SearchChunks returns up to K chunks ordered by descending similarity,
	// each with the entities it mentions and their outgoing relationships.
	SearchChunks(ctx context.Context, params SearchParams) ([]common.ChunkHit, error)

	Close()
}

package graph

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/kgrag/backend/internal/util"
	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/logger"
	"github.com/kgrag/backend/pkg/store"

	"golang.org/x/sync/errgroup"
)

// IngestParams describes one document. CollectionName defaults to
// CollectionID. Metadata is merged into the stored document, last write
// wins per key.
type IngestParams struct {
	Text           string
	WorkspaceID    string
	CollectionID   string
	CollectionName string
	SourceDocID    string
	Metadata       map[string]any
}

func (p IngestParams) validate() error {
	for _, f := range []struct{ name, value string }{
		{"workspace_id", p.WorkspaceID},
		{"collection_id", p.CollectionID},
		{"source_doc_id", p.SourceDocID},
	} {
		if strings.TrimSpace(f.value) == "" {
			return common.ValidationError("ingest", "%s must not be empty", f.name)
		}
	}
	if !utf8.ValidString(p.Text) {
		return common.ValidationError("ingest", "text is not valid UTF-8")
	}
	return nil
}

// indexedChunk is a chunk with its position fixed before dispatch.
type indexedChunk struct {
	index   int
	content string
}

// ingestRun collects the results of concurrently processed chunks.
type ingestRun struct {
	mu    sync.Mutex
	stats common.IngestStats
}

func (r *ingestRun) fail(index int, stage string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.FailedChunks = append(r.stats.FailedChunks, common.ChunkFailure{
		Index: index,
		Stage: stage,
		Error: err.Error(),
	})
}

func (r *ingestRun) add(chunks, entities, relationships int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.ChunkCount += chunks
	r.stats.EntityCount += entities
	r.stats.RelationshipCount += relationships
}

func (r *ingestRun) result() *common.IngestStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.stats
	stats.FailedChunks = slices.Clone(r.stats.FailedChunks)
	slices.SortStableFunc(stats.FailedChunks, func(a, b common.ChunkFailure) int {
		return a.Index - b.Index
	})
	stats.Partial = len(stats.FailedChunks) > 0
	return &stats
}

// IngestDocument chunks, embeds and extracts the document and writes the
// resulting nodes and edges. Per-chunk failures are recorded in the stats
// and do not abort the document. A vector width mismatch does.
//
// On cancellation or a fatal error no further chunks are started, committed
// writes remain, and the stats achieved so far are returned marked partial
// together with the error.
func (g *GraphClient) IngestDocument(ctx context.Context, params IngestParams) (*common.IngestStats, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	if err := g.ensureIndex(ctx); err != nil {
		return nil, classifyStoreErr("ensure vector index", err)
	}

	docID := DocumentID(params.WorkspaceID, params.CollectionID, params.SourceDocID)
	if err := g.upsertScope(ctx, params, docID); err != nil {
		return nil, err
	}

	chunks := make([]indexedChunk, 0)
	for content := range g.chunker.Chunks(params.Text) {
		chunks = append(chunks, indexedChunk{index: len(chunks), content: content})
	}
	logger.Debug("[Ingest] Document chunked", "document_id", docID, "chunks", len(chunks))

	run := &ingestRun{stats: common.IngestStats{DocumentID: docID}}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelChunks)
	for _, c := range chunks {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			return g.processChunk(egCtx, params, docID, c, run)
		})
	}
	err := eg.Wait()
	if err == nil {
		err = ctx.Err()
	}

	stats := run.result()
	if err != nil || stats.ChunkCount < len(chunks) {
		stats.Partial = true
	}
	if err != nil {
		logger.Warn("[Ingest] Document partially ingested",
			"document_id", docID,
			"chunks", stats.ChunkCount,
			"total_chunks", len(chunks),
			"err", err,
		)
		return stats, err
	}

	logger.Info("[Ingest] Document ingested",
		"document_id", docID,
		"chunks", stats.ChunkCount,
		"entities", stats.EntityCount,
		"relationships", stats.RelationshipCount,
		"failed_chunks", len(stats.FailedChunks),
	)
	return stats, nil
}

func (g *GraphClient) upsertScope(ctx context.Context, params IngestParams, docID string) error {
	name := params.CollectionName
	if strings.TrimSpace(name) == "" {
		name = params.CollectionID
	}
	if err := g.storage.UpsertWorkspace(ctx, common.Workspace{ID: params.WorkspaceID}); err != nil {
		return classifyStoreErr("upsert workspace", err)
	}
	err := g.storage.UpsertCollection(ctx, common.Collection{
		WorkspaceID: params.WorkspaceID,
		ID:          params.CollectionID,
		Name:        name,
	})
	if err != nil {
		return classifyStoreErr("upsert collection", err)
	}

	metadata := make(map[string]any, len(params.Metadata))
	maps.Copy(metadata, params.Metadata)
	err = g.storage.UpsertDocument(ctx, common.Document{
		ID:           docID,
		WorkspaceID:  params.WorkspaceID,
		CollectionID: params.CollectionID,
		SourceID:     params.SourceDocID,
		Metadata:     metadata,
	})
	if err != nil {
		return classifyStoreErr("upsert document", err)
	}
	return nil
}

// processChunk returns an error only when the whole document has to stop.
func (g *GraphClient) processChunk(
	ctx context.Context,
	params IngestParams,
	docID string,
	c indexedChunk,
	run *ingestRun,
) error {
	embedding, err := util.RetryWithBackoff(ctx, g.maxRetries, g.retryBackoff, func(ctx context.Context) ([]float32, error) {
		return g.aiClient.GenerateEmbedding(ctx, []byte(c.content))
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("[Ingest] Embedding failed, skipping chunk", "document_id", docID, "chunk", c.index, "err", err)
		run.fail(c.index, "embed", common.ProviderError("embed chunk", err))
		return nil
	}
	if len(embedding) != g.index.Dimensions {
		return fmt.Errorf("chunk %d of %s: embedding has %d dimensions, index has %d: %w",
			c.index, docID, len(embedding), g.index.Dimensions, store.ErrDimensionMismatch)
	}

	extraction, err := util.RetryWithBackoff(ctx, g.maxRetries, g.retryBackoff, func(ctx context.Context) (*common.Extraction, error) {
		return g.extractor.Extract(ctx, c.content)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("[Ingest] Extraction failed, storing chunk without entities", "document_id", docID, "chunk", c.index, "err", err)
		run.fail(c.index, "extract", err)
		extraction = &common.Extraction{}
	}

	chunkID := ChunkID(docID, c.index)
	err = g.storage.UpsertChunk(ctx, common.Chunk{
		ID:         chunkID,
		DocumentID: docID,
		Index:      c.index,
		Content:    c.content,
		Embedding:  embedding,
	})
	if err != nil {
		if errors.Is(err, store.ErrDimensionMismatch) {
			return fmt.Errorf("chunk %d of %s: %w", c.index, docID, err)
		}
		if ctx.Err() != nil {
			return nil
		}
		run.fail(c.index, "store", classifyStoreErr("upsert chunk", err))
		return nil
	}
	run.add(1, 0, 0)

	entities, relationships := g.writeExtraction(ctx, params, chunkID, c.index, extraction, run)
	run.add(0, entities, relationships)
	logger.Debug("[Ingest] Chunk stored",
		"chunk_id", chunkID,
		"entities", entities,
		"relationships", relationships,
	)
	return nil
}

// writeExtraction upserts the chunk's entities and the relationships whose
// endpoints both resolved within this chunk. It returns the successful
// write counts.
func (g *GraphClient) writeExtraction(
	ctx context.Context,
	params IngestParams,
	chunkID string,
	index int,
	extraction *common.Extraction,
	run *ingestRun,
) (int, int) {
	ids := make(map[string]string, len(extraction.Entities))
	entities := 0
	for _, e := range extraction.Entities {
		if Normalize(e.Name) == "" || Normalize(e.Type) == "" {
			continue
		}
		entity := common.Entity{
			ID:           EntityID(params.WorkspaceID, params.CollectionID, e.Name, e.Type),
			WorkspaceID:  params.WorkspaceID,
			CollectionID: params.CollectionID,
			Name:         e.Name,
			Type:         e.Type,
		}
		if err := g.storage.UpsertEntityMention(ctx, chunkID, entity); err != nil {
			if ctx.Err() == nil {
				run.fail(index, "store", classifyStoreErr("upsert entity", err))
			}
			continue
		}
		ids[Normalize(e.Name)] = entity.ID
		entities++
	}

	relationships := 0
	for _, r := range extraction.Relationships {
		source, ok := ids[Normalize(r.Source)]
		if !ok {
			continue
		}
		target, ok := ids[Normalize(r.Target)]
		if !ok {
			continue
		}
		kind := NormalizeRelationType(r.Type)
		if kind == "" {
			continue
		}
		err := g.storage.UpsertRelationship(ctx, common.Relationship{
			SourceID: source,
			TargetID: target,
			Type:     kind,
		})
		if err != nil {
			if ctx.Err() == nil {
				run.fail(index, "store", classifyStoreErr("upsert relationship", err))
			}
			continue
		}
		relationships++
	}
	return entities, relationships
}

// classifyStoreErr keeps errors that already carry a kind and marks the
// rest as store errors.
func classifyStoreErr(op string, err error) error {
	if common.KindOf(err) != "" || errors.Is(err, store.ErrDimensionMismatch) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return common.StoreError(op, err)
}

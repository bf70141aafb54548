// Package memory is an in-process GraphStorage using brute-force cosine
// search. It is meant for tests and single-node development runs.
package memory

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/store"
)

type relationKey struct {
	source, target, kind string
}

// Storage keeps the whole graph in maps guarded by one RWMutex.
type Storage struct {
	mu sync.RWMutex

	index *store.VectorIndex

	workspaces  map[string]common.Workspace
	collections map[string]common.Collection // workspace + "\x00" + id
	documents   map[string]common.Document
	chunks      map[string]common.Chunk
	entities    map[string]common.Entity
	mentions    map[string]map[string]struct{} // chunk id -> entity ids
	relations   map[relationKey]struct{}
}

var _ store.GraphStorage = (*Storage)(nil)

func NewStorage() *Storage {
	return &Storage{
		workspaces:  make(map[string]common.Workspace),
		collections: make(map[string]common.Collection),
		documents:   make(map[string]common.Document),
		chunks:      make(map[string]common.Chunk),
		entities:    make(map[string]common.Entity),
		mentions:    make(map[string]map[string]struct{}),
		relations:   make(map[relationKey]struct{}),
	}
}

func collectionKey(workspaceID, collectionID string) string {
	return workspaceID + "\x00" + collectionID
}

func (s *Storage) EnsureVectorIndex(ctx context.Context, idx store.VectorIndex) error {
	if idx.Dimensions <= 0 {
		return common.ValidationError("ensure vector index", "dimensions must be positive, got %d", idx.Dimensions)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		if s.index.Dimensions != idx.Dimensions {
			return fmt.Errorf("index %s has %d dimensions, requested %d: %w",
				s.index.Name, s.index.Dimensions, idx.Dimensions, store.ErrDimensionMismatch)
		}
		return nil
	}
	s.index = &idx
	return nil
}

func (s *Storage) UpsertWorkspace(ctx context.Context, ws common.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[ws.ID] = ws
	return nil
}

func (s *Storage) UpsertCollection(ctx context.Context, col common.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[col.WorkspaceID]; !ok {
		s.workspaces[col.WorkspaceID] = common.Workspace{ID: col.WorkspaceID}
	}
	s.collections[collectionKey(col.WorkspaceID, col.ID)] = col
	return nil
}

func (s *Storage) UpsertDocument(ctx context.Context, doc common.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collectionKey(doc.WorkspaceID, doc.CollectionID)]; !ok {
		return common.NotFoundError("upsert document", "collection %s/%s does not exist", doc.WorkspaceID, doc.CollectionID)
	}

	merged := make(map[string]any)
	if existing, ok := s.documents[doc.ID]; ok {
		maps.Copy(merged, existing.Metadata)
	}
	maps.Copy(merged, doc.Metadata)
	doc.Metadata = merged
	s.documents[doc.ID] = doc
	return nil
}

func (s *Storage) UpsertChunk(ctx context.Context, chunk common.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[chunk.DocumentID]; !ok {
		return common.NotFoundError("upsert chunk", "document %s does not exist", chunk.DocumentID)
	}
	if s.index != nil && len(chunk.Embedding) != s.index.Dimensions {
		return fmt.Errorf("chunk %s has %d dimensions, index has %d: %w",
			chunk.ID, len(chunk.Embedding), s.index.Dimensions, store.ErrDimensionMismatch)
	}
	chunk.Embedding = slices.Clone(chunk.Embedding)
	s.chunks[chunk.ID] = chunk
	return nil
}

func (s *Storage) UpsertEntityMention(ctx context.Context, chunkID string, entity common.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[chunkID]; !ok {
		return common.NotFoundError("upsert entity mention", "chunk %s does not exist", chunkID)
	}
	if existing, ok := s.entities[entity.ID]; ok {
		// first seen display name is kept
		entity.Name = existing.Name
		entity.Type = existing.Type
	}
	s.entities[entity.ID] = entity
	if s.mentions[chunkID] == nil {
		s.mentions[chunkID] = make(map[string]struct{})
	}
	s.mentions[chunkID][entity.ID] = struct{}{}
	return nil
}

func (s *Storage) UpsertRelationship(ctx context.Context, rel common.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[rel.SourceID]; !ok {
		return common.NotFoundError("upsert relationship", "entity %s does not exist", rel.SourceID)
	}
	if _, ok := s.entities[rel.TargetID]; !ok {
		return common.NotFoundError("upsert relationship", "entity %s does not exist", rel.TargetID)
	}
	s.relations[relationKey{rel.SourceID, rel.TargetID, rel.Type}] = struct{}{}
	return nil
}

func (s *Storage) SearchChunks(ctx context.Context, params store.SearchParams) ([]common.ChunkHit, error) {
	if params.K <= 0 {
		return []common.ChunkHit{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index != nil && len(params.Embedding) != s.index.Dimensions {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w",
			len(params.Embedding), s.index.Dimensions, store.ErrDimensionMismatch)
	}

	type scored struct {
		chunk common.Chunk
		doc   common.Document
		sim   float64
	}
	candidates := make([]scored, 0)
	for _, c := range s.chunks {
		doc := s.documents[c.DocumentID]
		if doc.WorkspaceID != params.WorkspaceID || doc.CollectionID != params.CollectionID {
			continue
		}
		candidates = append(candidates, scored{chunk: c, doc: doc, sim: similarity(params.Embedding, c.Embedding)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].chunk.ID < candidates[j].chunk.ID
	})
	if len(candidates) > params.K {
		candidates = candidates[:params.K]
	}

	hits := make([]common.ChunkHit, 0, len(candidates))
	for _, c := range candidates {
		filename, _ := c.doc.Metadata["filename"].(string)
		hit := common.ChunkHit{
			ChunkID:       c.chunk.ID,
			DocumentID:    c.chunk.DocumentID,
			Filename:      filename,
			ChunkIndex:    c.chunk.Index,
			Content:       c.chunk.Content,
			Similarity:    c.sim,
			Entities:      []string{},
			Relationships: []common.RelationTriple{},
		}
		mentioned := slices.Sorted(maps.Keys(s.mentions[c.chunk.ID]))
		for _, id := range mentioned {
			hit.Entities = append(hit.Entities, s.entities[id].Name)
		}
		hit.Relationships = s.outgoing(mentioned)
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *Storage) outgoing(entityIDs []string) []common.RelationTriple {
	out := []common.RelationTriple{}
	for _, id := range entityIDs {
		keys := make([]relationKey, 0)
		for k := range s.relations {
			if k.source == id {
				keys = append(keys, k)
			}
		}
		slices.SortFunc(keys, func(a, b relationKey) int {
			if c := strings.Compare(a.target, b.target); c != 0 {
				return c
			}
			return strings.Compare(a.kind, b.kind)
		})
		for _, k := range keys {
			out = append(out, common.RelationTriple{
				Source: s.entities[k.source].Name,
				Type:   k.kind,
				Target: s.entities[k.target].Name,
			})
		}
	}
	return out
}

func (s *Storage) Close() {}

// Counts reports the number of stored nodes and edges.
type Counts struct {
	Documents, Chunks, Entities, Mentions, Relationships int
}

func (s *Storage) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mentions := 0
	for _, m := range s.mentions {
		mentions += len(m)
	}
	return Counts{
		Documents:     len(s.documents),
		Chunks:        len(s.chunks),
		Entities:      len(s.entities),
		Mentions:      mentions,
		Relationships: len(s.relations),
	}
}

// Chunks returns the chunks of a document ordered by index.
func (s *Storage) Chunks(documentID string) []common.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Chunk, 0)
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b common.Chunk) int { return a.Index - b.Index })
	return out
}

// Document returns a stored document.
func (s *Storage) Document(id string) (common.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	return d, ok
}

// similarity maps cosine similarity from [-1,1] onto [0,1].
func similarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := range n {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0.5
	}
	return (1 + dot/(math.Sqrt(na)*math.Sqrt(nb))) / 2
}

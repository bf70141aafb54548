package query

import (
	"sort"

	"github.com/kgrag/backend/pkg/common"
)

const (
	similarityWeight   = 0.6
	entityWeight       = 0.2
	relationshipWeight = 0.2

	entityCap       = 10.0
	relationshipCap = 15.0
)

// Source is a retrieved chunk together with its fused rank score.
type Source struct {
	common.ChunkHit
	RerankScore float64 `json:"rerank_score"`
}

// Score fuses vector similarity with graph richness. Entity and
// relationship counts saturate at 10 and 15.
func Score(hit common.ChunkHit) float64 {
	entities := min(float64(len(hit.Entities))/entityCap, 1)
	relationships := min(float64(len(hit.Relationships))/relationshipCap, 1)
	return similarityWeight*hit.Similarity +
		entityWeight*entities +
		relationshipWeight*relationships
}

// Rerank orders candidates by Score, descending, and keeps the first topK.
// Equal scores keep their input order. topK <= 0 returns nothing.
func Rerank(candidates []common.ChunkHit, topK int) []Source {
	if topK <= 0 {
		return []Source{}
	}
	sources := make([]Source, len(candidates))
	for i, c := range candidates {
		sources[i] = Source{ChunkHit: c, RerankScore: Score(c)}
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].RerankScore > sources[j].RerankScore
	})
	if len(sources) > topK {
		sources = sources[:topK]
	}
	return sources
}

package graph

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kgrag/backend/pkg/ai"
	"github.com/kgrag/backend/pkg/store"
)

// GraphClient runs the ingestion pipeline: chunk, embed and extract, then
// upsert everything into a GraphStorage.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	aiClient  ai.GraphAIClient
	storage   store.GraphStorage
	extractor Extractor
	chunker   *Chunker
	index     store.VectorIndex

	parallelChunks int
	maxRetries     int
	retryBackoff   time.Duration

	indexMu    sync.Mutex
	indexReady bool
}

// NewGraphClientParams defines the configuration for NewGraphClient.
//
// ChunkSize and ChunkOverlap are measured by TokenCounter. ParallelChunks
// bounds how many chunks of one document are processed at once.
// Extractor defaults to an LLMExtractor on AIClient.
type NewGraphClientParams struct {
	AIClient  ai.GraphAIClient
	Storage   store.GraphStorage
	Extractor Extractor

	ChunkSize    int
	ChunkOverlap int
	TokenCounter TokenCounter

	ParallelChunks int
	MaxRetries     int
	RetryBackoff   time.Duration
}

// NewGraphClient creates and returns a new GraphClient.
//
// Example:
//
//	counter, _ := graph.NewTiktokenCounter("cl100k_base")
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		AIClient:       aiClient,
//		Storage:        storage,
//		ChunkSize:      500,
//		ChunkOverlap:   50,
//		TokenCounter:   counter,
//		ParallelChunks: 4,
//	})
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	if params.AIClient == nil {
		return nil, errors.New("graph client needs an AI client")
	}
	if params.Storage == nil {
		return nil, errors.New("graph client needs a storage")
	}
	if params.ChunkSize == 0 {
		params.ChunkSize = 500
	}
	chunker, err := NewChunker(params.ChunkSize, params.ChunkOverlap, params.TokenCounter)
	if err != nil {
		return nil, err
	}

	extractor := params.Extractor
	if extractor == nil {
		extractor = NewExtractor(params.AIClient)
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	parallel := params.ParallelChunks
	if parallel <= 0 {
		parallel = 4
	}

	return &GraphClient{
		aiClient:  params.AIClient,
		storage:   params.Storage,
		extractor: extractor,
		chunker:   chunker,
		index:     store.DefaultVectorIndex(params.AIClient.EmbeddingDimensions()),

		parallelChunks: parallel,
		maxRetries:     maxRetries,
		retryBackoff:   params.RetryBackoff,
	}, nil
}

// ensureIndex creates the vector index once per client. A failed attempt
// is retried on the next document.
func (g *GraphClient) ensureIndex(ctx context.Context) error {
	g.indexMu.Lock()
	defer g.indexMu.Unlock()
	if g.indexReady {
		return nil
	}
	if err := g.storage.EnsureVectorIndex(ctx, g.index); err != nil {
		return err
	}
	g.indexReady = true
	return nil
}

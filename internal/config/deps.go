package config

import (
	"context"
	"fmt"

	"github.com/kgrag/backend/internal/db"
	"github.com/kgrag/backend/pkg/ai"
	oai "github.com/kgrag/backend/pkg/ai/ollama"
	gai "github.com/kgrag/backend/pkg/ai/openai"
	"github.com/kgrag/backend/pkg/graph"
	"github.com/kgrag/backend/pkg/query"
	"github.com/kgrag/backend/pkg/store"
	"github.com/kgrag/backend/pkg/store/memory"
	graphstorage "github.com/kgrag/backend/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewAIClient returns the client selected by AI_ADAPTER.
func NewAIClient(cfg Config) (ai.GraphAIClient, error) {
	encoder := cfg.TokenEncoder
	if encoder == "whitespace" {
		encoder = ""
	}

	switch cfg.AIAdapter {
	case "ollama":
		return oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:      cfg.EmbedModel,
			EmbeddingDimensions: cfg.EmbedDim,
			ChatModel:           cfg.ChatModel,
			ExtractionModel:     cfg.ExtractModel,

			BaseURL: cfg.ChatURL,
			ApiKey:  cfg.ChatKey,

			MaxConcurrentRequests: int64(cfg.ParallelReq),
			Timeout:               cfg.AITimeout,
			TokenEncoder:          encoder,
		})
	case "openai", "":
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:      cfg.EmbedModel,
			EmbeddingDimensions: cfg.EmbedDim,
			ChatModel:           cfg.ChatModel,
			ExtractionModel:     cfg.ExtractModel,

			EmbeddingURL: cfg.EmbedURL,
			EmbeddingKey: cfg.EmbedKey,
			ChatURL:      cfg.ChatURL,
			ChatKey:      cfg.ChatKey,

			MaxConcurrentRequests: int64(cfg.ParallelReq),
			Timeout:               cfg.AITimeout,
		}), nil
	}
	return nil, fmt.Errorf("unknown AI_ADAPTER %q", cfg.AIAdapter)
}

// NewGraphStorage returns the store selected by STORE_ADAPTER. For "pgx"
// the schema is migrated first and the returned pool is owned by the
// caller; it is nil for the in-memory store.
func NewGraphStorage(ctx context.Context, cfg Config) (store.GraphStorage, *pgxpool.Pool, error) {
	switch cfg.StoreAdapter {
	case "memory":
		return memory.NewStorage(), nil, nil
	case "pgx", "":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for the pgx store")
		}
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return graphstorage.NewGraphDBStorage(pool), pool, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_ADAPTER %q", cfg.StoreAdapter)
}

// NewGraphClient builds the ingestion client. The chunker counts tokens
// with TOKEN_ENCODER; "whitespace" counts words and needs no BPE download.
func NewGraphClient(cfg Config, aiClient ai.GraphAIClient, storage store.GraphStorage) (*graph.GraphClient, error) {
	var counter graph.TokenCounter = graph.WhitespaceCounter
	if cfg.TokenEncoder != "whitespace" {
		c, err := graph.NewTiktokenCounter(cfg.TokenEncoder)
		if err != nil {
			return nil, fmt.Errorf("load token encoder %s: %w", cfg.TokenEncoder, err)
		}
		counter = c
	}

	return graph.NewGraphClient(graph.NewGraphClientParams{
		AIClient:       aiClient,
		Storage:        storage,
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		TokenCounter:   counter,
		ParallelChunks: cfg.ParallelChunk,
		MaxRetries:     cfg.AIMaxRetries,
	})
}

func NewQueryClient(cfg Config, aiClient ai.GraphAIClient, storage store.GraphStorage) *query.Client {
	return query.NewClient(
		aiClient,
		storage,
		query.WithCandidates(cfg.RAGCandidates),
		query.WithTopK(cfg.RAGTopK),
	)
}

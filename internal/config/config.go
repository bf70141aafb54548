// Package config reads process configuration from the environment and
// builds the shared clients used by the server and the worker.
package config

import (
	"time"

	"github.com/kgrag/backend/internal/util"
)

type Config struct {
	Debug bool

	Port        string
	CORSOrigins []string

	DatabaseURL  string
	StoreAdapter string

	AIAdapter     string
	EmbedModel    string
	EmbedDim      int
	ChatModel     string
	ExtractModel  string
	EmbedURL      string
	EmbedKey      string
	ChatURL       string
	ChatKey       string
	ParallelReq   int
	AITimeout     time.Duration
	AIMaxRetries  int
	ChunkSize     int
	ChunkOverlap  int
	TokenEncoder  string
	ParallelChunk int

	RAGCandidates int
	RAGTopK       int

	// JobsEnabled turns on POST /ingest/jobs. It requires RabbitMQ and S3.
	JobsEnabled bool
}

// Load reads the configuration. Missing values fall back to defaults
// suitable for a local OpenAI setup.
func Load() Config {
	return Config{
		Debug: util.GetEnvBool("DEBUG", false),

		Port: util.GetEnvString("PORT", "8000"),
		CORSOrigins: util.GetEnvList("CORS_ORIGINS", []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		}),

		DatabaseURL:  util.GetEnv("DATABASE_URL"),
		StoreAdapter: util.GetEnvString("STORE_ADAPTER", "pgx"),

		AIAdapter:     util.GetEnvString("AI_ADAPTER", "openai"),
		EmbedModel:    util.GetEnvString("AI_EMBED_MODEL", "text-embedding-3-small"),
		EmbedDim:      int(util.GetEnvNumeric("AI_EMBED_DIM", 1536)),
		ChatModel:     util.GetEnvString("AI_CHAT_MODEL", "gpt-4o-mini"),
		ExtractModel:  util.GetEnv("AI_EXTRACT_MODEL"),
		EmbedURL:      util.GetEnv("AI_EMBED_URL"),
		EmbedKey:      util.GetEnv("AI_EMBED_KEY"),
		ChatURL:       util.GetEnv("AI_CHAT_URL"),
		ChatKey:       util.GetEnv("AI_CHAT_KEY"),
		ParallelReq:   int(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		AITimeout:     time.Duration(util.GetEnvNumeric("AI_TIMEOUT_MIN", 5)) * time.Minute,
		AIMaxRetries:  int(util.GetEnvNumeric("AI_MAX_RETRIES", 3)),
		ChunkSize:     int(util.GetEnvNumeric("CHUNK_SIZE", 500)),
		ChunkOverlap:  int(util.GetEnvNumeric("CHUNK_OVERLAP", 50)),
		TokenEncoder:  util.GetEnvString("TOKEN_ENCODER", "cl100k_base"),
		ParallelChunk: int(util.GetEnvNumeric("INGEST_PARALLEL_CHUNKS", 4)),

		RAGCandidates: int(util.GetEnvNumeric("RAG_CANDIDATES", 10)),
		RAGTopK:       int(util.GetEnvNumeric("RAG_TOP_K", 5)),

		JobsEnabled: util.GetEnv("RABBITMQ_HOST") != "",
	}
}

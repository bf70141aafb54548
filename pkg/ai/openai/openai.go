package openai

import (
	"time"

	"github.com/kgrag/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// GraphOpenAIClient talks to OpenAI compatible endpoints. It manages separate
// clients for embeddings and chat so both can point at different hosts.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	ai.MetricsTracker

	embeddingModel  string
	embeddingDim    int
	chatModel       string
	extractionModel string

	timeout time.Duration
	reqLock *semaphore.Weighted

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration for NewGraphOpenAIClient.
//
// EmbeddingURL and EmbeddingKey configure the embedding API endpoint.
// ChatURL and ChatKey configure the chat/completion API endpoint.
// Empty URLs use the public OpenAI API.
type NewGraphOpenAIClientParams struct {
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatModel           string
	ExtractionModel     string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	MaxConcurrentRequests int64
	Timeout               time.Duration
}

// NewGraphOpenAIClient creates a client configured with the provided parameters.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		EmbeddingModel:      "text-embedding-3-small",
//		EmbeddingDimensions: 1536,
//		ChatModel:           "gpt-4o-mini",
//		EmbeddingKey:        os.Getenv("OPENAI_API_KEY"),
//		ChatKey:             os.Getenv("OPENAI_API_KEY"),
//	})
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	if params.ChatModel == "" {
		params.ChatModel = "gpt-4o-mini"
	}
	if params.ExtractionModel == "" {
		params.ExtractionModel = params.ChatModel
	}
	if params.EmbeddingModel == "" {
		params.EmbeddingModel = "text-embedding-3-small"
	}
	if params.EmbeddingDimensions <= 0 {
		params.EmbeddingDimensions = 1536
	}
	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 15
	}
	if params.Timeout <= 0 {
		params.Timeout = 5 * time.Minute
	}

	return &GraphOpenAIClient{
		embeddingModel:  params.EmbeddingModel,
		embeddingDim:    params.EmbeddingDimensions,
		chatModel:       params.ChatModel,
		extractionModel: params.ExtractionModel,

		timeout: params.Timeout,
		reqLock: semaphore.NewWeighted(params.MaxConcurrentRequests),

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

// EmbeddingDimensions returns the configured embedding width.
func (c *GraphOpenAIClient) EmbeddingDimensions() int {
	return c.embeddingDim
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	options := []option.RequestOption{
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		options = append(options, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

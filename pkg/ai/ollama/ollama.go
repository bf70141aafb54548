package ollama

import (
	"net/http"
	"net/url"
	"time"

	"github.com/kgrag/backend/pkg/ai"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/sync/semaphore"
)

// GraphOllamaClient implements ai.GraphAIClient using a locally hosted Ollama server.
type GraphOllamaClient struct {
	ai.MetricsTracker

	embeddingModel  string
	embeddingDim    int
	chatModel       string
	extractionModel string

	timeout time.Duration
	reqLock *semaphore.Weighted
	encoder *tiktoken.Tiktoken // nil estimates four bytes per token

	Client *api.Client
}

// NewGraphOllamaClientParams contains configuration options for creating a new GraphOllamaClient.
type NewGraphOllamaClientParams struct {
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatModel           string
	ExtractionModel     string

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
	Timeout               time.Duration

	// TokenEncoder names a tiktoken encoding used to size num_ctx for long
	// prompts, e.g. "o200k_base". Empty uses a byte based estimate.
	TokenEncoder string
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

const defaultBaseURL = "http://127.0.0.1:11434"

// NewGraphOllamaClient connects to the Ollama server at BaseURL, or the
// local default when empty.
func NewGraphOllamaClient(
	params NewGraphOllamaClientParams,
) (*GraphOllamaClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL == "" {
		params.BaseURL = defaultBaseURL
	}
	u, err = url.Parse(params.BaseURL)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{}
	if params.ApiKey != "" {
		headers["Authorization"] = "Bearer " + params.ApiKey
	}
	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: headers,
			rt:      http.DefaultTransport,
		},
	}

	var enc *tiktoken.Tiktoken
	if params.TokenEncoder != "" {
		enc, err = tiktoken.GetEncoding(params.TokenEncoder)
		if err != nil {
			return nil, err
		}
	}

	if params.ExtractionModel == "" {
		params.ExtractionModel = params.ChatModel
	}
	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 4
	}
	if params.Timeout <= 0 {
		params.Timeout = 5 * time.Minute
	}

	return &GraphOllamaClient{
		embeddingModel:  params.EmbeddingModel,
		embeddingDim:    params.EmbeddingDimensions,
		chatModel:       params.ChatModel,
		extractionModel: params.ExtractionModel,

		timeout: params.Timeout,
		reqLock: semaphore.NewWeighted(params.MaxConcurrentRequests),
		encoder: enc,

		Client: api.NewClient(u, httpClient),
	}, nil
}

func (c *GraphOllamaClient) countTokens(text string) int {
	if c.encoder == nil {
		return len(text)/4 + 1
	}
	return len(c.encoder.Encode(text, nil, nil))
}

// EmbeddingDimensions returns the configured embedding width.
func (c *GraphOllamaClient) EmbeddingDimensions() int {
	return c.embeddingDim
}

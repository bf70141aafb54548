package ollama

import (
	"context"
	"fmt"

	"github.com/kgrag/backend/pkg/ai"

	"github.com/ollama/ollama/api"
)

// GenerateEmbedding creates a vector embedding for the given input text
// using the configured embedding model on Ollama.
func (c *GraphOllamaClient) GenerateEmbedding(
	ctx context.Context,
	input []byte,
) ([]float32, error) {
	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: string(input),
	}

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embed(rCtx, req)
	if err != nil {
		return nil, err
	}

	c.AddMetrics(ai.ModelMetrics{
		InputTokens:     res.PromptEvalCount,
		TotalTokens:     res.PromptEvalCount,
		EmbeddingTokens: res.PromptEvalCount,
		DurationMs:      res.TotalDuration.Milliseconds(),
	})

	if len(res.Embeddings) != 1 {
		return nil, fmt.Errorf("unexpected embedding result size: got %d want 1", len(res.Embeddings))
	}
	return res.Embeddings[0], nil
}

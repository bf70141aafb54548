package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kgrag/backend/pkg/ai"
	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/logger"
	"github.com/kgrag/backend/pkg/store"
)

const (
	planTemperature   = 0
	answerTemperature = 0.7
)

// plan asks the model for the key entities of the question.
func (c *Client) plan(ctx context.Context, s State) (State, error) {
	start := time.Now()
	res, err := c.aiClient.GenerateCompletion(
		ctx,
		"Question: "+s.Question,
		c.generateOptions(planTemperature, ai.PlanPrompt)...,
	)
	recordStage(c.options.Tracer, "plan", time.Since(start).Milliseconds(), err)
	if err != nil {
		return s, common.ProviderError("plan", err)
	}

	entities := ai.SplitList(res)
	if entities == nil {
		entities = []string{}
	}
	if c.options.Tracer != nil {
		c.options.Tracer.Record(TraceEvent{Kind: TraceEventPlannedEntities, Entities: entities})
	}
	logger.Debug("[Query] Planned", "entities", entities)
	return s.withKeyEntities(entities), nil
}

// retrieve embeds the question, searches the scoped vector index with
// one-hop graph expansion and keeps the topK reranked candidates.
func (c *Client) retrieve(ctx context.Context, s State, candidateK, topK int) (State, error) {
	start := time.Now()
	sources, err := c.search(ctx, s, candidateK, topK)
	recordStage(c.options.Tracer, "retrieve", time.Since(start).Milliseconds(), err)
	if err != nil {
		return s, err
	}
	recordChunkIDs(c.options.Tracer, TraceEventUsedChunkIDs, sources)
	logger.Debug("[Query] Retrieved", "sources", len(sources), "duration", time.Since(start))
	return s.withSources(sources), nil
}

func (c *Client) search(ctx context.Context, s State, candidateK, topK int) ([]Source, error) {
	embedding, err := c.aiClient.GenerateEmbedding(ctx, []byte(s.Question))
	if err != nil {
		return nil, common.ProviderError("embed question", err)
	}

	hits, err := c.storage.SearchChunks(ctx, store.SearchParams{
		WorkspaceID:  s.WorkspaceID,
		CollectionID: s.CollectionID,
		Embedding:    embedding,
		K:            candidateK,
	})
	if err != nil {
		if common.KindOf(err) != "" {
			return nil, fmt.Errorf("search chunks: %w", err)
		}
		return nil, common.StoreError("search chunks", err)
	}

	candidates := make([]Source, len(hits))
	for i, h := range hits {
		candidates[i] = Source{ChunkHit: h}
	}
	recordChunkIDs(c.options.Tracer, TraceEventConsideredChunkIDs, candidates)

	return Rerank(hits, topK), nil
}

// reason renders the sources into the prompt context. It is pure.
func (c *Client) reason(s State) State {
	return s.withContext(FormatContext(s.KeyEntities, s.Sources))
}

// FormatContext renders key entities and ranked sources as the answer
// prompt context. Sources are numbered from 1 in the given order.
func FormatContext(keyEntities []string, sources []Source) string {
	parts := make([]string, 0, 2+len(sources)*4)
	parts = append(parts,
		fmt.Sprintf("Key entities mentioned in query: %s\n", strings.Join(keyEntities, ", ")),
		"Relevant information from knowledge graph:\n",
	)

	for i, src := range sources {
		parts = append(parts,
			fmt.Sprintf("\n--- Source %d (relevance: %.2f) ---", i+1, src.RerankScore),
			src.Content,
		)

		names := make([]string, 0, len(src.Entities))
		for _, n := range src.Entities {
			if n != "" {
				names = append(names, n)
			}
		}
		if len(names) > 0 {
			parts = append(parts, "Entities: "+strings.Join(names, ", "))
		}

		rels := make([]string, 0, len(src.Relationships))
		for _, r := range src.Relationships {
			if r.Source == "" || r.Target == "" {
				continue
			}
			rels = append(rels, r.Source+" "+r.Type+" "+r.Target)
		}
		if len(rels) > 0 {
			parts = append(parts, "Relationships: "+strings.Join(rels, "; "))
		}
	}

	return strings.Join(parts, "\n")
}

// write synthesizes the answer. Without sources the model is only asked to
// say that nothing relevant was found.
func (c *Client) write(ctx context.Context, s State) (State, error) {
	start := time.Now()
	var (
		res string
		err error
	)
	if len(s.Sources) == 0 {
		res, err = c.aiClient.GenerateCompletion(ctx, fmt.Sprintf(ai.NoDataPrompt, s.Question))
	} else {
		res, err = c.aiClient.GenerateCompletion(
			ctx,
			fmt.Sprintf(ai.AnswerUserPrompt, s.Context, s.Question),
			c.generateOptions(answerTemperature, append([]string{ai.AnswerPrompt}, c.options.SystemPrompts...)...)...,
		)
	}
	recordStage(c.options.Tracer, "write", time.Since(start).Milliseconds(), err)
	if err != nil {
		logger.Error("[Query] Failed to generate answer", "err", err)
		return s, common.ProviderError("write answer", err)
	}
	return s.withAnswer(res), nil
}

func (c *Client) generateOptions(temperature float64, systemPrompts ...string) []ai.GenerateOption {
	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(systemPrompts...),
		ai.WithTemperature(temperature),
	}
	if c.options.Model != "" {
		opts = append(opts, ai.WithModel(c.options.Model))
	}
	return opts
}

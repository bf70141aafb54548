// Package query answers questions over the knowledge graph. A question runs
// through four stages: plan, retrieve, reason and write. Search runs only
// retrieve and shares its ranking with Answer.
package query

import (
	"context"
	"strings"

	"github.com/kgrag/backend/pkg/ai"
	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/store"
)

// Retrieval defaults. CandidateK chunks are fetched by vector similarity
// and reranked; the best TopK feed the answer. Search returns
// DefaultSearchLimit results unless asked for at most MaxSearchLimit.
const (
	DefaultCandidateK  = 10
	DefaultTopK        = 5
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// Client provides retrieval-augmented answers and ranked search over a
// GraphStorage.
type Client struct {
	aiClient ai.GraphAIClient
	storage  store.GraphStorage
	options  queryOptions
}

// NewClient creates a query client.
//
// Example:
//
//	client := query.NewClient(aiClient, storage, query.WithTopK(5))
//	res, err := client.Answer(ctx, "Who invented the telephone?", "ws1", "col1")
func NewClient(aiClient ai.GraphAIClient, storage store.GraphStorage, opts ...QueryOption) *Client {
	c := &Client{
		aiClient: aiClient,
		storage:  storage,
		options: queryOptions{
			CandidateK: DefaultCandidateK,
			TopK:       DefaultTopK,
		},
	}
	for _, o := range opts {
		o(&c.options)
	}
	if c.options.CandidateK <= 0 {
		c.options.CandidateK = DefaultCandidateK
	}
	if c.options.TopK <= 0 {
		c.options.TopK = DefaultTopK
	}
	return c
}

// AnswerResult is the written answer with the context it was grounded on.
// Sources are the top reranked chunks, numbered as cited in Answer.
type AnswerResult struct {
	Query       string   `json:"query"`
	Answer      string   `json:"answer"`
	Context     string   `json:"context"`
	KeyEntities []string `json:"key_entities"`
	Sources     []Source `json:"sources"`
}

// SearchResult lists reranked chunks without generating an answer.
type SearchResult struct {
	Query   string   `json:"query"`
	Results []Source `json:"results"`
	Total   int      `json:"total"`
}

func newState(question, workspaceID, collectionID string) (State, error) {
	if strings.TrimSpace(question) == "" {
		return State{}, common.ValidationError("query", "question must not be empty")
	}
	if strings.TrimSpace(workspaceID) == "" || strings.TrimSpace(collectionID) == "" {
		return State{}, common.ValidationError("query", "workspace_id and collection_id are required")
	}
	return State{Question: question, WorkspaceID: workspaceID, CollectionID: collectionID}, nil
}

// Answer runs the full pipeline. Any stage failure aborts the request.
func (c *Client) Answer(ctx context.Context, question, workspaceID, collectionID string) (*AnswerResult, error) {
	s, err := newState(question, workspaceID, collectionID)
	if err != nil {
		return nil, err
	}

	if s, err = c.plan(ctx, s); err != nil {
		return nil, err
	}
	if s, err = c.retrieve(ctx, s, c.options.CandidateK, c.options.TopK); err != nil {
		return nil, err
	}
	s = c.reason(s)
	if s, err = c.write(ctx, s); err != nil {
		return nil, err
	}

	return &AnswerResult{
		Query:       s.Question,
		Answer:      s.Answer,
		Context:     s.Context,
		KeyEntities: s.KeyEntities,
		Sources:     s.Sources,
	}, nil
}

// Search returns up to limit reranked chunks with their graph
// neighbourhood. limit 0 means DefaultSearchLimit; otherwise it must be
// within 1..MaxSearchLimit. An unknown scope yields an empty result.
func (c *Client) Search(ctx context.Context, question, workspaceID, collectionID string, limit int) (*SearchResult, error) {
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 1 || limit > MaxSearchLimit {
		return nil, common.ValidationError("search", "limit must be between 1 and %d, got %d", MaxSearchLimit, limit)
	}
	s, err := newState(question, workspaceID, collectionID)
	if err != nil {
		return nil, err
	}

	if s, err = c.retrieve(ctx, s, limit, limit); err != nil {
		return nil, err
	}
	return &SearchResult{
		Query:   s.Question,
		Results: s.Sources,
		Total:   len(s.Sources),
	}, nil
}

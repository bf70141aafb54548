package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/kgrag/backend/pkg/ai"
	"github.com/kgrag/backend/pkg/ai/aitest"
	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/store"
	"github.com/kgrag/backend/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bellQuestion = "Who invented the telephone?"

func seedStore(t *testing.T) *memory.Storage {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStorage()
	require.NoError(t, s.EnsureVectorIndex(ctx, store.DefaultVectorIndex(2)))

	for _, col := range []string{"col1", "other"} {
		require.NoError(t, s.UpsertCollection(ctx, common.Collection{WorkspaceID: "ws1", ID: col, Name: col}))
		require.NoError(t, s.UpsertDocument(ctx, common.Document{
			ID: "ws1:" + col + ":bell.txt", WorkspaceID: "ws1", CollectionID: col, SourceID: "bell.txt",
			Metadata: map[string]any{"filename": "bell.txt"},
		}))
	}

	chunks := []common.Chunk{
		{ID: "ws1:col1:bell.txt:chunk:0", DocumentID: "ws1:col1:bell.txt", Index: 0,
			Content: "Alexander Graham Bell invented the telephone.", Embedding: []float32{1, 0}},
		{ID: "ws1:col1:bell.txt:chunk:1", DocumentID: "ws1:col1:bell.txt", Index: 1,
			Content: "Boston is a city.", Embedding: []float32{0, 1}},
		{ID: "ws1:other:bell.txt:chunk:0", DocumentID: "ws1:other:bell.txt", Index: 0,
			Content: "Unrelated collection.", Embedding: []float32{1, 0}},
	}
	for _, c := range chunks {
		require.NoError(t, s.UpsertChunk(ctx, c))
	}

	bell := common.Entity{ID: "ws1:col1:bell:person", WorkspaceID: "ws1", CollectionID: "col1", Name: "Bell", Type: "Person"}
	phone := common.Entity{ID: "ws1:col1:telephone:concept", WorkspaceID: "ws1", CollectionID: "col1", Name: "telephone", Type: "Concept"}
	require.NoError(t, s.UpsertEntityMention(ctx, chunks[0].ID, bell))
	require.NoError(t, s.UpsertEntityMention(ctx, chunks[0].ID, phone))
	require.NoError(t, s.UpsertRelationship(ctx, common.Relationship{SourceID: bell.ID, TargetID: phone.ID, Type: "INVENTED"}))
	return s
}

func bellAI() *aitest.FakeClient {
	return &aitest.FakeClient{
		Dims: 2,
		Embed: func(string) ([]float32, error) {
			return []float32{1, 0}, nil
		},
		Complete: func(call aitest.Call) (string, error) {
			if slices.Contains(call.SystemPrompts, ai.PlanPrompt) {
				return "Alexander Graham Bell, telephone, ", nil
			}
			return "Alexander Graham Bell invented the telephone (Source 1).", nil
		},
	}
}

const bellContext = "Key entities mentioned in query: Alexander Graham Bell, telephone\n" +
	"\n" +
	"Relevant information from knowledge graph:\n" +
	"\n" +
	"\n--- Source 1 (relevance: 0.65) ---\n" +
	"Alexander Graham Bell invented the telephone.\n" +
	"Entities: Bell, telephone\n" +
	"Relationships: Bell INVENTED telephone\n" +
	"\n--- Source 2 (relevance: 0.30) ---\n" +
	"Boston is a city."

func TestAnswer(t *testing.T) {
	fake := bellAI()
	client := NewClient(fake, seedStore(t))

	res, err := client.Answer(context.Background(), bellQuestion, "ws1", "col1")
	require.NoError(t, err)

	assert.Equal(t, bellQuestion, res.Query)
	assert.Equal(t, []string{"Alexander Graham Bell", "telephone"}, res.KeyEntities)
	assert.Equal(t, "Alexander Graham Bell invented the telephone (Source 1).", res.Answer)
	assert.Equal(t, bellContext, res.Context)

	require.Len(t, res.Sources, 2)
	assert.Equal(t, "ws1:col1:bell.txt:chunk:0", res.Sources[0].ChunkID)
	assert.Equal(t, "bell.txt", res.Sources[0].Filename)
	assert.Equal(t, []string{"Bell", "telephone"}, res.Sources[0].Entities)
	assert.Equal(t, []common.RelationTriple{{Source: "Bell", Type: "INVENTED", Target: "telephone"}}, res.Sources[0].Relationships)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "Question: "+bellQuestion, calls[0].Prompt)
	assert.Equal(t, 0.0, calls[0].Temperature)
	assert.Equal(t, []string{ai.AnswerPrompt}, calls[1].SystemPrompts)
	assert.Equal(t, 0.7, calls[1].Temperature)
	assert.Equal(t, fmt.Sprintf(ai.AnswerUserPrompt, bellContext, bellQuestion), calls[1].Prompt)
}

func TestAnswerIsDeterministic(t *testing.T) {
	client := NewClient(bellAI(), seedStore(t))

	first, err := client.Answer(context.Background(), bellQuestion, "ws1", "col1")
	require.NoError(t, err)
	second, err := client.Answer(context.Background(), bellQuestion, "ws1", "col1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAnswerWithoutSources(t *testing.T) {
	fake := bellAI()
	client := NewClient(fake, seedStore(t))

	res, err := client.Answer(context.Background(), bellQuestion, "ws1", "missing")
	require.NoError(t, err)
	assert.Empty(t, res.Sources)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, fmt.Sprintf(ai.NoDataPrompt, bellQuestion), calls[1].Prompt)
}

func TestAnswerStageFailures(t *testing.T) {
	t.Run("plan", func(t *testing.T) {
		fake := bellAI()
		fake.Complete = func(aitest.Call) (string, error) { return "", errors.New("boom") }
		_, err := NewClient(fake, seedStore(t)).Answer(context.Background(), bellQuestion, "ws1", "col1")
		assert.ErrorIs(t, err, common.ErrProvider)
	})

	t.Run("embed", func(t *testing.T) {
		fake := bellAI()
		fake.Embed = func(string) ([]float32, error) { return nil, errors.New("boom") }
		_, err := NewClient(fake, seedStore(t)).Answer(context.Background(), bellQuestion, "ws1", "col1")
		assert.ErrorIs(t, err, common.ErrProvider)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		fake := bellAI()
		fake.Embed = func(string) ([]float32, error) { return []float32{1, 0, 0}, nil }
		_, err := NewClient(fake, seedStore(t)).Answer(context.Background(), bellQuestion, "ws1", "col1")
		assert.ErrorIs(t, err, store.ErrDimensionMismatch)
		assert.ErrorIs(t, err, common.ErrValidation)
		assert.NotErrorIs(t, err, common.ErrStore)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := NewClient(bellAI(), seedStore(t)).Answer(context.Background(), " ", "ws1", "col1")
		assert.ErrorIs(t, err, common.ErrValidation)
	})
}

func TestSearch(t *testing.T) {
	fake := bellAI()
	client := NewClient(fake, seedStore(t))

	res, err := client.Search(context.Background(), bellQuestion, "ws1", "col1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "ws1:col1:bell.txt:chunk:0", res.Results[0].ChunkID)
	assert.InDelta(t, 1.0, res.Results[0].Similarity, 1e-9)
	assert.InDelta(t, 0.6+0.04+0.2/15, res.Results[0].RerankScore, 1e-9)
	assert.Empty(t, fake.Calls(), "search does not call the chat model")

	answer, err := client.Answer(context.Background(), bellQuestion, "ws1", "col1")
	require.NoError(t, err)
	full, err := client.Search(context.Background(), bellQuestion, "ws1", "col1", 10)
	require.NoError(t, err)
	assert.Equal(t, answer.Sources, full.Results, "search and answer rank alike")
}

func TestSearchEmptyCollection(t *testing.T) {
	client := NewClient(bellAI(), seedStore(t))

	res, err := client.Search(context.Background(), bellQuestion, "ws1", "nothing", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"Who invented the telephone?","results":[],"total":0}`, string(raw))
}

func TestSearchLimit(t *testing.T) {
	client := NewClient(bellAI(), seedStore(t))
	for _, limit := range []int{-1, 51} {
		_, err := client.Search(context.Background(), bellQuestion, "ws1", "col1", limit)
		assert.ErrorIs(t, err, common.ErrValidation, "limit %d", limit)
	}
}

func TestReasonDoesNotModifyInput(t *testing.T) {
	client := NewClient(bellAI(), seedStore(t))
	in := State{
		Question:    bellQuestion,
		KeyEntities: []string{"Bell"},
		Sources:     []Source{{ChunkHit: common.ChunkHit{Content: "x"}, RerankScore: 0.5}},
	}

	out := client.reason(in)
	out.KeyEntities[0] = "changed"

	assert.Empty(t, in.Context)
	assert.Equal(t, "Bell", in.KeyEntities[0])
	assert.Contains(t, out.Context, "--- Source 1 (relevance: 0.50) ---\nx")
}

func TestFormatContextSkipsEmptyParts(t *testing.T) {
	got := FormatContext(nil, []Source{{
		ChunkHit: common.ChunkHit{
			Content:       "text",
			Entities:      []string{""},
			Relationships: []common.RelationTriple{{Source: "a", Type: "R"}},
		},
	}})
	assert.Equal(t, "Key entities mentioned in query: \n\nRelevant information from knowledge graph:\n\n\n--- Source 1 (relevance: 0.00) ---\ntext", got)
}

func TestQueryTrace(t *testing.T) {
	trace := NewQueryTrace()
	client := NewClient(bellAI(), seedStore(t), WithTracer(MultiTracer{trace, nil}), WithTopK(1))

	_, err := client.Answer(context.Background(), bellQuestion, "ws1", "col1")
	require.NoError(t, err)

	snap := trace.Snapshot()
	assert.Equal(t, []string{"plan", "retrieve", "write"}, snap.Stages)
	assert.Equal(t, []string{"Alexander Graham Bell", "telephone"}, snap.PlannedEntities)
	assert.Equal(t, []string{"ws1:col1:bell.txt:chunk:0", "ws1:col1:bell.txt:chunk:1"}, snap.ConsideredChunkIDs)
	assert.Equal(t, []string{"ws1:col1:bell.txt:chunk:0"}, snap.UsedChunkIDs)
}

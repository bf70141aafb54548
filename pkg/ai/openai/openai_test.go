package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kgrag/backend/pkg/ai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, chatContent string, requests *[]map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		if requests != nil {
			*requests = append(*requests, body)
		}

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1,
				"model":   body["model"],
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": chatContent},
				}},
				"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15},
			})
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			inputs, _ := body["input"].([]any)
			data := make([]map[string]any, 0, len(inputs))
			for i := len(inputs) - 1; i >= 0; i-- {
				data = append(data, map[string]any{
					"object":    "embedding",
					"index":     i,
					"embedding": []float64{float64(i), 0.5, 0.25},
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"model":  body["model"],
				"data":   data,
				"usage":  map[string]any{"prompt_tokens": 4, "total_tokens": 4},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *GraphOpenAIClient {
	return NewGraphOpenAIClient(NewGraphOpenAIClientParams{
		EmbeddingDimensions: 3,
		EmbeddingURL:        srv.URL + "/v1/",
		EmbeddingKey:        "test",
		ChatURL:             srv.URL + "/v1/",
		ChatKey:             "test",
	})
}

func TestGenerateCompletion(t *testing.T) {
	var requests []map[string]any
	srv := newTestServer(t, "telephone, inventor", &requests)
	client := newTestClient(srv)

	out, err := client.GenerateCompletion(context.Background(), "Question: who invented the telephone?",
		ai.WithSystemPrompts(ai.PlanPrompt), ai.WithTemperature(0))
	require.NoError(t, err)
	assert.Equal(t, "telephone, inventor", out)

	require.Len(t, requests, 1)
	assert.Equal(t, "gpt-4o-mini", requests[0]["model"])
	assert.Equal(t, 0.0, requests[0]["temperature"])
	msgs := requests[0]["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])

	m := client.GetMetrics()
	assert.Equal(t, 15, m.TotalTokens)
	assert.Equal(t, 1, m.Requests)
}

func TestGenerateCompletionWithFormat(t *testing.T) {
	var requests []map[string]any
	srv := newTestServer(t, `{"name": "Bell"}`, &requests)
	client := newTestClient(srv)

	var out struct {
		Name string `json:"name"`
	}
	err := client.GenerateCompletionWithFormat(context.Background(), "person", "A person", "text", &out)
	require.NoError(t, err)
	assert.Equal(t, "Bell", out.Name)

	format := requests[0]["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
}

func TestGenerateEmbeddingsKeepsOrder(t *testing.T) {
	srv := newTestServer(t, "", nil)
	client := newTestClient(srv)

	vecs, err := client.GenerateEmbeddings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.Equal(t, []float32{float32(i), 0.5, 0.25}, v)
	}
	assert.Equal(t, 3, client.EmbeddingDimensions())
	assert.Equal(t, 4, client.GetMetrics().EmbeddingTokens)
}

// Package aitest provides a scripted ai.GraphAIClient for tests.
package aitest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/kgrag/backend/pkg/ai"
)

// Call records one completion request.
type Call struct {
	SystemPrompts []string
	Prompt        string
	Temperature   float64
	Structured    bool
}

// FakeClient implements ai.GraphAIClient without a network. Unset hooks
// fall back to deterministic defaults: HashEmbedding for vectors, an empty
// string for completions and an empty JSON object for structured output.
type FakeClient struct {
	ai.MetricsTracker

	Dims int

	Embed    func(text string) ([]float32, error)
	Complete func(call Call) (string, error)
	Format   func(call Call) (string, error)

	mu    sync.Mutex
	calls []Call
}

var _ ai.GraphAIClient = (*FakeClient)(nil)

func (f *FakeClient) record(call Call) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

// Calls returns a copy of all recorded completion requests.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *FakeClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	o := ai.ApplyOptions(ai.GenerateOptions{}, opts...)
	call := Call{SystemPrompts: o.SystemPrompts, Prompt: prompt, Temperature: o.Temperature}
	f.record(call)
	f.AddMetrics(ai.ModelMetrics{InputTokens: len(strings.Fields(prompt)), TotalTokens: len(strings.Fields(prompt))})
	if f.Complete == nil {
		return "", nil
	}
	return f.Complete(call)
}

func (f *FakeClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o := ai.ApplyOptions(ai.GenerateOptions{}, opts...)
	call := Call{SystemPrompts: o.SystemPrompts, Prompt: prompt, Temperature: o.Temperature, Structured: true}
	f.record(call)
	raw := "{}"
	if f.Format != nil {
		var err error
		if raw, err = f.Format(call); err != nil {
			return err
		}
	}
	return ai.UnmarshalFlexible(raw, out)
}

func (f *FakeClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Embed != nil {
		return f.Embed(string(input))
	}
	return HashEmbedding(string(input), f.EmbeddingDimensions()), nil
}

func (f *FakeClient) EmbeddingDimensions() int {
	if f.Dims <= 0 {
		return 16
	}
	return f.Dims
}

// HashEmbedding hashes every lower-cased word into one of dims buckets and
// L2-normalizes the counts. Texts sharing words get a high cosine similarity.
func HashEmbedding(text string, dims int) []float32 {
	vec := make([]float32, dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(dims)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

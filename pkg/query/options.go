package query

type queryOptions struct {
	SystemPrompts []string
	Model         string
	CandidateK    int
	TopK          int
	Tracer        Tracer
}

// QueryOption is a functional option for configuring query behavior.
type QueryOption func(*queryOptions)

// WithSystemPrompts returns a QueryOption that appends additional system
// prompts to the answer stage.
func WithSystemPrompts(prompts ...string) QueryOption {
	return func(o *queryOptions) {
		o.SystemPrompts = append(o.SystemPrompts, prompts...)
	}
}

// WithModel returns a QueryOption that specifies which AI model the plan
// and answer stages use.
func WithModel(model string) QueryOption {
	return func(o *queryOptions) {
		o.Model = model
	}
}

// WithCandidates sets how many chunks the vector search returns before
// reranking. Defaults to 10.
func WithCandidates(k int) QueryOption {
	return func(o *queryOptions) {
		o.CandidateK = k
	}
}

// WithTopK sets how many reranked chunks reach the answer stage.
// Defaults to 5.
func WithTopK(k int) QueryOption {
	return func(o *queryOptions) {
		o.TopK = k
	}
}

// WithTracer returns a QueryOption that records pipeline events.
func WithTracer(t Tracer) QueryOption {
	return func(o *queryOptions) {
		o.Tracer = t
	}
}

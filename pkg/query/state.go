package query

import "slices"

// State is the value threaded through the retrieval stages. Stages never
// modify the State they receive; each returns a copy with its own fields set.
type State struct {
	Question     string
	WorkspaceID  string
	CollectionID string

	KeyEntities []string // set by plan
	Sources     []Source // set by retrieve
	Context     string   // set by reason
	Answer      string   // set by write
}

// clone copies the slices so stages cannot alias each other's data.
func (s State) clone() State {
	s.KeyEntities = slices.Clone(s.KeyEntities)
	s.Sources = slices.Clone(s.Sources)
	return s
}

func (s State) withKeyEntities(entities []string) State {
	next := s.clone()
	next.KeyEntities = entities
	return next
}

func (s State) withSources(sources []Source) State {
	next := s.clone()
	next.Sources = sources
	return next
}

func (s State) withContext(context string) State {
	next := s.clone()
	next.Context = context
	return next
}

func (s State) withAnswer(answer string) State {
	next := s.clone()
	next.Answer = answer
	return next
}

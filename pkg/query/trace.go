package query

import (
	"slices"
	"sync"
)

type TraceEventKind string

const (
	TraceEventPlannedEntities    TraceEventKind = "planned_entities"
	TraceEventConsideredChunkIDs TraceEventKind = "considered_chunk_ids"
	TraceEventUsedChunkIDs       TraceEventKind = "used_chunk_ids"
	TraceEventStage              TraceEventKind = "stage"
)

// TraceEvent is an extensible event envelope for query tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	ChunkIDs []string
	Entities []string

	Stage      string
	DurationMs int64
	Error      string
}

// Tracer is a sink for query tracing events.
//
// Implementers can forward events to logs, telemetry, or custom post-processing
// pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func recordChunkIDs(t Tracer, kind TraceEventKind, sources []Source) {
	if t == nil {
		return
	}
	ids := make([]string, len(sources))
	for i, s := range sources {
		ids[i] = s.ChunkID
	}
	t.Record(TraceEvent{Kind: kind, ChunkIDs: ids})
}

func recordStage(t Tracer, stage string, durationMs int64, err error) {
	if t == nil {
		return
	}
	ev := TraceEvent{Kind: TraceEventStage, Stage: stage, DurationMs: durationMs}
	if err != nil {
		ev.Error = err.Error()
	}
	t.Record(ev)
}

// QueryTrace collects what a query run planned, considered and used.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu sync.Mutex

	plannedEntities    map[string]struct{}
	consideredChunkIDs map[string]struct{}
	usedChunkIDs       map[string]struct{}
	stages             []string
}

type QueryTraceSnapshot struct {
	PlannedEntities    []string
	ConsideredChunkIDs []string
	UsedChunkIDs       []string
	Stages             []string
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{
		plannedEntities:    make(map[string]struct{}),
		consideredChunkIDs: make(map[string]struct{}),
		usedChunkIDs:       make(map[string]struct{}),
	}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case TraceEventPlannedEntities:
		addAll(t.plannedEntities, event.Entities)
	case TraceEventConsideredChunkIDs:
		addAll(t.consideredChunkIDs, event.ChunkIDs)
	case TraceEventUsedChunkIDs:
		addAll(t.usedChunkIDs, event.ChunkIDs)
	case TraceEventStage:
		t.stages = append(t.stages, event.Stage)
	}
}

func addAll(set map[string]struct{}, values []string) {
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Snapshot returns the sorted ids seen so far. Stages keep execution order.
func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return QueryTraceSnapshot{
		PlannedEntities:    sortedKeys(t.plannedEntities),
		ConsideredChunkIDs: sortedKeys(t.consideredChunkIDs),
		UsedChunkIDs:       sortedKeys(t.usedChunkIDs),
		Stages:             slices.Clone(t.stages),
	}
}

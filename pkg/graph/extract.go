package graph

import (
	"context"

	"github.com/kgrag/backend/internal/util"
	"github.com/kgrag/backend/pkg/ai"
	"github.com/kgrag/backend/pkg/common"
)

// Extractor finds entities and relationships in a chunk of text.
// Implementations must return validated output: non-empty names and types,
// and relationships whose endpoints are among the returned entities.
type Extractor interface {
	Extract(ctx context.Context, text string) (*common.Extraction, error)
}

type extractEntity struct {
	Name string `json:"name" jsonschema_description:"Entity name as written in the text"`
	Type string `json:"type" jsonschema_description:"Entity type (Person, Organization, Location, Concept, etc.)"`
}

type extractRelationship struct {
	Source string `json:"source" jsonschema_description:"Source entity name"`
	Target string `json:"target" jsonschema_description:"Target entity name"`
	Type   string `json:"type" jsonschema_description:"Relationship type (uppercase verb, e.g., WORKS_FOR, INVENTED)"`
}

type extractResponse struct {
	Entities      []extractEntity       `json:"entities" jsonschema_description:"List of extracted entities"`
	Relationships []extractRelationship `json:"relationships" jsonschema_description:"List of relationships between entities"`
}

// LLMExtractor asks a chat model for a JSON-schema constrained extraction.
type LLMExtractor struct {
	client ai.GraphAIClient
	opts   []ai.GenerateOption
}

// NewExtractor creates an Extractor backed by client. opts are passed to
// every completion request after the extraction system prompt.
func NewExtractor(client ai.GraphAIClient, opts ...ai.GenerateOption) *LLMExtractor {
	return &LLMExtractor{client: client, opts: opts}
}

func (e *LLMExtractor) Extract(ctx context.Context, text string) (*common.Extraction, error) {
	var res extractResponse
	opts := append([]ai.GenerateOption{ai.WithSystemPrompts(ai.ExtractPrompt)}, e.opts...)
	err := e.client.GenerateCompletionWithFormat(
		ctx,
		"extract_entities_and_relationships",
		"Extract entities and relationships from a passage of text.",
		text,
		&res,
		opts...,
	)
	if err != nil {
		return nil, common.ExtractionError("extract", err)
	}
	return sanitizeExtraction(res), nil
}

// sanitizeExtraction treats provider output as untrusted. Entities without
// a name or type are dropped, duplicates by normalized name and type are
// folded, and relationships are kept only when both endpoints name a kept
// entity and the type is non-empty.
func sanitizeExtraction(res extractResponse) *common.Extraction {
	out := &common.Extraction{
		Entities:      make([]common.ExtractedEntity, 0, len(res.Entities)),
		Relationships: make([]common.ExtractedRelationship, 0, len(res.Relationships)),
	}

	seen := make(map[string]struct{}, len(res.Entities))
	names := make(map[string]struct{}, len(res.Entities))
	for _, e := range res.Entities {
		name := util.CollapseSpaces(e.Name)
		typ := util.CollapseSpaces(e.Type)
		if Normalize(name) == "" || Normalize(typ) == "" {
			continue
		}
		key := Normalize(name) + ":" + Normalize(typ)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names[Normalize(name)] = struct{}{}
		out.Entities = append(out.Entities, common.ExtractedEntity{Name: name, Type: typ})
	}

	relSeen := make(map[string]struct{}, len(res.Relationships))
	for _, r := range res.Relationships {
		typ := NormalizeRelationType(r.Type)
		if typ == "" {
			continue
		}
		src := util.CollapseSpaces(r.Source)
		tgt := util.CollapseSpaces(r.Target)
		if _, ok := names[Normalize(src)]; !ok {
			continue
		}
		if _, ok := names[Normalize(tgt)]; !ok {
			continue
		}
		key := Normalize(src) + "|" + typ + "|" + Normalize(tgt)
		if _, ok := relSeen[key]; ok {
			continue
		}
		relSeen[key] = struct{}{}
		out.Relationships = append(out.Relationships, common.ExtractedRelationship{
			Source: src,
			Target: tgt,
			Type:   typ,
		})
	}

	return out
}

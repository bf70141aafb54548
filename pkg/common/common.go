package common

// Workspace is the outermost partition key. It carries no data of its own.
type Workspace struct {
	ID string `json:"id"`
}

// Collection groups documents inside a workspace. Its id is unique within
// the workspace only.
type Collection struct {
	WorkspaceID string `json:"workspace_id"`
	ID          string `json:"id"`
	Name        string `json:"name"`
}

// Document is a single ingested source. The ID is the composite
// "workspace:collection:sourceDocId".
type Document struct {
	ID           string         `json:"id"`
	WorkspaceID  string         `json:"workspace_id"`
	CollectionID string         `json:"collection_id"`
	SourceID     string         `json:"source_id"`
	Metadata     map[string]any `json:"metadata"`
}

// Chunk is a contiguous slice of a document's text. Index is the chunker
// position and is contiguous from 0 per document.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Index      int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

// Entity is a node derived from extraction. Its ID depends only on the scope
// and the normalized name and type, so repeated mentions merge.
type Entity struct {
	ID           string `json:"id"`
	WorkspaceID  string `json:"workspace_id"`
	CollectionID string `json:"collection_id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
}

// Relationship is a directed RELATES_TO edge between two entity ids.
type Relationship struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Type     string `json:"type"`
}

// ExtractedEntity and ExtractedRelationship are provider output after validation.
// Relationships reference entities by name, not id.
type ExtractedEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type ExtractedRelationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// Extraction is the validated result for one chunk.
type Extraction struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// RelationTriple is a relationship rendered with entity display names.
type RelationTriple struct {
	Source string `json:"source"`
	Type   string `json:"type"`
	Target string `json:"target"`
}

// ChunkHit is one vector search result with its one-hop graph neighbourhood.
// Similarity is in [0,1], higher is closer.
type ChunkHit struct {
	ChunkID       string           `json:"chunk_id"`
	DocumentID    string           `json:"document_id"`
	Filename      string           `json:"filename,omitempty"`
	ChunkIndex    int              `json:"chunk_index"`
	Content       string           `json:"content"`
	Similarity    float64          `json:"score"`
	Entities      []string         `json:"entities"`
	Relationships []RelationTriple `json:"relationships"`
}

// ChunkFailure records why one chunk did not make it into the graph
// completely. Stage is "embed", "extract" or "store".
type ChunkFailure struct {
	Index int    `json:"chunk_index"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// IngestStats counts successful writes only.
type IngestStats struct {
	DocumentID        string         `json:"document_id"`
	ChunkCount        int            `json:"chunks"`
	EntityCount       int            `json:"entities"`
	RelationshipCount int            `json:"relationships"`
	FailedChunks      []ChunkFailure `json:"failed_chunks,omitempty"`
	Partial           bool           `json:"partial"`
}

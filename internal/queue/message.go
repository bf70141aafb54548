package queue

import (
	"encoding/json"
	"fmt"

	"github.com/kgrag/backend/pkg/common"

	"github.com/go-playground/validator"
)

// IngestJob asks a worker to ingest one staged upload.
type IngestJob struct {
	JobID          string         `json:"job_id" validate:"required"`
	WorkspaceID    string         `json:"workspace_id" validate:"required"`
	CollectionID   string         `json:"collection_id" validate:"required"`
	CollectionName string         `json:"collection_name,omitempty"`
	SourceDocID    string         `json:"source_doc_id" validate:"required"`
	Bucket         string         `json:"bucket" validate:"required"`
	ObjectKey      string         `json:"object_key" validate:"required"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// IngestEvent is published on EventsExchange when a job finishes.
type IngestEvent struct {
	JobID        string              `json:"job_id"`
	WorkspaceID  string              `json:"workspace_id"`
	CollectionID string              `json:"collection_id"`
	SourceDocID  string              `json:"source_doc_id"`
	Stats        *common.IngestStats `json:"stats,omitempty"`
	Error        string              `json:"error,omitempty"`
}

var validate = validator.New()

// DecodeIngestJob parses and validates a queue message body. Failures are
// permanent: redelivering the same body cannot succeed.
func DecodeIngestJob(body []byte) (*IngestJob, error) {
	job := new(IngestJob)
	if err := json.Unmarshal(body, job); err != nil {
		return nil, Permanent(fmt.Errorf("decode ingest job: %w", err))
	}
	if err := validate.Struct(job); err != nil {
		return nil, Permanent(fmt.Errorf("invalid ingest job: %w", err))
	}
	return job, nil
}

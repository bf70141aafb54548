package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kgrag/backend/internal/storage"
	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/graph"
	"github.com/kgrag/backend/pkg/leaselock"
	"github.com/kgrag/backend/pkg/loader"
	"github.com/kgrag/backend/pkg/loader/auto"
	"github.com/kgrag/backend/pkg/loader/s3"
	"github.com/kgrag/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// maxRetries is how often a failing message goes through the retry queue
// before it is dead-lettered.
const maxRetries = 10

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether a message that failed with err should go
// straight to the dead-letter queue. Validation errors are permanent too.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p) || errors.Is(err, common.ErrValidation) || errors.Is(err, loader.ErrUnsupportedFileType)
}

type Ingester interface {
	IngestDocument(ctx context.Context, params graph.IngestParams) (*common.IngestStats, error)
}

type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// Processor runs ingest jobs. Objects are the staged uploads, Events
// receives completion and failure notifications.
type Processor struct {
	Objects storage.ObjectStore
	Graph   Ingester
	Locks   Locker
	Events  Publisher
	Owner   string
}

// ProcessIngestMessage ingests the upload referenced by body while holding
// the document's lease. On success the staged object is removed and
// TopicCompleted is published. Permanent failures publish TopicFailed;
// transient ones are left to the retry queue.
func (p *Processor) ProcessIngestMessage(ctx context.Context, body []byte) (*common.IngestStats, error) {
	job, err := DecodeIngestJob(body)
	if err != nil {
		return nil, err
	}

	stats, err := p.ingest(ctx, job)
	if err != nil {
		if IsPermanent(err) {
			p.publish(ctx, TopicFailed, job, nil, err)
		}
		return nil, err
	}

	if err := storage.DeleteFile(ctx, p.Objects, job.Bucket, job.ObjectKey); err != nil {
		logger.Warn("[Queue] Failed to delete staged upload", "job_id", job.JobID, "key", job.ObjectKey, "err", err)
	}
	p.publish(ctx, TopicCompleted, job, stats, nil)
	return stats, nil
}

func (p *Processor) ingest(ctx context.Context, job *IngestJob) (*common.IngestStats, error) {
	src := s3.NewS3GraphFileLoader(job.Bucket, p.Objects)
	file, err := auto.NewGraphFile(job.JobID, job.ObjectKey, src)
	if err != nil {
		return nil, err
	}

	text, err := file.GetText(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", job.ObjectKey, err)
	}

	var stats *common.IngestStats
	docID := graph.DocumentID(job.WorkspaceID, job.CollectionID, job.SourceDocID)
	err = p.Locks.WithLease(ctx, leaselock.DocumentKey(docID), leaselock.Options{Wait: true, Owner: p.Owner},
		func(ctx context.Context) error {
			var err error
			stats, err = p.Graph.IngestDocument(ctx, graph.IngestParams{
				Text:           string(text),
				WorkspaceID:    job.WorkspaceID,
				CollectionID:   job.CollectionID,
				CollectionName: job.CollectionName,
				SourceDocID:    job.SourceDocID,
				Metadata:       job.Metadata,
			})
			return err
		})
	if err != nil {
		return nil, err
	}

	logger.Info(
		"[Queue] Ingest job finished",
		"job_id", job.JobID,
		"document_id", stats.DocumentID,
		"chunks", stats.ChunkCount,
		"partial", stats.Partial,
	)
	return stats, nil
}

func (p *Processor) publish(ctx context.Context, topic string, job *IngestJob, stats *common.IngestStats, cause error) {
	if p.Events == nil {
		return
	}
	event := IngestEvent{
		JobID:        job.JobID,
		WorkspaceID:  job.WorkspaceID,
		CollectionID: job.CollectionID,
		SourceDocID:  job.SourceDocID,
		Stats:        stats,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("[Queue] Failed to marshal event", "job_id", job.JobID, "err", err)
		return
	}
	if err := PublishTopic(ctx, p.Events, topic, data); err != nil {
		logger.Error("[Queue] Failed to publish event", "topic", topic, "job_id", job.JobID, "err", err)
	}
}

// HandleProcessingError routes a failed delivery. Permanent failures and
// messages that exhausted maxRetries go to "<queue>_dlq", everything else
// to "<queue>_retry" with an incremented x-retries header. The original
// delivery is acked once the copy is published and requeued otherwise.
func HandleProcessingError(ctx context.Context, ch Publisher, msg amqp091.Delivery, queueName string, cause error) {
	retries := retryCount(msg.Headers)

	target := queueName + "_retry"
	if retries >= maxRetries || IsPermanent(cause) {
		target = queueName + "_dlq"
	}

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-retries"] = int32(retries + 1)
	if cause != nil {
		headers["x-last-error"] = cause.Error()
	}

	logger.Info("[Queue] Rerouting failed message", "queue", queueName, "target", target, "retries", retries)
	err := ch.PublishWithContext(ctx, "", target, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to reroute message", "target", target, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func retryCount(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

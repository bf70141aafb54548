package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/graph"
	"github.com/kgrag/backend/pkg/leaselock"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]string
}

func (f *fakeObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	f.objects[*in.Key] = string(b)
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeObjects) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	delete(f.objects, *in.Key)
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

type fakeIngester struct {
	params []graph.IngestParams
	err    error
}

func (f *fakeIngester) IngestDocument(ctx context.Context, p graph.IngestParams) (*common.IngestStats, error) {
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	return &common.IngestStats{
		DocumentID: graph.DocumentID(p.WorkspaceID, p.CollectionID, p.SourceDocID),
		ChunkCount: 1,
	}, nil
}

type fakeLocker struct {
	keys []string
}

func (f *fakeLocker) WithLease(ctx context.Context, key string, _ leaselock.Options, fn func(context.Context) error) error {
	f.keys = append(f.keys, key)
	return fn(ctx)
}

type published struct {
	exchange, key string
	msg           amqp091.Publishing
}

type fakePublisher struct {
	out []published
	err error
}

func (f *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, published{exchange, key, msg})
	return nil
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(tag uint64, multiple bool) error { f.acked = true; return nil }
func (f *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}
func (f *fakeAck) Reject(tag uint64, requeue bool) error { return nil }

func jobBody(t *testing.T, key string) []byte {
	t.Helper()
	body, err := json.Marshal(IngestJob{
		JobID:        "job1",
		WorkspaceID:  "ws1",
		CollectionID: "col1",
		SourceDocID:  "notes.txt",
		Bucket:       "uploads",
		ObjectKey:    key,
		Metadata:     map[string]any{"filename": "notes.txt"},
	})
	require.NoError(t, err)
	return body
}

func newProcessor(objects map[string]string) (*Processor, *fakeIngester, *fakeLocker, *fakePublisher, *fakeObjects) {
	store := &fakeObjects{objects: objects}
	ing := &fakeIngester{}
	locks := &fakeLocker{}
	events := &fakePublisher{}
	return &Processor{Objects: store, Graph: ing, Locks: locks, Events: events}, ing, locks, events, store
}

func TestProcessIngestMessage(t *testing.T) {
	p, ing, locks, events, store := newProcessor(map[string]string{
		"ws1/col1/job1.txt": "Bell invented the telephone.\r\n",
	})

	stats, err := p.ProcessIngestMessage(context.Background(), jobBody(t, "ws1/col1/job1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ws1:col1:notes.txt", stats.DocumentID)

	require.Len(t, ing.params, 1)
	assert.Equal(t, "Bell invented the telephone.", ing.params[0].Text)
	assert.Equal(t, "notes.txt", ing.params[0].Metadata["filename"])
	assert.Equal(t, []string{"ingest:ws1:col1:notes.txt"}, locks.keys)
	assert.Empty(t, store.objects, "staged upload is removed")

	require.Len(t, events.out, 1)
	assert.Equal(t, EventsExchange, events.out[0].exchange)
	assert.Equal(t, TopicCompleted, events.out[0].key)
	var ev IngestEvent
	require.NoError(t, json.Unmarshal(events.out[0].msg.Body, &ev))
	assert.Equal(t, "job1", ev.JobID)
	assert.Equal(t, 1, ev.Stats.ChunkCount)
}

func TestProcessIngestMessageFailures(t *testing.T) {
	t.Run("invalid body", func(t *testing.T) {
		p, _, _, events, _ := newProcessor(map[string]string{})
		_, err := p.ProcessIngestMessage(context.Background(), []byte(`{"job_id":"x"}`))
		assert.True(t, IsPermanent(err))
		assert.Empty(t, events.out)
	})

	t.Run("unsupported file type", func(t *testing.T) {
		p, _, _, events, _ := newProcessor(map[string]string{"ws1/col1/job1.png": "x"})
		_, err := p.ProcessIngestMessage(context.Background(), jobBody(t, "ws1/col1/job1.png"))
		assert.True(t, IsPermanent(err))
		require.Len(t, events.out, 1)
		assert.Equal(t, TopicFailed, events.out[0].key)
	})

	t.Run("missing object is retried", func(t *testing.T) {
		p, _, _, events, _ := newProcessor(map[string]string{})
		_, err := p.ProcessIngestMessage(context.Background(), jobBody(t, "ws1/col1/job1.txt"))
		require.Error(t, err)
		assert.False(t, IsPermanent(err))
		assert.Empty(t, events.out)
	})

	t.Run("provider failure is retried", func(t *testing.T) {
		p, ing, _, _, store := newProcessor(map[string]string{"ws1/col1/job1.txt": "text"})
		ing.err = common.ProviderError("embed", errors.New("rate limited"))
		_, err := p.ProcessIngestMessage(context.Background(), jobBody(t, "ws1/col1/job1.txt"))
		require.Error(t, err)
		assert.False(t, IsPermanent(err))
		assert.Len(t, store.objects, 1, "upload is kept for the retry")
	})
}

func TestHandleProcessingError(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp091.Table
		cause   error
		target  string
		retries int32
	}{
		{"first failure", nil, errors.New("boom"), IngestQueue + "_retry", 1},
		{"retried", amqp091.Table{"x-retries": int32(3)}, errors.New("boom"), IngestQueue + "_retry", 4},
		{"exhausted", amqp091.Table{"x-retries": int32(maxRetries)}, errors.New("boom"), IngestQueue + "_dlq", maxRetries + 1},
		{"permanent", nil, Permanent(errors.New("bad")), IngestQueue + "_dlq", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			pub := &fakePublisher{}
			msg := amqp091.Delivery{Acknowledger: ack, Headers: tt.headers, Body: []byte("{}")}

			HandleProcessingError(context.Background(), pub, msg, IngestQueue, tt.cause)

			require.Len(t, pub.out, 1)
			assert.Equal(t, tt.target, pub.out[0].key)
			assert.Equal(t, tt.retries, pub.out[0].msg.Headers["x-retries"])
			assert.True(t, ack.acked)
		})
	}

	t.Run("publish failure requeues", func(t *testing.T) {
		ack := &fakeAck{}
		msg := amqp091.Delivery{Acknowledger: ack}
		HandleProcessingError(context.Background(), &fakePublisher{err: errors.New("closed")}, msg, IngestQueue, errors.New("boom"))
		assert.True(t, ack.nacked)
		assert.True(t, ack.requeued)
		assert.False(t, ack.acked)
	})
}

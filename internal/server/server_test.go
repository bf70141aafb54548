package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"

	"github.com/kgrag/backend/internal/queue"
	mid "github.com/kgrag/backend/internal/server/middleware"
	"github.com/kgrag/backend/pkg/ai"
	"github.com/kgrag/backend/pkg/ai/aitest"
	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/graph"
	"github.com/kgrag/backend/pkg/query"
	"github.com/kgrag/backend/pkg/store/memory"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bellExtraction = `{
  "entities": [
    {"name": "Bell", "type": "Person"},
    {"name": "telephone", "type": "Concept"}
  ],
  "relationships": [
    {"source": "Bell", "target": "telephone", "type": "INVENTED"}
  ]
}`

func newFakeAI() *aitest.FakeClient {
	return &aitest.FakeClient{
		Dims: 16,
		Format: func(call aitest.Call) (string, error) {
			return bellExtraction, nil
		},
		Complete: func(call aitest.Call) (string, error) {
			if slices.Contains(call.SystemPrompts, ai.PlanPrompt) {
				return "Bell, telephone", nil
			}
			return "Bell invented the telephone [Source 1].", nil
		},
	}
}

type testServer struct {
	e     *echo.Echo
	app   *mid.App
	store *memory.Storage
	ai    *aitest.FakeClient
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	storage := memory.NewStorage()
	fake := newFakeAI()
	ingest, err := graph.NewGraphClient(graph.NewGraphClientParams{
		AIClient:     fake,
		Storage:      storage,
		ChunkSize:    50,
		TokenCounter: graph.WhitespaceCounter,
	})
	require.NoError(t, err)

	app := &mid.App{
		Store:  storage,
		Ingest: ingest,
		Query:  query.NewClient(fake, storage),
	}
	return &testServer{e: New(app, []string{"http://localhost:3000"}), app: app, store: storage, ai: fake}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, target string, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func scope() map[string]string {
	return map[string]string{"workspace_id": "ws1", "collection_id": "col1"}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestStatusRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Graph RAG API","status":"running"}`, rec.Body.String())

	rec = s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/rag/search", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)

	rec := s.do(req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestCreateCollection(t *testing.T) {
	s := newTestServer(t)

	form := url.Values{"workspace_id": {"ws1"}, "collection_id": {"col1"}, "collection_name": {"Inventors"}}
	req := httptest.NewRequest(http.MethodPost, "/ingest/collection", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"success","workspace_id":"ws1","collection_id":"col1","collection_name":"Inventors"}`, rec.Body.String())

	form.Del("collection_name")
	req = httptest.NewRequest(http.MethodPost, "/ingest/collection", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	assert.Equal(t, http.StatusBadRequest, s.do(req).Code)
}

func TestUpload(t *testing.T) {
	s := newTestServer(t)
	fields := scope()
	fields["metadata"] = `{"author":"A. Historian"}`

	rec := s.do(multipartRequest(t, "/ingest/upload", fields, "bell.txt", "Alexander Graham Bell invented the telephone."))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[map[string]any](t, rec)
	assert.Equal(t, "success", res["status"])
	assert.Equal(t, "ws1:col1:bell.txt", res["document_id"])
	assert.EqualValues(t, 1, res["chunks"])
	assert.EqualValues(t, 2, res["entities"])
	assert.EqualValues(t, 1, res["relationships"])
	assert.Equal(t, false, res["partial"])

	doc, ok := s.store.Document("ws1:col1:bell.txt")
	require.True(t, ok)
	assert.Equal(t, "bell.txt", doc.Metadata["filename"])
	assert.Equal(t, "A. Historian", doc.Metadata["author"])
}

func TestUploadRejects(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		want     int
	}{
		{"missing file", scope(), "", http.StatusBadRequest},
		{"missing scope", map[string]string{"workspace_id": "ws1"}, "a.txt", http.StatusBadRequest},
		{"bad metadata", map[string]string{"workspace_id": "ws1", "collection_id": "c", "metadata": "[1,2"}, "a.txt", http.StatusBadRequest},
		{"unsupported type", scope(), "photo.png", http.StatusUnsupportedMediaType},
		{"unreadable pdf", scope(), "broken.pdf", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(multipartRequest(t, "/ingest/upload", tt.fields, tt.filename, "content"))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
	assert.Zero(t, s.store.Counts().Documents)
}

func TestSearchAndAnswer(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(multipartRequest(t, "/ingest/upload", scope(), "bell.txt", "Alexander Graham Bell invented the telephone."))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	q := url.Values{"query": {"Who invented the telephone?"}, "workspace_id": {"ws1"}, "collection_id": {"col1"}}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/rag/search?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	search := decode[query.SearchResult](t, rec)
	assert.Equal(t, 1, search.Total)
	require.Len(t, search.Results, 1)
	assert.Equal(t, "ws1:col1:bell.txt:chunk:0", search.Results[0].ChunkID)
	assert.ElementsMatch(t, []string{"Bell", "telephone"}, search.Results[0].Entities)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/rag/answer?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	answer := decode[query.AnswerResult](t, rec)
	assert.Equal(t, "Bell invented the telephone [Source 1].", answer.Answer)
	assert.Equal(t, []string{"Bell", "telephone"}, answer.KeyEntities)
	assert.Len(t, answer.Sources, 1)
	assert.Contains(t, answer.Context, "Alexander Graham Bell invented the telephone.")
}

func TestSearchValidation(t *testing.T) {
	s := newTestServer(t)
	base := url.Values{"query": {"telephone"}, "workspace_id": {"ws1"}, "collection_id": {"empty"}}

	rec := s.do(httptest.NewRequest(http.MethodGet, "/rag/search?"+base.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"query":"telephone","results":[],"total":0}`, rec.Body.String())

	for _, limit := range []string{"0", "51", "-1", "ten"} {
		q := url.Values{"limit": {limit}}
		for k, v := range base {
			q[k] = v
		}
		rec := s.do(httptest.NewRequest(http.MethodGet, "/rag/search?"+q.Encode(), nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/rag/answer?workspace_id=ws1&collection_id=col1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadDimensionMismatch(t *testing.T) {
	s := newTestServer(t)
	s.ai.Embed = func(text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}

	rec := s.do(multipartRequest(t, "/ingest/upload", scope(), "bell.txt", "Alexander Graham Bell invented the telephone."))
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	body := decode[struct {
		Error string              `json:"error"`
		Stats *common.IngestStats `json:"stats"`
	}](t, rec)
	assert.Contains(t, body.Error, "vector dimension mismatch")
	require.NotNil(t, body.Stats)
	assert.True(t, body.Stats.Partial)
	assert.Equal(t, 0, body.Stats.ChunkCount)
	assert.Equal(t, "ws1:col1:bell.txt", body.Stats.DocumentID)
}

func TestAnswerProviderFailure(t *testing.T) {
	s := newTestServer(t)
	s.ai.Complete = func(call aitest.Call) (string, error) {
		return "", errors.New("upstream unavailable")
	}

	q := url.Values{"query": {"Who?"}, "workspace_id": {"ws1"}, "collection_id": {"col1"}}
	rec := s.do(httptest.NewRequest(http.MethodGet, "/rag/answer?"+q.Encode(), nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "upstream unavailable")
}

type recordingPublisher struct {
	keys   []string
	bodies [][]byte
}

func (p *recordingPublisher) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	p.keys = append(p.keys, key)
	p.bodies = append(p.bodies, msg.Body)
	return nil
}

type memoryObjects map[string][]byte

func (m memoryObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m[*in.Bucket+"/"+*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (m memoryObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, errors.New("not implemented")
}

func (m memoryObjects) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(m, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestCreateIngestJob(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(multipartRequest(t, "/ingest/jobs", scope(), "bell.md", "# Bell"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	pub := &recordingPublisher{}
	objects := memoryObjects{}
	s.app.Queue = pub
	s.app.S3 = objects
	s.app.Bucket = "uploads"

	rec = s.do(multipartRequest(t, "/ingest/jobs", scope(), "bell.md", "# Bell"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	res := decode[map[string]string](t, rec)
	assert.Equal(t, "queued", res["status"])
	assert.NotEmpty(t, res["job_id"])

	require.Equal(t, []string{queue.IngestQueue}, pub.keys)
	job, err := queue.DecodeIngestJob(pub.bodies[0])
	require.NoError(t, err)
	assert.Equal(t, res["job_id"], job.JobID)
	assert.Equal(t, "bell.md", job.SourceDocID)
	assert.Equal(t, "ws1/col1/"+job.JobID+".md", job.ObjectKey)
	assert.Equal(t, "# Bell", string(objects["uploads/"+job.ObjectKey]))

	rec = s.do(multipartRequest(t, "/ingest/jobs", scope(), "photo.png", "x"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Len(t, pub.keys, 1)
}

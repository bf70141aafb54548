package routes

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/kgrag/backend/internal/queue"
	"github.com/kgrag/backend/internal/server/middleware"
	"github.com/kgrag/backend/internal/storage"
	"github.com/kgrag/backend/pkg/loader"
	"github.com/kgrag/backend/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CreateIngestJobHandler stages an upload in S3 and queues it for the
// worker. It answers 202 with the job id; the outcome is published on the
// ingest events exchange.
func CreateIngestJobHandler(c echo.Context) error {
	type createJobResponse struct {
		JobID        string `json:"job_id"`
		Status       string `json:"status"`
		WorkspaceID  string `json:"workspace_id"`
		CollectionID string `json:"collection_id"`
		SourceDocID  string `json:"source_doc_id"`
	}

	app := c.(*middleware.AppContext).App
	if app.Queue == nil || app.S3 == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "ingestion jobs are disabled"})
	}

	up, err := readUpload(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if _, err := loader.DetectFileType(up.Filename); err != nil {
		return errorJSON(c, "create job", err)
	}

	jobID, err := gonanoid.New()
	if err != nil {
		return errorJSON(c, "create job", err)
	}
	ctx := c.Request().Context()
	key := storage.UploadKey(up.WorkspaceID, up.CollectionID, jobID, up.Filename)
	if err := storage.PutFile(ctx, app.S3, app.Bucket, key, bytes.NewReader(up.Content)); err != nil {
		logger.Error("[Server] Failed to stage upload", "job_id", jobID, "err", err)
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "could not stage upload"})
	}

	job := queue.IngestJob{
		JobID:          jobID,
		WorkspaceID:    up.WorkspaceID,
		CollectionID:   up.CollectionID,
		CollectionName: up.CollectionName,
		SourceDocID:    up.Filename,
		Bucket:         app.Bucket,
		ObjectKey:      key,
		Metadata:       up.Meta,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return errorJSON(c, "create job", err)
	}
	if err := queue.PublishFIFO(ctx, app.Queue, queue.IngestQueue, body); err != nil {
		logger.Error("[Server] Failed to queue ingest job", "job_id", jobID, "err", err)
		_ = storage.DeleteFile(ctx, app.S3, app.Bucket, key)
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "could not queue job"})
	}

	logger.Info("[Server] Ingest job queued", "job_id", jobID, "key", key)
	return c.JSON(http.StatusAccepted, createJobResponse{
		JobID:        jobID,
		Status:       "queued",
		WorkspaceID:  up.WorkspaceID,
		CollectionID: up.CollectionID,
		SourceDocID:  up.Filename,
	})
}

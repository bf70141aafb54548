package routes

import (
	"net/http"

	"github.com/kgrag/backend/internal/server/middleware"
	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/graph"
	"github.com/kgrag/backend/pkg/loader"
	"github.com/kgrag/backend/pkg/loader/auto"

	"github.com/labstack/echo/v4"
)

// UploadHandler ingests an uploaded file synchronously. The filename is the
// source document id, so uploading the same name again updates the document.
func UploadHandler(c echo.Context) error {
	type uploadResponse struct {
		Status       string `json:"status"`
		WorkspaceID  string `json:"workspace_id"`
		CollectionID string `json:"collection_id"`
		*common.IngestStats
	}

	up, err := readUpload(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	file, err := auto.NewGraphFile(up.Filename, up.Filename, loader.BytesLoader(up.Content))
	if err != nil {
		return errorJSON(c, "upload", err)
	}
	ctx := c.Request().Context()
	text, err := file.GetText(ctx)
	if err != nil {
		return errorJSON(c, "upload", common.ValidationError("upload", "could not extract text from %s: %v", up.Filename, err))
	}

	app := c.(*middleware.AppContext).App
	stats, err := app.Ingest.IngestDocument(ctx, graph.IngestParams{
		Text:           string(text),
		WorkspaceID:    up.WorkspaceID,
		CollectionID:   up.CollectionID,
		CollectionName: up.CollectionName,
		SourceDocID:    up.Filename,
		Metadata:       up.Meta,
	})
	if err != nil {
		return partialJSON(c, "ingest", err, stats)
	}

	return c.JSON(http.StatusOK, uploadResponse{
		Status:       "success",
		WorkspaceID:  up.WorkspaceID,
		CollectionID: up.CollectionID,
		IngestStats:  stats,
	})
}

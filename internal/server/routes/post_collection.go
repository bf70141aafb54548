package routes

import (
	"net/http"

	"github.com/kgrag/backend/internal/server/middleware"
	"github.com/kgrag/backend/pkg/common"

	"github.com/labstack/echo/v4"
)

// CreateCollectionHandler creates a workspace and collection from form data.
// Repeating the call renames the collection.
func CreateCollectionHandler(c echo.Context) error {
	type createCollectionBody struct {
		WorkspaceID    string `form:"workspace_id" validate:"required"`
		CollectionID   string `form:"collection_id" validate:"required"`
		CollectionName string `form:"collection_name" validate:"required"`
	}

	type createCollectionResponse struct {
		Status         string `json:"status"`
		WorkspaceID    string `json:"workspace_id"`
		CollectionID   string `json:"collection_id"`
		CollectionName string `json:"collection_name"`
	}

	data := new(createCollectionBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "workspace_id, collection_id and collection_name are required")
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	if err := app.Store.UpsertWorkspace(ctx, common.Workspace{ID: data.WorkspaceID}); err != nil {
		return errorJSON(c, "create workspace", err)
	}
	err := app.Store.UpsertCollection(ctx, common.Collection{
		WorkspaceID: data.WorkspaceID,
		ID:          data.CollectionID,
		Name:        data.CollectionName,
	})
	if err != nil {
		return errorJSON(c, "create collection", err)
	}

	return c.JSON(http.StatusOK, createCollectionResponse{
		Status:         "success",
		WorkspaceID:    data.WorkspaceID,
		CollectionID:   data.CollectionID,
		CollectionName: data.CollectionName,
	})
}

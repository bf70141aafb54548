package routes

import (
	"fmt"
	"net/http"

	"github.com/kgrag/backend/internal/server/middleware"
	"github.com/kgrag/backend/pkg/query"

	"github.com/labstack/echo/v4"
)

type ragParams struct {
	Query        string `query:"query" validate:"required"`
	WorkspaceID  string `query:"workspace_id" validate:"required"`
	CollectionID string `query:"collection_id" validate:"required"`
}

// AnswerHandler runs the full retrieval pipeline for one question.
func AnswerHandler(c echo.Context) error {
	params := new(ragParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c, "query, workspace_id and collection_id are required")
	}

	app := c.(*middleware.AppContext).App
	res, err := app.Query.Answer(c.Request().Context(), params.Query, params.WorkspaceID, params.CollectionID)
	if err != nil {
		return errorJSON(c, "answer", err)
	}
	return c.JSON(http.StatusOK, res)
}

// SearchHandler returns reranked chunks without generating an answer.
func SearchHandler(c echo.Context) error {
	type searchParams struct {
		ragParams
		Limit int `query:"limit"`
	}

	params := new(searchParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c, "query, workspace_id and collection_id are required")
	}
	if c.QueryParam("limit") != "" && params.Limit == 0 {
		return badRequest(c, fmt.Sprintf("limit must be between 1 and %d", query.MaxSearchLimit))
	}

	app := c.(*middleware.AppContext).App
	res, err := app.Query.Search(c.Request().Context(), params.Query, params.WorkspaceID, params.CollectionID, params.Limit)
	if err != nil {
		return errorJSON(c, "search", err)
	}
	return c.JSON(http.StatusOK, res)
}

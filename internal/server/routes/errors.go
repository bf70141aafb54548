package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/loader"
	"github.com/kgrag/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error string `json:"error"`
	// Stats is set when an ingestion stopped after writing part of the
	// document.
	Stats *common.IngestStats `json:"stats,omitempty"`
}

// errorStatus maps a classified error to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, loader.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, common.ErrStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func errorJSON(c echo.Context, op string, err error) error {
	return partialJSON(c, op, err, nil)
}

// partialJSON is errorJSON carrying the stats of a cut-short ingestion.
func partialJSON(c echo.Context, op string, err error, stats *common.IngestStats) error {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("[Server] Request failed", "op", op, "status", status, "err", err)
	}
	return c.JSON(status, errorResponse{Error: err.Error(), Stats: stats})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

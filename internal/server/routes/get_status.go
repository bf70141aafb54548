package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func GetStatusHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Graph RAG API",
		"status":  "running",
	})
}

func GetHealthHandler(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

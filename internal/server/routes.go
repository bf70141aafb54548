package server

import (
	"github.com/kgrag/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	e.GET("/", routes.GetStatusHandler)
	e.GET("/health", routes.GetHealthHandler)

	ingest := e.Group("/ingest")
	ingest.POST("/collection", routes.CreateCollectionHandler)
	ingest.POST("/upload", routes.UploadHandler)
	ingest.POST("/jobs", routes.CreateIngestJobHandler)

	rag := e.Group("/rag")
	rag.GET("/answer", routes.AnswerHandler)
	rag.GET("/search", routes.SearchHandler)
}

package middleware

import (
	"context"

	"github.com/kgrag/backend/internal/queue"
	"github.com/kgrag/backend/internal/storage"
	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/graph"
	"github.com/kgrag/backend/pkg/query"
	"github.com/kgrag/backend/pkg/store"

	"github.com/labstack/echo/v4"
)

// Ingester is implemented by *graph.GraphClient.
type Ingester interface {
	IngestDocument(ctx context.Context, params graph.IngestParams) (*common.IngestStats, error)
}

// Retriever is implemented by *query.Client.
type Retriever interface {
	Answer(ctx context.Context, question, workspaceID, collectionID string) (*query.AnswerResult, error)
	Search(ctx context.Context, question, workspaceID, collectionID string, limit int) (*query.SearchResult, error)
}

// App holds the dependencies shared by all handlers. Queue and S3 are nil
// when asynchronous jobs are disabled.
type App struct {
	Store  store.GraphStorage
	Ingest Ingester
	Query  Retriever

	Queue  queue.Publisher
	S3     storage.ObjectStore
	Bucket string
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{c, app})
		}
	}
}

package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kgrag/backend/internal/config"
	"github.com/kgrag/backend/internal/queue"
	mid "github.com/kgrag/backend/internal/server/middleware"
	"github.com/kgrag/backend/internal/storage"
	"github.com/kgrag/backend/pkg/logger"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	return cv.validator.Struct(i)
}

// New builds the HTTP server around app. origins are the allowed CORS
// origins.
func New(app *mid.App, origins []string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowCredentials: true,
	}))
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64M"))

	RegisterRoutes(e)
	return e
}

// Init wires all dependencies from the environment and serves until
// SIGINT or SIGTERM.
func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	aiClient, err := config.NewAIClient(cfg)
	if err != nil {
		logger.Fatal("Failed to create AI client", "err", err)
	}
	graphStore, _, err := config.NewGraphStorage(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open graph store", "adapter", cfg.StoreAdapter, "err", err)
	}
	defer graphStore.Close()

	ingest, err := config.NewGraphClient(cfg, aiClient, graphStore)
	if err != nil {
		logger.Fatal("Failed to create graph client", "err", err)
	}

	app := &mid.App{
		Store:  graphStore,
		Ingest: ingest,
		Query:  config.NewQueryClient(cfg, aiClient, graphStore),
	}

	if cfg.JobsEnabled {
		conn, err := queue.Init()
		if err != nil {
			logger.Fatal("Failed to connect to queue", "err", err)
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		if err := queue.SetupQueues(ch, []string{queue.IngestQueue}); err != nil {
			logger.Fatal("Failed to set up queues", "err", err)
		}
		s3Client, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		app.Queue = ch
		app.S3 = s3Client
		app.Bucket = storage.Bucket()
	}

	e := New(app, cfg.CORSOrigins)

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "store", cfg.StoreAdapter, "ai", cfg.AIAdapter, "jobs", cfg.JobsEnabled)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

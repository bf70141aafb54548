package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kgrag/backend/internal/config"
	"github.com/kgrag/backend/internal/queue"
	"github.com/kgrag/backend/internal/storage"
	"github.com/kgrag/backend/internal/util"
	"github.com/kgrag/backend/pkg/leaselock"
	"github.com/kgrag/backend/pkg/logger"
	"github.com/kgrag/backend/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		JSON:   util.GetEnvBool("LOG_JSON", false),
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	cfg := config.Load()
	if cfg.StoreAdapter != "pgx" {
		logger.Fatal("The worker needs STORE_ADAPTER=pgx", "adapter", cfg.StoreAdapter)
	}

	s3Client, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}

	aiClient, err := config.NewAIClient(cfg)
	if err != nil {
		logger.Fatal("Failed to create AI client", "err", err)
	}

	graphStore, pool, err := config.NewGraphStorage(ctx, cfg)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer graphStore.Close()

	ingest, err := config.NewGraphClient(cfg, aiClient, graphStore)
	if err != nil {
		logger.Fatal("Failed to create graph client", "err", err)
	}

	conn, err := queue.Init()
	if err != nil {
		logger.Fatal("Failed to connect to queue", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.IngestQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	// One message at a time; chunk level parallelism happens inside the
	// graph client.
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	hostname, _ := os.Hostname()
	processor := &queue.Processor{
		Objects: s3Client,
		Graph:   ingest,
		Locks:   leaselock.New(pool),
		Events:  ch,
		Owner:   hostname + ":",
	}

	msgs, err := ch.ConsumeWithContext(ctx, queue.IngestQueue, "ingest_consumer", false, false, false, false, nil)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.IngestQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.IngestQueue)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.IngestQueue)
				return
			}
			startTime := time.Now()
			logger.Info("Received message", "queue", queue.IngestQueue)

			if _, err := processor.ProcessIngestMessage(ctx, msg.Body); err != nil {
				logger.Error("Error processing message", "queue", queue.IngestQueue, "permanent", queue.IsPermanent(err), "err", err)
				queue.HandleProcessingError(context.WithoutCancel(ctx), ch, msg, queue.IngestQueue, err)
			} else if err := msg.Ack(false); err != nil {
				logger.Error("Failed to ack message", "err", err)
			}

			metrics := aiClient.GetMetrics()
			logger.Info(
				"AI Metrics",
				"input_tokens", metrics.InputTokens,
				"output_tokens", metrics.OutputTokens,
				"embedding_tokens", metrics.EmbeddingTokens,
				"duration", formatDuration(time.Duration(metrics.DurationMs)*time.Millisecond),
			)
			logger.Info("Processing time", "duration", formatDuration(time.Since(startTime)))
			aiClient.ResetMetrics()
		}
	}
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

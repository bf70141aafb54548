package main

import (
	"github.com/kgrag/backend/internal/server"
	"github.com/kgrag/backend/internal/util"
	"github.com/kgrag/backend/pkg/logger"
	"github.com/kgrag/backend/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		JSON:   util.GetEnvBool("LOG_JSON", false),
		Prefix: "server",
	})
	logger.Init(consoleLogger)

	server.Init()
}

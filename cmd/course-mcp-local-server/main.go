package main

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/course-mcp/internal/config"
	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/server"
)

func main() {
	// Initialize logger with default configuration
	log, err := logger.NewLogger(logger.LogConfig{})
	if err != nil {
		// Fall back to stderr if logger initialization fails
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: %v", err)
	}

	log.Info("Starting course-mcp server")

	deps, cleanup, err := server.NewDeps(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize: %v", err)
	}
	defer cleanup()

	srv := server.CreateServer(deps, cfg, log)
	if err := srv.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Error("Server failed: %v", err)
	}
}

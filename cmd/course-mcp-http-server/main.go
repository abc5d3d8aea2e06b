package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/course-mcp/internal/api"
	"github.com/Epistemic-Technology/course-mcp/internal/config"
	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/server"
)

func main() {
	output := os.Getenv("LOG_OUTPUT")
	if output == "" {
		output = "stderr"
	}
	log, err := logger.NewLogger(logger.LogConfig{Output: output})
	if err != nil {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: %v", err)
	}

	deps, cleanup, err := server.NewDeps(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize: %v", err)
	}
	defer cleanup()

	mcpServer := server.CreateServer(deps, cfg, log.Named("mcp"))
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, &mcp.StreamableHTTPOptions{Stateless: true})

	handler := api.New(deps, api.Options{
		Extract:     server.ExtractOptions(cfg),
		CORSOrigins: cfg.CORSOrigins,
		MCP:         mcpHandler,
		Version:     server.Version,
	}, log.Named("http"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Shutdown: %v", err)
		}
	}()

	log.Info("course-mcp listening on %s (max concurrent extractions: %d)", cfg.HTTPAddr, cfg.MaxConcurrentExtractions)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Server failed: %v", err)
	}
}

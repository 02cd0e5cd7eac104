package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/agentic-rag/internal/adapters/mcp"
	"github.com/kirillkom/agentic-rag/internal/bootstrap"
	"github.com/kirillkom/agentic-rag/internal/config"
	"github.com/kirillkom/agentic-rag/internal/observability/logging"
)

const (
	serviceName = "mcp"
	version     = "1.0.0"
)

// stdout carries the MCP protocol, so logs go to stderr.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewStderrJSONLogger(serviceName, cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{Service: serviceName})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer("agentic-rag", version, app.AnswerUC)
	if err := server.ServeStdio(s); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}

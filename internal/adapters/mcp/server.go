package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/agentic-rag/internal/core/ports"
)

const askToolName = "ask_question"

// NewServer exposes answer_question as the MCP tool ask_question.
func NewServer(name, version string, answerer ports.QuestionAnswerer) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	s.AddTool(askTool(), askHandler(answerer))
	return s
}

func askTool() mcp.Tool {
	return mcp.NewTool(askToolName,
		mcp.WithDescription("Answer a question from the indexed document collection. "+
			"Returns the answer, the query variant used, cited sources and the fallback flag."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Natural-language question"),
		),
	)
}

func askHandler(answerer ports.QuestionAnswerer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := answerer.Answer(ctx, question)
		if err != nil {
			slog.ErrorContext(ctx, "mcp_ask_failed", "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}

		payload, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

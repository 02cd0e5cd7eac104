package agents

import (
	"context"
	"strings"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
	"github.com/kirillkom/agentic-rag/internal/core/ports"
)

type Generator struct {
	chat        ports.ChatCompleter
	system      string
	temperature float32
	maxTokens   int
}

func NewGenerator(chat ports.ChatCompleter, prompts Prompts, temperature float32, maxTokens int) *Generator {
	return &Generator{chat: chat, system: prompts.Generator.System, temperature: temperature, maxTokens: maxTokens}
}

// Generate answers from the context only; the context travels as an assistant turn.
func (g *Generator) Generate(ctx context.Context, question, contextText string) (string, error) {
	answer, err := g.chat.Complete(ctx, domain.ChatRequest{
		Operation: "generate",
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: g.system},
			{Role: domain.RoleAssistant, Content: "Context:\n" + contextText},
			{Role: domain.RoleUser, Content: question},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
	"github.com/kirillkom/agentic-rag/internal/core/ports"
)

// Expander rewrites a question into search-friendly statements.
type Expander struct {
	chat        ports.ChatCompleter
	prompts     PromptPair
	count       int
	temperature float32
}

func NewExpander(chat ports.ChatCompleter, prompts Prompts, count int, temperature float32) *Expander {
	if count <= 0 {
		count = 3
	}
	return &Expander{chat: chat, prompts: prompts.Expander, count: count, temperature: temperature}
}

const variantKeyPrefix = "expanded_query_"

// Expand returns the original query followed by exactly count variants.
func (e *Expander) Expand(ctx context.Context, original string) ([]string, error) {
	user, err := render("expander", e.prompts.User, map[string]any{
		"Question": original,
		"Count":    e.count,
		"Keys":     variantKeyList(e.count),
	})
	if err != nil {
		return nil, err
	}

	raw, err := e.chat.Complete(ctx, domain.ChatRequest{
		Operation: "expand",
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: e.prompts.System},
			{Role: domain.RoleUser, Content: user},
		},
		Temperature: e.temperature,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}

	variants, err := parseVariants(raw, e.count)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaborator, "parse expansion", err)
	}

	out := make([]string, 0, e.count+1)
	out = append(out, original)
	return append(out, variants...), nil
}

// parseVariants reads expanded_query_1..count. Every key must hold a non-empty
// string and no key past count may appear.
func parseVariants(raw string, count int) ([]string, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return nil, fmt.Errorf("decode variants json: %w", err)
	}

	variants := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		key := variantKey(i)
		value, ok := payload[key]
		if !ok {
			return nil, fmt.Errorf("missing key %s", key)
		}
		var text string
		if err := json.Unmarshal(value, &text); err != nil {
			return nil, fmt.Errorf("key %s is not a string: %w", key, err)
		}
		text = strings.Trim(strings.TrimSpace(text), `"`)
		if text == "" {
			return nil, fmt.Errorf("key %s is empty", key)
		}
		variants = append(variants, text)
	}
	if _, ok := payload[variantKey(count+1)]; ok {
		return nil, fmt.Errorf("expected %d variants, got more", count)
	}
	return variants, nil
}

func variantKey(i int) string {
	return variantKeyPrefix + strconv.Itoa(i)
}

func variantKeyList(count int) string {
	keys := make([]string, count)
	for i := range keys {
		keys[i] = `"` + variantKey(i+1) + `"`
	}
	return strings.Join(keys, ", ")
}

package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
	"github.com/kirillkom/agentic-rag/internal/core/ports"
)

type Verifier struct {
	chat        ports.ChatCompleter
	prompts     PromptPair
	temperature float32
}

func NewVerifier(chat ports.ChatCompleter, prompts Prompts, temperature float32) *Verifier {
	return &Verifier{chat: chat, prompts: prompts.Verifier, temperature: temperature}
}

func (v *Verifier) Verify(ctx context.Context, question, answer string) (domain.VerificationVerdict, error) {
	user, err := render("verifier", v.prompts.User, map[string]any{
		"Question": question,
		"Answer":   answer,
	})
	if err != nil {
		return domain.VerificationVerdict{}, err
	}

	raw, err := v.chat.Complete(ctx, domain.ChatRequest{
		Operation: "verify",
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: v.prompts.System},
			{Role: domain.RoleUser, Content: user},
		},
		Temperature: v.temperature,
		JSON:        true,
	})
	if err != nil {
		return domain.VerificationVerdict{}, err
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		return domain.VerificationVerdict{}, domain.WrapError(domain.ErrCollaborator, "parse verdict", err)
	}
	return verdict, nil
}

// parseVerdict requires is_valid; the remaining fields are advisory and tolerate loose typing.
func parseVerdict(raw string) (domain.VerificationVerdict, error) {
	var payload struct {
		IsValid         *bool           `json:"is_valid"`
		ConfidenceScore float64         `json:"confidence_score"`
		Reasoning       string          `json:"reasoning"`
		Concerns        json.RawMessage `json:"concerns"`
		Recommendation  string          `json:"recommendation"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return domain.VerificationVerdict{}, fmt.Errorf("decode verdict json: %w", err)
	}
	if payload.IsValid == nil {
		return domain.VerificationVerdict{}, fmt.Errorf("verdict is missing is_valid")
	}

	return domain.VerificationVerdict{
		IsValid:         *payload.IsValid,
		ConfidenceScore: min(max(payload.ConfidenceScore, 0), 1),
		Reasoning:       strings.TrimSpace(payload.Reasoning),
		Concerns:        flattenConcerns(payload.Concerns),
		Recommendation:  normalizeRecommendation(payload.Recommendation),
	}, nil
}

func flattenConcerns(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

func normalizeRecommendation(raw string) domain.Recommendation {
	switch rec := domain.Recommendation(strings.ToLower(strings.TrimSpace(raw))); rec {
	case domain.RecommendationAccept, domain.RecommendationReject, domain.RecommendationClarify:
		return rec
	default:
		return ""
	}
}

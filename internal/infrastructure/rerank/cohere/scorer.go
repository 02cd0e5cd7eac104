package cohere

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cohereapi "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	coherecore "github.com/cohere-ai/cohere-go/v2/core"

	"github.com/kirillkom/agentic-rag/internal/infrastructure/resilience"
)

const defaultModel = "rerank-v3.5"

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Scorer uses the hosted Cohere rerank endpoint.
type Scorer struct {
	client   *cohereclient.Client
	model    string
	executor *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Scorer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	opts := []coherecore.RequestOption{
		cohereclient.WithToken(cfg.APIKey),
		cohereclient.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, cohereclient.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Scorer{
		client:   cohereclient.NewClient(opts...),
		model:    model,
		executor: executor,
	}
}

func (s *Scorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}

	topN := len(passages)
	req := &cohereapi.V2RerankRequest{
		Model:     s.model,
		Query:     query,
		Documents: passages,
		TopN:      &topN,
	}
	resp, err := resilience.Do(ctx, s.executor, "cohere.rerank", func(callCtx context.Context) (*cohereapi.V2RerankResponse, error) {
		return s.client.V2.Rerank(callCtx, req)
	}, classifyCohereError)
	if err != nil {
		return nil, resilience.WrapTemporary("cohere rerank", fmt.Errorf("cohere rerank: %w", err), classifyCohereError)
	}

	scores := make([]float64, len(passages))
	seen := 0
	for _, result := range resp.Results {
		if result == nil || result.Index < 0 || result.Index >= len(scores) {
			return nil, fmt.Errorf("cohere rerank returned an invalid result")
		}
		scores[result.Index] = result.RelevanceScore
		seen++
	}
	if seen != len(passages) {
		return nil, fmt.Errorf("cohere rerank returned %d scores for %d passages", seen, len(passages))
	}
	return scores, nil
}

func classifyCohereError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var apiErr *coherecore.APIError
	if errors.As(err, &apiErr) {
		return resilience.ClassifyHTTPStatus(apiErr.StatusCode)
	}
	return resilience.Permanent
}

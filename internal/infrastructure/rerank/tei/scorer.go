package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/agentic-rag/internal/infrastructure/resilience"
)

// Scorer calls a cross-encoder served by text-embeddings-inference (POST /rerank).
type Scorer struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, timeout time.Duration, executor *resilience.Executor) *Scorer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Scorer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type rerankRequest struct {
	Query    string   `json:"query"`
	Texts    []string `json:"texts"`
	Truncate bool     `json:"truncate"`
}

type rerankItem struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns sigmoid-normalized relevance scores aligned with passages.
func (s *Scorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}

	payload := rerankRequest{Query: query, Texts: passages, Truncate: true}
	items, err := resilience.Do(ctx, s.executor, "tei.rerank", func(callCtx context.Context) ([]rerankItem, error) {
		var out []rerankItem
		if err := s.postJSON(callCtx, "/rerank", payload, &out); err != nil {
			return nil, err
		}
		return out, nil
	}, classifyTEIError)
	if err != nil {
		return nil, resilience.WrapTemporary("tei rerank", err, classifyTEIError)
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, item := range items {
		if item.Index < 0 || item.Index >= len(scores) || seen[item.Index] {
			return nil, fmt.Errorf("tei rerank returned invalid index %d", item.Index)
		}
		scores[item.Index] = item.Score
		seen[item.Index] = true
	}
	if len(items) != len(passages) {
		return nil, fmt.Errorf("tei rerank returned %d scores for %d passages", len(items), len(passages))
	}
	return scores, nil
}

func (s *Scorer) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tei rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode rerank response: %w", err)
	}
	return nil
}

type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("tei rerank status: %s", e.Status)
	}
	return fmt.Sprintf("tei rerank status: %s: %s", e.Status, strings.TrimSpace(e.Body))
}

func classifyTEIError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ClassifyHTTPStatus(statusErr.StatusCode)
	}
	return resilience.Permanent
}

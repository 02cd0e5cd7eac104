package openai

import (
	"context"
	"fmt"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/resilience"
)

type EmbedderConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

type Embedder struct {
	api        *goopenai.Client
	model      goopenai.EmbeddingModel
	dimensions int
	executor   *resilience.Executor
}

func NewEmbedder(cfg EmbedderConfig, executor *resilience.Executor) *Embedder {
	clientCfg := clientConfig(Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	})
	return &Embedder{
		api:        goopenai.NewClientWithConfig(clientCfg),
		model:      goopenai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		executor:   executor,
	}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := goopenai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: goopenai.EmbeddingEncodingFormatFloat,
	}
	resp, err := resilience.Do(ctx, e.executor, "openai.embed", func(callCtx context.Context) (goopenai.EmbeddingResponse, error) {
		return e.api.CreateEmbeddings(callCtx, req)
	}, classifyOpenAIError)
	if err != nil {
		return nil, resilience.WrapTemporary("openai.embed", describeAPIError("embedding", err), classifyOpenAIError)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	seen := make([]bool, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		if seen[item.Index] {
			return nil, fmt.Errorf("embedding returned duplicate index %d", item.Index)
		}
		seen[item.Index] = true
		if e.dimensions > 0 && len(item.Embedding) != e.dimensions {
			return nil, domain.WrapError(domain.ErrConfiguration, "embed",
				fmt.Errorf("model %s returned %d dimensions, expected %d", e.model, len(item.Embedding), e.dimensions))
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

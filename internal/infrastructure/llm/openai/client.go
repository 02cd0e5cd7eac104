package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/resilience"
)

const (
	APITypeOpenAI = "openai"
	APITypeAzure  = "azure"
)

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	APIType    string
	APIVersion string
	Timeout    time.Duration
}

// Client is a chat-completion client for any OpenAI-compatible endpoint
// (OpenAI, Azure OpenAI, vLLM, Ollama's /v1).
type Client struct {
	api      *goopenai.Client
	model    string
	executor *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	return &Client{
		api:      goopenai.NewClientWithConfig(clientConfig(cfg)),
		model:    cfg.Model,
		executor: executor,
	}
}

func clientConfig(cfg Config) goopenai.ClientConfig {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	var clientCfg goopenai.ClientConfig
	if strings.EqualFold(cfg.APIType, APITypeAzure) {
		clientCfg = goopenai.DefaultAzureConfig(cfg.APIKey, baseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		// Deployment names are used verbatim.
		clientCfg.AzureModelMapperFunc = func(model string) string { return model }
	} else {
		clientCfg = goopenai.DefaultConfig(cfg.APIKey)
		if baseURL != "" {
			clientCfg.BaseURL = baseURL
		}
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return clientCfg
}

func (c *Client) Complete(ctx context.Context, req domain.ChatRequest) (string, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	payload := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		payload.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	operation := "openai.chat"
	if req.Operation != "" {
		operation += "." + req.Operation
	}

	resp, err := resilience.Do(ctx, c.executor, operation, func(callCtx context.Context) (goopenai.ChatCompletionResponse, error) {
		return c.api.CreateChatCompletion(callCtx, payload)
	}, classifyOpenAIError)
	if err != nil {
		return "", resilience.WrapTemporary(operation, describeAPIError("chat completion", err), classifyOpenAIError)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

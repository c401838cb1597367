// Package openai adapts the OpenAI Go SDK into this module's llm.Provider
// contract, so the orchestration pipeline's LLM-backed components (router,
// planner, decomposer, synthesizer, critic, compactor) can run against a
// real chat-completions backend.
package openai

import (
	"context"
	"net/http"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"ragorch/internal/config"
	"ragorch/internal/llm"
	"ragorch/internal/observability"
)

// Client adapts sdk.Client to llm.Provider.
type Client struct {
	sdk   sdk.Client
	model string
}

// New builds a Client from cfg. The HTTP client is instrumented the same
// way every other outbound capability client in this module is
// (observability.NewHTTPClient), so LLM calls get the same otelhttp tracing
// as retrieval/web/embedding requests.
func New(cfg config.LLMConfig) *Client {
	httpClient := observability.NewHTTPClient(&http.Client{Timeout: 120 * time.Second})
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithHTTPClient(httpClient)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: cfg.LargeModel}
}

// Chat issues a single non-streaming chat completion. maxTokens <= 0
// leaves the provider's own default output cap in place.
func (c *Client) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, maxTokens int) (llm.Message, error) {
	log := observability.LoggerWithTrace(ctx)
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(firstNonEmpty(model, c.model)),
		Messages: adaptMessages(msgs),
	}
	if len(tools) > 0 {
		params.Tools = adaptSchemas(tools)
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))
	}

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Dur("duration", time.Since(start)).Msg("chat_completion_error")
		return llm.Message{}, err
	}
	log.Debug().Str("model", string(params.Model)).Dur("duration", time.Since(start)).
		Int("prompt_tokens", int(comp.Usage.PromptTokens)).
		Int("completion_tokens", int(comp.Usage.CompletionTokens)).
		Msg("chat_completion_ok")

	if len(comp.Choices) == 0 {
		return llm.Message{}, nil
	}
	return llm.Message{Role: "assistant", Content: comp.Choices[0].Message.Content}, nil
}

// ChatStream issues a streaming chat completion, forwarding content deltas
// to h as they arrive. maxTokens <= 0 leaves the provider's own default
// output cap in place.
func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, maxTokens int, h llm.StreamHandler) error {
	log := observability.LoggerWithTrace(ctx)
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(firstNonEmpty(model, c.model)),
		Messages: adaptMessages(msgs),
	}
	if len(tools) > 0 {
		params.Tools = adaptSchemas(tools)
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))
	}

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" && h != nil {
			h.OnDelta(delta)
		}
	}
	if err := stream.Err(); err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Msg("chat_stream_error")
		return err
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

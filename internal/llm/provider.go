package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"ragorch/internal/orcerr"
)

type ToolCall struct {
	Name string
	Args json.RawMessage
	ID   string
	// ThoughtSignature carries provider-specific context (Gemini 3) that must be
	// echoed back on subsequent turns to keep function calling valid.
	//
	// IMPORTANT: this value is treated as opaque bytes by Gemini. We store it as a
	// base64-encoded string so it can safely round-trip through JSON, DB storage,
	// logging, and summarization without UTF-8 corruption.
	ThoughtSignature string
}

// GeneratedImage represents an image payload returned by the model.
// Data holds the raw bytes (already decoded from base64), and MIMEType
// should be a valid image MIME like image/png or image/jpeg.
type GeneratedImage struct {
	Data     []byte
	MIMEType string
}

type Message struct {
	Role    string // "system" | "user" | "assistant" | "tool"
	Content string
	ToolID  string
	// ToolCalls are only set on assistant messages
	ToolCalls []ToolCall
	// Images captures inline image payloads returned by the provider.
	Images []GeneratedImage
	// Compaction carries responses API compaction state when available.
	Compaction *CompactionItem
	// ThoughtSignature carries provider-specific thought signatures (Gemini 3)
	// for text/thought parts that must be echoed back on subsequent turns.
	// Like ToolCall.ThoughtSignature, stored as base64 to survive JSON round-trips.
	ThoughtSignature string
}

type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type StreamHandler interface {
	OnDelta(content string)
	OnToolCall(tc ToolCall)
	OnImage(img GeneratedImage)
	// OnThoughtSummary receives model reasoning summaries when available.
	OnThoughtSummary(summary string)
}

// Provider is the capability every LLM-backed pipeline stage ultimately
// calls through. maxTokens bounds the model's output length for the
// call; <= 0 means unbounded (the provider's own default).
type Provider interface {
	Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string, maxTokens int) (Message, error)
	ChatStream(ctx context.Context, msgs []Message, tools []ToolSchema, model string, maxTokens int, h StreamHandler) error
}

// LLMClient is the capability every structured-output pipeline stage
// (router, planner, decomposer, synthesizer, critic, compactor) depends
// on. It wraps a Provider with schema-validated JSON completions so each
// call site gets a typed Go value back instead of hand-rolled unmarshal
// code.
type LLMClient interface {
	Provider

	// Complete asks model to produce JSON conforming to schema (derived
	// from a pointer to a zero value of the target type via
	// SchemaFor) and unmarshals the response into out, which must be a
	// pointer. maxTokens bounds the response the same way it does for
	// Chat/ChatStream; <= 0 means unbounded. Returns an
	// orcerr.Synthesis-wrapped error if the model's output does not
	// parse as JSON or fails to unmarshal into out.
	Complete(ctx context.Context, msgs []Message, model string, maxTokens int, schema *jsonschema.Schema, out any) error
}

// ProviderLLMClient adapts any Provider into an LLMClient by appending a
// schema-describing system instruction and parsing the resulting message
// content as JSON. Providers with native structured-output support can
// implement LLMClient directly instead of going through this adapter.
type ProviderLLMClient struct {
	Provider
}

// NewLLMClient wraps p as an LLMClient using the generic JSON-in-prompt
// strategy.
func NewLLMClient(p Provider) *ProviderLLMClient {
	return &ProviderLLMClient{Provider: p}
}

func (c *ProviderLLMClient) Complete(ctx context.Context, msgs []Message, model string, maxTokens int, schema *jsonschema.Schema, out any) error {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("%w: marshal schema: %v", orcerr.Synthesis, err)
	}
	instructed := append([]Message{}, msgs...)
	instructed = append(instructed, Message{
		Role:    "system",
		Content: "Respond with JSON only, matching this schema exactly: " + string(schemaJSON),
	})
	resp, err := c.Chat(ctx, instructed, nil, model, maxTokens)
	if err != nil {
		return fmt.Errorf("%w: %v", orcerr.Synthesis, err)
	}
	content := extractJSON(resp.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%w: unmarshal structured output: %v", orcerr.Synthesis, err)
	}
	return nil
}

// SchemaFor derives a jsonschema.Schema from the zero value of T, caching
// nothing — reflection is cheap relative to the network round trip it
// precedes.
func SchemaFor[T any]() *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true}
	var zero T
	return r.Reflect(&zero)
}

// extractJSON strips a leading/trailing markdown code fence some models
// wrap JSON responses in, since not every provider honors "JSON only".
func extractJSON(s string) string {
	start := -1
	for i, r := range s {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return s
	}
	end := -1
	for i := len(s) - 1; i >= start; i-- {
		if s[i] == '}' || s[i] == ']' {
			end = i
			break
		}
	}
	if end < start {
		return s
	}
	return s[start : end+1]
}

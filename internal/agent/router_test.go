package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/invopop/jsonschema"

	"ragorch/internal/config"
	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

type stubRouteLLM struct {
	out routeOutput
	err error
}

func (s *stubRouteLLM) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, maxTokens int) (llm.Message, error) {
	return llm.Message{}, nil
}

func (s *stubRouteLLM) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, maxTokens int, h llm.StreamHandler) error {
	return nil
}

func (s *stubRouteLLM) Complete(ctx context.Context, msgs []llm.Message, model string, maxTokens int, schema *jsonschema.Schema, out any) error {
	if s.err != nil {
		return s.err
	}
	raw, _ := json.Marshal(s.out)
	return json.Unmarshal(raw, out)
}

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{SmallModel: "small", LargeModel: "large"}
}

func testRouterConfig() config.RouterConfig {
	return config.RouterConfig{
		FAQMaxTokens:            500,
		ResearchMaxTokens:       2000,
		FactualLookupMaxTokens:  600,
		ConversationalMaxTokens: 400,
	}
}

func TestRouter_ClassifiesKnownIntent(t *testing.T) {
	r := NewRouter(&stubRouteLLM{out: routeOutput{Intent: "faq", Confidence: 0.9, Reasoning: "looks like a faq"}}, testLLMConfig(), testRouterConfig(), true)
	got := r.Route(context.Background(), []ragtypes.Message{{Role: "user", Content: "what are your hours?"}})
	if got.Intent != ragtypes.IntentFAQ {
		t.Fatalf("expected faq intent, got %v", got.Intent)
	}
	if got.RetrieverStrategy != ragtypes.StrategyVector || got.MaxTokens != 500 {
		t.Fatalf("unexpected routing decision: %+v", got)
	}
	if got.Model != "small" {
		t.Fatalf("expected small model for faq, got %q", got.Model)
	}
}

func TestRouter_ResearchIntentUsesLargeModel(t *testing.T) {
	r := NewRouter(&stubRouteLLM{out: routeOutput{Intent: "research", Confidence: 0.8}}, testLLMConfig(), testRouterConfig(), true)
	got := r.Route(context.Background(), []ragtypes.Message{{Role: "user", Content: "compare two papers"}})
	if got.Model != "large" {
		t.Fatalf("expected large model for research, got %q", got.Model)
	}
	if got.RetrieverStrategy != ragtypes.StrategyHybridWeb || got.MaxTokens != 2000 {
		t.Fatalf("unexpected routing decision: %+v", got)
	}
}

func TestRouter_DisabledFallsBackToResearch(t *testing.T) {
	r := NewRouter(&stubRouteLLM{out: routeOutput{Intent: "faq"}}, testLLMConfig(), testRouterConfig(), false)
	got := r.Route(context.Background(), []ragtypes.Message{{Role: "user", Content: "hi"}})
	if got.Intent != ragtypes.IntentResearch || got.Confidence != 0 {
		t.Fatalf("expected fallback to research/0 confidence, got %+v", got)
	}
}

func TestRouter_LLMErrorFallsBackToResearch(t *testing.T) {
	r := NewRouter(&stubRouteLLM{err: errors.New("boom")}, testLLMConfig(), testRouterConfig(), true)
	got := r.Route(context.Background(), []ragtypes.Message{{Role: "user", Content: "hi"}})
	if got.Intent != ragtypes.IntentResearch || got.RetrieverStrategy != ragtypes.StrategyHybridWeb {
		t.Fatalf("expected fallback on LLM error, got %+v", got)
	}
}

func TestRouter_UnrecognizedIntentFallsBack(t *testing.T) {
	r := NewRouter(&stubRouteLLM{out: routeOutput{Intent: "unknown_intent"}}, testLLMConfig(), testRouterConfig(), true)
	got := r.Route(context.Background(), []ragtypes.Message{{Role: "user", Content: "hi"}})
	if got.Intent != ragtypes.IntentResearch {
		t.Fatalf("expected fallback on unrecognized intent, got %+v", got)
	}
}

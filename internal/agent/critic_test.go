package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/invopop/jsonschema"

	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

type stubCritiqueLLM struct {
	out critiqueOutput
	err error
}

func (s *stubCritiqueLLM) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, maxTokens int) (llm.Message, error) {
	return llm.Message{}, nil
}

func (s *stubCritiqueLLM) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, maxTokens int, h llm.StreamHandler) error {
	return nil
}

func (s *stubCritiqueLLM) Complete(ctx context.Context, msgs []llm.Message, model string, maxTokens int, schema *jsonschema.Schema, out any) error {
	if s.err != nil {
		return s.err
	}
	raw, _ := json.Marshal(s.out)
	return json.Unmarshal(raw, out)
}

func TestCritic_AcceptsWhenGroundedAndAboveThreshold(t *testing.T) {
	c := NewCritic(&stubCritiqueLLM{out: critiqueOutput{Grounded: true, Coverage: 0.9}}, "small", 0.7)
	crit, err := c.Critique(context.Background(), "q", "ctx", "draft answer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crit.Action != ragtypes.CritiqueAccept {
		t.Fatalf("expected accept, got %+v", crit)
	}
}

func TestCritic_RevisesWhenBelowThreshold(t *testing.T) {
	c := NewCritic(&stubCritiqueLLM{out: critiqueOutput{Grounded: true, Coverage: 0.3, Issues: []string{"missing detail"}}}, "small", 0.7)
	crit, err := c.Critique(context.Background(), "q", "ctx", "draft answer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crit.Action != ragtypes.CritiqueRevise || len(crit.Issues) != 1 {
		t.Fatalf("expected revise with issues, got %+v", crit)
	}
}

func TestCritic_NoEvidenceAnswerAlwaysAccepted(t *testing.T) {
	c := NewCritic(&stubCritiqueLLM{err: errors.New("should not be called")}, "small", 0.7)
	crit, err := c.Critique(context.Background(), "q", "ctx", ragtypes.NoEvidenceAnswer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crit.Action != ragtypes.CritiqueAccept {
		t.Fatalf("expected accept for no-evidence answer, got %+v", crit)
	}
}

func TestCritic_LLMErrorDegradesToAccept(t *testing.T) {
	c := NewCritic(&stubCritiqueLLM{err: errors.New("boom")}, "small", 0.7)
	crit, err := c.Critique(context.Background(), "q", "ctx", "draft")
	if err == nil {
		t.Fatal("expected error to be surfaced")
	}
	if crit.Action != ragtypes.CritiqueAccept {
		t.Fatalf("expected accept-by-fallback despite error, got %+v", crit)
	}
}

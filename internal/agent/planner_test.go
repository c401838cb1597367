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

type stubPlanLLM struct {
	out planOutput
	err error
}

func (s *stubPlanLLM) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, maxTokens int) (llm.Message, error) {
	return llm.Message{}, nil
}

func (s *stubPlanLLM) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, maxTokens int, h llm.StreamHandler) error {
	return nil
}

func (s *stubPlanLLM) Complete(ctx context.Context, msgs []llm.Message, model string, maxTokens int, schema *jsonschema.Schema, out any) error {
	if s.err != nil {
		return s.err
	}
	raw, _ := json.Marshal(s.out)
	return json.Unmarshal(raw, out)
}

func TestPlanner_ReturnsStepsFromLLM(t *testing.T) {
	p := NewPlanner(&stubPlanLLM{out: planOutput{
		Confidence: 0.7,
		Steps: []planStepOutput{
			{Action: "vector_search", Query: "docs about X", K: 5},
			{Action: "answer"},
		},
	}}, "large")
	plan, err := p.Plan(context.Background(), "what is X?", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Confidence != 0.7 || len(plan.Steps) != 2 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if plan.Steps[0].Action != ragtypes.ActionVectorSearch || plan.Steps[0].K != 5 {
		t.Fatalf("unexpected first step: %+v", plan.Steps[0])
	}
}

func TestPlanner_EmptyStepsFallsBack(t *testing.T) {
	p := NewPlanner(&stubPlanLLM{out: planOutput{Confidence: 0.9}}, "large")
	plan, err := p.Plan(context.Background(), "what is X?", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Confidence != 0.9 || len(plan.Steps) != 1 || plan.Steps[0].Action != ragtypes.ActionAnswer {
		t.Fatalf("expected a single implicit answer step, got %+v", plan)
	}
}

func TestPlanner_LLMErrorFallsBack(t *testing.T) {
	p := NewPlanner(&stubPlanLLM{err: errors.New("boom")}, "large")
	plan, err := p.Plan(context.Background(), "what is X?", "")
	if err == nil {
		t.Fatal("expected error to be surfaced")
	}
	if plan.Confidence != 0 || len(plan.Steps) != 1 {
		t.Fatalf("expected fallback plan despite error, got %+v", plan)
	}
}

func TestPlanner_NilClientFallsBack(t *testing.T) {
	p := NewPlanner(nil, "large")
	plan, err := p.Plan(context.Background(), "what is X?", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].Query != "what is X?" {
		t.Fatalf("expected fallback plan echoing query, got %+v", plan)
	}
}

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/invopop/jsonschema"

	"ragorch/internal/config"
	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

type stubDecomposeLLM struct {
	out decomposeOutput
	err error
}

func (s *stubDecomposeLLM) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, maxTokens int) (llm.Message, error) {
	return llm.Message{}, nil
}

func (s *stubDecomposeLLM) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, maxTokens int, h llm.StreamHandler) error {
	return nil
}

func (s *stubDecomposeLLM) Complete(ctx context.Context, msgs []llm.Message, model string, maxTokens int, schema *jsonschema.Schema, out any) error {
	if s.err != nil {
		return s.err
	}
	raw, _ := json.Marshal(s.out)
	return json.Unmarshal(raw, out)
}

type stubRunner struct {
	calls int32
}

func (r *stubRunner) RunSubQuery(ctx context.Context, query string) ([]ragtypes.Reference, []ragtypes.WebResult) {
	atomic.AddInt32(&r.calls, 1)
	return []ragtypes.Reference{{ID: query}}, nil
}

func decompCfg() config.DecompositionConfig {
	return config.DecompositionConfig{ComplexityThreshold: 0.5, MaxSubqueries: 8}
}

func TestDecomposer_ValidChainExecutesInOrder(t *testing.T) {
	d := NewDecomposer(&stubDecomposeLLM{out: decomposeOutput{
		SynthesisPrompt: "merge the findings",
		SubQueries: []subQueryOutput{
			{ID: 1, Query: "base fact"},
			{ID: 2, Query: "depends on base", Dependencies: []int{1}},
		},
	}}, "large", decompCfg())

	runner := &stubRunner{}
	res, err := d.Decompose(context.Background(), "complex question", runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Active {
		t.Fatal("expected decomposition to be active")
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected 2 executed sub-queries, got %d", len(res.Results))
	}
	if res.Results[0].SubQuery.ID != 1 || res.Results[1].SubQuery.ID != 2 {
		t.Fatalf("expected topological execution order, got %+v", res.Results)
	}
	if len(res.References) != 2 {
		t.Fatalf("expected merged references from both sub-queries, got %d", len(res.References))
	}
	if runner.calls != 2 {
		t.Fatalf("expected runner called twice, got %d", runner.calls)
	}
}

func TestDecomposer_DuplicateIDsAbandon(t *testing.T) {
	d := NewDecomposer(&stubDecomposeLLM{out: decomposeOutput{
		SubQueries: []subQueryOutput{
			{ID: 1, Query: "a"},
			{ID: 1, Query: "b"},
		},
	}}, "large", decompCfg())

	res, err := d.Decompose(context.Background(), "q", &stubRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Active {
		t.Fatal("expected decomposition to be abandoned on duplicate ids")
	}
}

func TestDecomposer_UndefinedDependencyAbandons(t *testing.T) {
	d := NewDecomposer(&stubDecomposeLLM{out: decomposeOutput{
		SubQueries: []subQueryOutput{
			{ID: 1, Query: "a", Dependencies: []int{99}},
		},
	}}, "large", decompCfg())

	res, err := d.Decompose(context.Background(), "q", &stubRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Active {
		t.Fatal("expected decomposition to be abandoned on undefined dependency")
	}
}

func TestDecomposer_CycleAbandons(t *testing.T) {
	d := NewDecomposer(&stubDecomposeLLM{out: decomposeOutput{
		SubQueries: []subQueryOutput{
			{ID: 1, Query: "a", Dependencies: []int{2}},
			{ID: 2, Query: "b", Dependencies: []int{1}},
		},
	}}, "large", decompCfg())

	res, err := d.Decompose(context.Background(), "q", &stubRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Active {
		t.Fatal("expected decomposition to be abandoned on a cycle")
	}
}

func TestDecomposer_TooManySubqueriesAbandons(t *testing.T) {
	var subs []subQueryOutput
	for i := 1; i <= 9; i++ {
		subs = append(subs, subQueryOutput{ID: i, Query: "q"})
	}
	d := NewDecomposer(&stubDecomposeLLM{out: decomposeOutput{SubQueries: subs}}, "large", decompCfg())

	res, err := d.Decompose(context.Background(), "q", &stubRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Active {
		t.Fatal("expected decomposition to be abandoned when over the max subqueries bound")
	}
}

func TestDecomposer_LLMErrorAbandonsAndReturnsError(t *testing.T) {
	d := NewDecomposer(&stubDecomposeLLM{err: errors.New("boom")}, "large", decompCfg())
	res, err := d.Decompose(context.Background(), "q", &stubRunner{})
	if err == nil {
		t.Fatal("expected the LLM error to be returned to the caller")
	}
	if res.Active {
		t.Fatal("expected an inactive result on LLM failure")
	}
}

func TestDecomposer_NilClientIsInactive(t *testing.T) {
	d := NewDecomposer(nil, "large", decompCfg())
	res, err := d.Decompose(context.Background(), "q", &stubRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Active {
		t.Fatal("expected inactive result with a nil client")
	}
}

func TestAssessComplexity_LongConjunctiveQuestionScoresHigh(t *testing.T) {
	simple := "What time is it?"
	complex := "Compare the economic policies of country A and country B, and explain how their approaches to trade differ, and also describe their respective central bank strategies?"
	if assessComplexity(complex) <= assessComplexity(simple) {
		t.Fatalf("expected complex question to score higher: simple=%f complex=%f", assessComplexity(simple), assessComplexity(complex))
	}
}

package retrieval

import (
	"context"
	"testing"

	"ragorch/internal/config"
	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

type fakeRetrievalClient struct {
	hybridResults []ragtypes.Reference
	vectorResults []ragtypes.Reference
}

func (f *fakeRetrievalClient) HybridSearch(_ context.Context, _ HybridSearchRequest) ([]ragtypes.Reference, error) {
	return f.hybridResults, nil
}
func (f *fakeRetrievalClient) VectorSearch(_ context.Context, _ VectorSearchRequest) ([]ragtypes.Reference, error) {
	return f.vectorResults, nil
}
func (f *fakeRetrievalClient) GetByID(_ context.Context, id string) (ragtypes.Reference, error) {
	return ragtypes.Reference{ID: id, Content: "full " + id}, nil
}

type fakeWebAssembler struct {
	result ragtypes.WebContext
}

func (f *fakeWebAssembler) Assemble(_ context.Context, _ string) (ragtypes.WebContext, error) {
	return f.result, nil
}

func newTestDispatcher(client RetrievalClient, web WebAssembler, features config.FeatureFlags) *Dispatcher {
	est := llm.NewEstimator(config.TokenEstimatorConfig{Strategy: "heuristic"})
	cfg := config.RetrievalConfig{TopK: 5, MinDocs: 1, RerankerThreshold: 0, FallbackRerankerThreshold: 0}
	budget := config.BudgetConfig{KBContextMaxTok: 1000, WebContextMaxTok: 1000}
	planner := config.PlannerConfig{ConfidenceDualRetrieval: 0.45}
	rerank := config.RerankConfig{RRFKConstant: 60, RerankingTopK: 10, SemanticBoostWeight: 0.3}
	return NewDispatcher(client, nil, web, fakeEmbedder{}, est, cfg, budget, planner, rerank, features, "gpt-4o-mini")
}

func TestDispatch_DirectPathWithSufficientDocs(t *testing.T) {
	client := &fakeRetrievalClient{hybridResults: []ragtypes.Reference{{ID: "1", Content: "hit"}}}
	d := newTestDispatcher(client, nil, config.FeatureFlags{})
	res := d.Dispatch(context.Background(), DispatchRequest{
		Plan:     ragtypes.Plan{Confidence: 0.9, Steps: []ragtypes.PlanStep{{Action: ragtypes.ActionAnswer}}},
		Messages: []ragtypes.Message{{Role: "user", Content: "what are capybaras"}},
	})
	if res.RetrievalMode != "direct" {
		t.Fatalf("expected direct mode, got %s", res.RetrievalMode)
	}
	if res.FallbackReason != "" {
		t.Fatalf("expected no fallback, got %s", res.FallbackReason)
	}
	if res.Source != "kb" {
		t.Fatalf("expected kb-only source, got %s", res.Source)
	}
}

func TestDispatch_LowConfidenceEscalatesToWeb(t *testing.T) {
	client := &fakeRetrievalClient{hybridResults: []ragtypes.Reference{{ID: "1", Content: "hit"}}}
	web := &fakeWebAssembler{result: ragtypes.WebContext{Results: []ragtypes.WebResult{{ID: "w1"}}, ContextText: "web ctx"}}
	d := newTestDispatcher(client, web, config.FeatureFlags{})
	res := d.Dispatch(context.Background(), DispatchRequest{
		Plan:     ragtypes.Plan{Confidence: 0.1, Steps: []ragtypes.PlanStep{{Action: ragtypes.ActionAnswer}}},
		Messages: []ragtypes.Message{{Role: "user", Content: "question"}},
	})
	if !res.Escalated {
		t.Fatal("expected escalated=true for low-confidence plan")
	}
	if res.Source != "kb+web" {
		t.Fatalf("expected kb+web source, got %s", res.Source)
	}
	if res.WebContextText != "web ctx" {
		t.Fatalf("expected web context passed through, got %q", res.WebContextText)
	}
}

func TestDispatch_FallsBackToVectorWhenBelowMinDocs(t *testing.T) {
	client := &fakeRetrievalClient{hybridResults: nil, vectorResults: []ragtypes.Reference{{ID: "v1", Content: "vec"}}}
	d := newTestDispatcher(client, nil, config.FeatureFlags{})
	d.cfg.MinDocs = 2
	res := d.Dispatch(context.Background(), DispatchRequest{
		Plan:     ragtypes.Plan{Confidence: 0.9},
		Messages: []ragtypes.Message{{Role: "user", Content: "q"}},
	})
	if res.FallbackReason != "pure_vector" {
		t.Fatalf("expected pure_vector fallback, got %q", res.FallbackReason)
	}
	if len(res.References) != 1 || res.References[0].ID != "v1" {
		t.Fatalf("expected vector fallback reference, got %#v", res.References)
	}
}

func TestDispatch_WebRerankingFusesAndCapsTopK(t *testing.T) {
	client := &fakeRetrievalClient{hybridResults: []ragtypes.Reference{
		{ID: "kb1", Content: "kb hit one"},
		{ID: "kb2", Content: "kb hit two"},
	}}
	web := &fakeWebAssembler{result: ragtypes.WebContext{
		Results: []ragtypes.WebResult{
			{ID: "w1", Title: "web one", Snippet: "web body one"},
			{ID: "w2", Title: "web two", Snippet: "web body two"},
		},
		ContextText: "unranked web ctx",
	}}
	features := config.FeatureFlags{EnableWebReranking: true}
	d := newTestDispatcher(client, web, features)
	d.rerank.RerankingTopK = 3

	res := d.Dispatch(context.Background(), DispatchRequest{
		Plan:     ragtypes.Plan{Confidence: 0.1, Steps: []ragtypes.PlanStep{{Action: ragtypes.ActionAnswer}}},
		Messages: []ragtypes.Message{{Role: "user", Content: "question"}},
	})

	if total := len(res.References) + len(res.WebResults); total != 3 {
		t.Fatalf("expected rerank to cap combined candidates at 3, got %d (refs=%d web=%d)", total, len(res.References), len(res.WebResults))
	}
	if res.WebContextText == "unranked web ctx" {
		t.Fatal("expected web context to be rebuilt from the reranked/pruned result set")
	}
}

func TestDispatch_WebRerankingDisabledLeavesListsUntouched(t *testing.T) {
	client := &fakeRetrievalClient{hybridResults: []ragtypes.Reference{{ID: "kb1", Content: "hit"}}}
	web := &fakeWebAssembler{result: ragtypes.WebContext{
		Results:     []ragtypes.WebResult{{ID: "w1"}},
		ContextText: "web ctx",
	}}
	d := newTestDispatcher(client, web, config.FeatureFlags{})
	res := d.Dispatch(context.Background(), DispatchRequest{
		Plan:     ragtypes.Plan{Confidence: 0.1, Steps: []ragtypes.PlanStep{{Action: ragtypes.ActionAnswer}}},
		Messages: []ragtypes.Message{{Role: "user", Content: "question"}},
	})
	if len(res.References) != 1 || len(res.WebResults) != 1 {
		t.Fatalf("expected both lists untouched when reranking disabled, got refs=%d web=%d", len(res.References), len(res.WebResults))
	}
	if res.WebContextText != "web ctx" {
		t.Fatalf("expected original web context text passed through, got %q", res.WebContextText)
	}
}

func TestChooseQuery_PrefersPlannerVectorSearchStep(t *testing.T) {
	plan := ragtypes.Plan{Steps: []ragtypes.PlanStep{{Action: ragtypes.ActionVectorSearch, Query: "planner query"}}}
	msgs := []ragtypes.Message{{Role: "user", Content: "user query"}}
	if got := chooseQuery(plan, msgs); got != "planner query" {
		t.Fatalf("expected planner query to take priority, got %q", got)
	}
}

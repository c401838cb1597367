package retrieval

import (
	"context"
	"testing"

	"ragorch/internal/config"
	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

func TestLazyManager_SummaryIsTruncatedAndLoadFullIsIdempotent(t *testing.T) {
	client := &fakeRetrievalClient{hybridResults: []ragtypes.Reference{{ID: "1", Content: "a very long piece of content that exceeds the summary cap by a good margin"}}}
	est := llm.NewEstimator(config.TokenEstimatorConfig{Strategy: "heuristic"})
	mgr := NewLazyManager(client, est, "gpt-4o-mini", 10)

	refs, err := mgr.Search(context.Background(), HybridSearchRequest{Query: "q"})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("expected 1 lazy reference, got %d", len(refs))
	}
	if refs[0].Content != "" {
		t.Fatalf("expected content cleared until loaded, got %q", refs[0].Content)
	}
	if len([]rune(refs[0].Summary)) != 10 {
		t.Fatalf("expected summary truncated to 10 runes, got %q", refs[0].Summary)
	}

	full1, err := refs[0].LoadFull()
	if err != nil {
		t.Fatalf("load full error: %v", err)
	}
	full2, _ := refs[0].LoadFull()
	if full1.Content != full2.Content {
		t.Fatalf("expected idempotent load, got %q vs %q", full1.Content, full2.Content)
	}
	if full1.ID != "1" {
		t.Fatalf("expected full reference for id 1, got %#v", full1)
	}
}

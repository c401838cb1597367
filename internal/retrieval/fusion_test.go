package retrieval

import (
	"testing"

	"ragorch/internal/persistence/databases"
)

func TestFuseRRF_CombinesAndRanksBySource(t *testing.T) {
	fts := []databases.SearchResult{
		{ID: "a", Score: 2, Text: "doc a"},
		{ID: "b", Score: 1, Text: "doc b"},
	}
	vecs := []databases.VectorResult{
		{ID: "b", Score: 0.9},
		{ID: "c", Score: 0.8},
	}
	out := fuseRRF(fts, vecs, nil, fuseOptions{K: 60})
	if len(out) != 3 {
		t.Fatalf("expected 3 fused candidates, got %d", len(out))
	}
	if out[0].ref.ID != "b" {
		t.Fatalf("expected doc present in both lists to rank first, got %q", out[0].ref.ID)
	}
}

func TestFuseRRF_SemanticBoostUsesCosine(t *testing.T) {
	fts := []databases.SearchResult{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}}
	embeddings := map[string][]float32{"a": {1, 0}, "b": {0, 1}}
	out := fuseRRF(fts, nil, embeddings, fuseOptions{K: 60, SemanticBoostWeight: 1.0, QueryVec: []float32{1, 0}})
	if out[0].ref.ID != "a" {
		t.Fatalf("expected semantic boost to favor the closer vector, got %q first", out[0].ref.ID)
	}
}

func TestTopReferences_CapsAndPreservesOrder(t *testing.T) {
	fused := []fusedCandidate{{fused: 3}, {fused: 2}, {fused: 1}}
	fused[0].ref.ID, fused[1].ref.ID, fused[2].ref.ID = "a", "b", "c"
	out := topReferences(fused, 2)
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("unexpected top references: %#v", out)
	}
}

func TestCosine_ZeroVectorIsZero(t *testing.T) {
	if got := cosine([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

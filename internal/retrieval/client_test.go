package retrieval

import (
	"context"
	"testing"

	"ragorch/internal/config"
	"ragorch/internal/persistence/databases"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestClient_HybridSearch(t *testing.T) {
	ctx := context.Background()
	db := databases.Manager{Search: databases.NewMemoryLexical(), Vector: databases.NewMemoryVector()}
	_ = db.Search.Index(ctx, "1", "capybaras are large rodents", nil)
	_ = db.Vector.Upsert(ctx, "1", []float32{1, 0}, nil)

	c := NewClient(db, fakeEmbedder{}, config.RetrievalConfig{TopK: 5}, config.RerankConfig{RRFKConstant: 60, RerankingTopK: 5})
	refs, err := c.HybridSearch(ctx, HybridSearchRequest{Query: "capybaras", Top: 5})
	if err != nil {
		t.Fatalf("hybrid search error: %v", err)
	}
	if len(refs) == 0 {
		t.Fatal("expected at least one fused reference")
	}
}

func TestClient_GetByIDMissing(t *testing.T) {
	db := databases.Manager{Search: databases.NewMemoryLexical()}
	c := NewClient(db, fakeEmbedder{}, config.RetrievalConfig{}, config.RerankConfig{})
	if _, err := c.GetByID(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestClient_VectorSearchNoVectorStore(t *testing.T) {
	db := databases.Manager{Search: databases.NewMemoryLexical()}
	c := NewClient(db, fakeEmbedder{}, config.RetrievalConfig{TopK: 5}, config.RerankConfig{})
	refs, err := c.VectorSearch(context.Background(), VectorSearchRequest{Query: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refs != nil {
		t.Fatalf("expected nil results with no vector store, got %#v", refs)
	}
}

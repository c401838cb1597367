package retrieval

import (
	"context"
	"fmt"

	"ragorch/internal/config"
	"ragorch/internal/embedding"
	"ragorch/internal/orcerr"
	"ragorch/internal/persistence/databases"
	"ragorch/internal/ragtypes"
)

// HybridSearchRequest is C10's primary retrieval call.
type HybridSearchRequest struct {
	Query     string
	Top       int
	Threshold float64
	Filters   map[string]string
}

// VectorSearchRequest is the pure-vector fallback leg.
type VectorSearchRequest struct {
	Query   string
	Top     int
	Filters map[string]string
}

// RetrievalClient is the capability interface the dispatcher (C10/C11)
// depends on; the rest of the pipeline never imports databases directly.
type RetrievalClient interface {
	HybridSearch(ctx context.Context, req HybridSearchRequest) ([]ragtypes.Reference, error)
	VectorSearch(ctx context.Context, req VectorSearchRequest) ([]ragtypes.Reference, error)
	GetByID(ctx context.Context, id string) (ragtypes.Reference, error)
}

// Client is the default RetrievalClient: lexical+vector fused by RRF,
// backed by a databases.Manager and an Embedder for the vector leg.
type Client struct {
	db       databases.Manager
	embedder embedding.Embedder
	cfg      config.RetrievalConfig
	rerank   config.RerankConfig
}

// NewClient builds a Client.
func NewClient(db databases.Manager, embedder embedding.Embedder, cfg config.RetrievalConfig, rerank config.RerankConfig) *Client {
	return &Client{db: db, embedder: embedder, cfg: cfg, rerank: rerank}
}

// HybridSearch fuses lexical and vector candidates by RRF (with an
// optional semantic boost) and keeps results at or above threshold, up to
// req.Top (or the configured reranking top-k when req.Top is unset).
func (c *Client) HybridSearch(ctx context.Context, req HybridSearchRequest) ([]ragtypes.Reference, error) {
	top := req.Top
	if top <= 0 {
		top = c.rerank.RerankingTopK
	}
	queryVec, err := c.embedOne(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	plan := buildQueryPlan(req.Query, top, 0.5)
	fts, vecs, _, err := parallelCandidates(ctx, c.db.Search, c.db.Vector, plan, queryVec, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orcerr.Capability, err)
	}

	fused := fuseRRF(fts, vecs, nil, fuseOptions{K: c.rerank.RRFKConstant, SemanticBoostWeight: c.rerank.SemanticBoostWeight, QueryVec: queryVec})
	kept := make([]fusedCandidate, 0, len(fused))
	for _, f := range fused {
		if f.fused < req.Threshold {
			continue
		}
		kept = append(kept, f)
	}
	return topReferences(kept, top), nil
}

// VectorSearch runs the pure-vector leg only, used as the final fallback
// step of C10's threshold chain.
func (c *Client) VectorSearch(ctx context.Context, req VectorSearchRequest) ([]ragtypes.Reference, error) {
	top := req.Top
	if top <= 0 {
		top = c.cfg.TopK
	}
	queryVec, err := c.embedOne(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if c.db.Vector == nil {
		return nil, nil
	}
	results, err := c.db.Vector.SimilaritySearch(ctx, queryVec, top, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orcerr.Capability, err)
	}
	out := make([]ragtypes.Reference, len(results))
	for i, r := range results {
		out[i] = ragtypes.Reference{ID: r.ID, Title: r.Metadata["title"], URL: r.Metadata["url"], Score: r.Score, Metadata: toAnyMap(r.Metadata)}
	}
	return out, nil
}

// GetByID fetches one document's full content from the lexical index by
// id, backing C11's loadFull.
func (c *Client) GetByID(ctx context.Context, id string) (ragtypes.Reference, error) {
	if c.db.Search == nil {
		return ragtypes.Reference{}, fmt.Errorf("%w: no lexical backend configured", orcerr.Capability)
	}
	doc, ok, err := c.db.Search.GetByID(ctx, id)
	if err != nil {
		return ragtypes.Reference{}, fmt.Errorf("%w: %v", orcerr.Capability, err)
	}
	if !ok {
		return ragtypes.Reference{}, fmt.Errorf("%w: reference %q not found", orcerr.Capability, id)
	}
	return ragtypes.Reference{ID: doc.ID, Content: doc.Text, Title: doc.Metadata["title"], URL: doc.Metadata["url"], Metadata: toAnyMap(doc.Metadata)}, nil
}

func (c *Client) embedOne(ctx context.Context, text string) ([]float32, error) {
	if c.embedder == nil || text == "" {
		return nil, nil
	}
	vecs, err := c.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}

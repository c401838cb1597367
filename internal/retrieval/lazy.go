package retrieval

import (
	"context"
	"sync"

	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

// LazyManager is C11: runs the same fallback chain as a direct hybrid
// search but returns references whose content is a short summary, with
// full content fetched on demand via an idempotent LoadFull.
type LazyManager struct {
	client         RetrievalClient
	estimator      *llm.Estimator
	model          string
	summaryMaxChars int
}

// NewLazyManager builds a LazyManager. summaryMaxChars <= 0 defaults to 300.
func NewLazyManager(client RetrievalClient, estimator *llm.Estimator, model string, summaryMaxChars int) *LazyManager {
	if summaryMaxChars <= 0 {
		summaryMaxChars = 300
	}
	return &LazyManager{client: client, estimator: estimator, model: model, summaryMaxChars: summaryMaxChars}
}

// Search runs a hybrid search and wraps each hit in a LazyReference whose
// Content is cleared in favor of a truncated Summary; the full Reference
// is fetched lazily by id on first LoadFull call.
func (m *LazyManager) Search(ctx context.Context, req HybridSearchRequest) ([]ragtypes.LazyReference, error) {
	refs, err := m.client.HybridSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.wrap(ctx, refs), nil
}

func (m *LazyManager) wrap(ctx context.Context, refs []ragtypes.Reference) []ragtypes.LazyReference {
	out := make([]ragtypes.LazyReference, len(refs))
	for i, r := range refs {
		summary := truncateChars(r.Content, m.summaryMaxChars)
		tokens, _ := m.estimator.Estimate(m.model, summary)
		id := r.ID
		r.Content = ""
		out[i] = ragtypes.LazyReference{
			Reference:     r,
			Summary:       summary,
			SummaryTokens: tokens,
			LoadFull:      m.loadFullOnce(ctx, id),
		}
	}
	return out
}

// loadFullOnce returns a closure that fetches the full reference exactly
// once; subsequent calls return the cached result, making LoadFull
// idempotent regardless of how many times the caller invokes it.
func (m *LazyManager) loadFullOnce(ctx context.Context, id string) func() (ragtypes.Reference, error) {
	var (
		once   sync.Once
		cached ragtypes.Reference
		cerr   error
	)
	return func() (ragtypes.Reference, error) {
		once.Do(func() {
			cached, cerr = m.client.GetByID(ctx, id)
		})
		return cached, cerr
	}
}

func truncateChars(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

package memory

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"ragorch/internal/embedding"
	"ragorch/internal/observability"
)

// SemanticEntry is one durable, embedding-indexed row in C5.
type SemanticEntry struct {
	ID             string
	Text           string
	Type           string
	Metadata       map[string]string
	SessionID      string
	UserID         string
	Tags           []string
	Embedding      []float32
	CreatedAt      time.Time
	LastAccessedAt time.Time
	UsageCount     int
}

// RecallFilter narrows a Recall call.
type RecallFilter struct {
	K             int
	Type          string
	SessionID     string
	UserID        string
	Tags          []string
	MinSimilarity float64
	MaxAgeDays    int
}

// SemanticStore is C5: an embedding-indexed memory store. Entries are
// kept in an in-process map keyed by id and scored by cosine similarity;
// they do not outlive the process.
type SemanticStore struct {
	mu       sync.RWMutex
	entries  map[string]*SemanticEntry
	embedder embedding.Embedder
	now      func() time.Time
}

// NewSemanticStore builds a SemanticStore. now defaults to time.Now; a
// caller in tests can override it for deterministic pruning.
func NewSemanticStore(embedder embedding.Embedder, now func() time.Time) *SemanticStore {
	if now == nil {
		now = time.Now
	}
	return &SemanticStore{entries: make(map[string]*SemanticEntry), embedder: embedder, now: now}
}

// Add embeds text and stores a new entry, returning its id. Embedding
// failure is soft: it logs and returns ("", nil) rather than propagating,
// matching the fails-soft contract.
func (s *SemanticStore) Add(ctx context.Context, text, typ string, metadata map[string]string, sessionID, userID string, tags []string) (string, error) {
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil || len(vecs) == 0 {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("semantic_memory_embed_failed")
		return "", nil
	}
	id := newEntryID()
	now := s.now()
	s.mu.Lock()
	s.entries[id] = &SemanticEntry{
		ID:             id,
		Text:           text,
		Type:           typ,
		Metadata:       metadata,
		SessionID:      sessionID,
		UserID:         userID,
		Tags:           tags,
		Embedding:      vecs[0],
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	s.mu.Unlock()
	return id, nil
}

// Recall embeds query, scores candidates matching filter by cosine
// similarity plus a +0.05 per-matched-tag boost, keeps those at or above
// MinSimilarity, returns the top K by descending score, and atomically
// bumps UsageCount/LastAccessedAt for every returned entry. Queries that
// match nothing return an empty slice, never an error.
func (s *SemanticStore) Recall(ctx context.Context, query string, filter RecallFilter) ([]SemanticEntry, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("semantic_memory_query_embed_failed")
		return nil, nil
	}
	qvec := vecs[0]
	k := filter.K
	if k <= 0 {
		k = 5
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	type scored struct {
		entry *SemanticEntry
		score float64
	}
	candidates := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		if !matchesFilter(e, filter, now) {
			continue
		}
		sim := cosineSimilarity(qvec, e.Embedding) + tagBoost(e.Tags, filter.Tags)
		if sim < filter.MinSimilarity {
			continue
		}
		candidates = append(candidates, scored{entry: e, score: sim})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].entry.ID < candidates[j].entry.ID
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]SemanticEntry, 0, len(candidates))
	for _, c := range candidates {
		c.entry.UsageCount++
		c.entry.LastAccessedAt = now
		out = append(out, *c.entry)
	}
	return out, nil
}

// Prune removes entries older than maxAgeDays with usage below
// minUsageCount, returning how many were removed.
func (s *SemanticStore) Prune(maxAgeDays, minUsageCount int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().AddDate(0, 0, -maxAgeDays)
	removed := 0
	for id, e := range s.entries {
		if e.CreatedAt.Before(cutoff) && e.UsageCount < minUsageCount {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Stats reports total entry count and a per-type breakdown.
func (s *SemanticStore) Stats() (total int, byType map[string]int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byType = make(map[string]int)
	for _, e := range s.entries {
		byType[e.Type]++
	}
	return len(s.entries), byType
}

func matchesFilter(e *SemanticEntry, f RecallFilter, now time.Time) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.MaxAgeDays > 0 && e.CreatedAt.Before(now.AddDate(0, 0, -f.MaxAgeDays)) {
		return false
	}
	return true
}

func tagBoost(entryTags, queryTags []string) float64 {
	if len(queryTags) == 0 {
		return 0
	}
	want := make(map[string]struct{}, len(queryTags))
	for _, t := range queryTags {
		want[t] = struct{}{}
	}
	var boost float64
	for _, t := range entryTags {
		if _, ok := want[t]; ok {
			boost += 0.05
		}
	}
	return boost
}

// cosineSimilarity returns 0 for zero vectors or mismatched dimensions
// rather than erroring, per the invariant that recall never errors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var entryCounter struct {
	mu sync.Mutex
	n  uint64
}

// newEntryID generates a process-unique id without pulling in a UUID
// dependency for what is, here, a plain incrementing counter; callers
// that need globally-unique ids (cross-process persistence) should wrap
// SemanticStore with one that assigns uuid.NewString() before Add.
func newEntryID() string {
	entryCounter.mu.Lock()
	defer entryCounter.mu.Unlock()
	entryCounter.n++
	return "sem-" + strconv.FormatUint(entryCounter.n, 10)
}

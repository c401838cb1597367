package databases

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type lexicalDoc struct {
	text     string
	terms    map[string]int
	metadata map[string]string
}

// memoryLexical is a small in-process term-overlap index. It is the
// default lexical backend and the one used in tests; a real deployment
// swaps this out for a hosted search engine behind the same interface.
type memoryLexical struct {
	mu   sync.RWMutex
	docs map[string]lexicalDoc
}

// NewMemoryLexical constructs an in-memory FullTextSearch backend.
func NewMemoryLexical() FullTextSearch {
	return &memoryLexical{docs: make(map[string]lexicalDoc)}
}

func (m *memoryLexical) Index(_ context.Context, id string, text string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id] = lexicalDoc{text: text, terms: termFreq(text), metadata: copyMap(metadata)}
	return nil
}

func (m *memoryLexical) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memoryLexical) Search(_ context.Context, query string, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	qterms := tokenize(query)
	if len(qterms) == 0 {
		return nil, nil
	}
	results := make([]SearchResult, 0, len(m.docs))
	for id, d := range m.docs {
		score := overlapScore(qterms, d.terms)
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{ID: id, Score: score, Text: d.text, Snippet: snippetAround(d.text, query), Metadata: d.metadata})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *memoryLexical) GetByID(_ context.Context, id string) (SearchResult, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return SearchResult{}, false, nil
	}
	return SearchResult{ID: id, Text: d.text, Metadata: d.metadata}, true, nil
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	return fields
}

func termFreq(s string) map[string]int {
	freq := make(map[string]int)
	for _, t := range tokenize(s) {
		freq[t]++
	}
	return freq
}

// overlapScore is a term-frequency dot product between the query and the
// document, a reasonable stand-in for a real scoring function (BM25,
// ts_rank) behind the same SearchResult.Score contract.
func overlapScore(qterms []string, docTerms map[string]int) float64 {
	var score float64
	for _, t := range qterms {
		if f, ok := docTerms[t]; ok {
			score += float64(f)
		}
	}
	return score
}

func snippetAround(text, query string) string {
	lt := strings.ToLower(text)
	q := strings.ToLower(strings.TrimSpace(query))
	idx := -1
	if q != "" {
		idx = strings.Index(lt, q)
		if idx == -1 {
			for _, p := range tokenize(q) {
				if i := strings.Index(lt, p); i != -1 {
					idx = i
					break
				}
			}
		}
	}
	if idx == -1 {
		if len(text) > 160 {
			return text[:160]
		}
		return text
	}
	start := idx - 60
	if start < 0 {
		start = 0
	}
	end := start + 160
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

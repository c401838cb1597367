package retrieval

import (
	"math"
	"sort"

	"ragorch/internal/persistence/databases"
	"ragorch/internal/ragtypes"
)

// fuseOptions configures Reciprocal Rank Fusion across the lexical and
// vector candidate lists.
type fuseOptions struct {
	K                   int     // RRF constant, default 60
	SemanticBoostWeight float64 // 0 disables the boost
	QueryVec            []float32
}

type fusedCandidate struct {
	ref      ragtypes.Reference
	ftRank   int
	vecRank  int
	fused    float64
	embedded []float32
}

// fuseRRF combines lexical and vector candidates into a single ranked
// list: RRF(d) = sum over present sources of 1/(k+rank), optionally
// boosted by cosine similarity between the query and the candidate's
// embedding: fused = RRF*(1-w) + cosSim*w.
func fuseRRF(fts []databases.SearchResult, vecs []databases.VectorResult, vecEmbeddings map[string][]float32, opt fuseOptions) []fusedCandidate {
	k := opt.K
	if k <= 0 {
		k = 60
	}

	ftPos := make(map[string]int, len(fts))
	ftByID := make(map[string]databases.SearchResult, len(fts))
	for i, r := range fts {
		ftPos[r.ID] = i + 1
		ftByID[r.ID] = r
	}
	vecPos := make(map[string]int, len(vecs))
	vecByID := make(map[string]databases.VectorResult, len(vecs))
	for i, r := range vecs {
		vecPos[r.ID] = i + 1
		vecByID[r.ID] = r
	}

	seen := map[string]struct{}{}
	ids := make([]string, 0, len(fts)+len(vecs))
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, r := range fts {
		add(r.ID)
	}
	for _, r := range vecs {
		add(r.ID)
	}

	out := make([]fusedCandidate, 0, len(ids))
	for _, id := range ids {
		fr, vr := ftPos[id], vecPos[id]
		rrf := 0.0
		if fr > 0 {
			rrf += 1.0 / float64(k+fr)
		}
		if vr > 0 {
			rrf += 1.0 / float64(k+vr)
		}

		var text, snippet string
		md := map[string]string{}
		var score float64
		if r, ok := ftByID[id]; ok {
			text, snippet, score = r.Text, r.Snippet, r.Score
			for mk, mv := range r.Metadata {
				md[mk] = mv
			}
		}
		if r, ok := vecByID[id]; ok {
			for mk, mv := range r.Metadata {
				if _, exists := md[mk]; !exists {
					md[mk] = mv
				}
			}
			if score == 0 {
				score = r.Score
			}
		}

		fused := rrf
		if w := opt.SemanticBoostWeight; w > 0 && len(opt.QueryVec) > 0 {
			if vec, ok := vecEmbeddings[id]; ok {
				fused = rrf*(1-w) + cosine(opt.QueryVec, vec)*w
			}
		}

		out = append(out, fusedCandidate{
			ref: ragtypes.Reference{
				ID:       id,
				Title:    md["title"],
				Content:  text,
				Score:    score,
				URL:      md["url"],
				Metadata: toAnyMap(md),
			},
			ftRank:  fr,
			vecRank: vr,
			fused:   fused,
		})
		if snippet != "" && out[len(out)-1].ref.Content == "" {
			out[len(out)-1].ref.Content = snippet
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].fused != out[j].fused {
			return out[i].fused > out[j].fused
		}
		return rankSum(out[i]) < rankSum(out[j]) || (rankSum(out[i]) == rankSum(out[j]) && out[i].ref.ID < out[j].ref.ID)
	})
	return out
}

func rankSum(c fusedCandidate) int {
	a, b := c.ftRank, c.vecRank
	if a == 0 {
		a = 1 << 30
	}
	if b == 0 {
		b = 1 << 30
	}
	return a + b
}

func toAnyMap(m map[string]string) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cosine(a, b []float32) float64 {
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

// topReferences converts the top n fused candidates to references,
// ordered by fused score descending — the order citations are indexed by.
func topReferences(fused []fusedCandidate, n int) []ragtypes.Reference {
	if n <= 0 || n > len(fused) {
		n = len(fused)
	}
	out := make([]ragtypes.Reference, n)
	for i := 0; i < n; i++ {
		r := fused[i].ref
		r.Score = fused[i].fused
		out[i] = r
	}
	return out
}

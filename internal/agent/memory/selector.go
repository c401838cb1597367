package memory

import (
	"context"
	"sort"

	"ragorch/internal/embedding"
	"ragorch/internal/observability"
)

// SelectStats reports how a Select call chose its bullets, for
// diagnostics/telemetry.
type SelectStats struct {
	Mode            string
	TotalCandidates int
	SelectedCount   int
	DiscardedCount  int
	MaxScore        float64
	MinScore        float64
	MeanScore       float64
}

// SelectResult is C6's output.
type SelectResult struct {
	Selected []string
	Stats    SelectStats
}

// Selector is C6: pick the most relevant summary bullets to carry into a
// turn's context, either by semantic similarity to the question or, when
// embeddings aren't available, by recency.
type Selector struct {
	embedder embedding.Embedder
	enabled  bool
}

// NewSelector builds a Selector. enabled gates whether semantic mode is
// attempted at all; embedder may be nil when enabled is false.
func NewSelector(embedder embedding.Embedder, enabled bool) *Selector {
	return &Selector{embedder: embedder, enabled: enabled}
}

// Select scores bullets against query and returns the top maxItems. It
// never errors: any embedding failure falls back to the recency mode.
func (s *Selector) Select(ctx context.Context, query string, bullets []SummaryBullet, maxItems int) SelectResult {
	if maxItems <= 0 {
		maxItems = len(bullets)
	}
	if len(bullets) == 0 {
		return SelectResult{Stats: SelectStats{Mode: "recency", TotalCandidates: 0}}
	}

	if s.enabled && s.embedder != nil {
		if res, ok := s.selectSemantic(ctx, query, bullets, maxItems); ok {
			return res
		}
	}
	return s.selectRecency(bullets, maxItems)
}

func (s *Selector) selectSemantic(ctx context.Context, query string, bullets []SummaryBullet, maxItems int) (SelectResult, bool) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("summary_selector_embed_failed")
		return SelectResult{}, false
	}
	qvec := vecs[0]

	type scored struct {
		bullet SummaryBullet
		score  float64
	}
	candidates := make([]scored, 0, len(bullets))
	var missingEmbedding bool
	for _, b := range bullets {
		if len(b.Embedding) == 0 {
			missingEmbedding = true
			continue
		}
		candidates = append(candidates, scored{bullet: b, score: cosineSimilarity(qvec, b.Embedding)})
	}
	if len(candidates) == 0 {
		return SelectResult{}, false
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	kept := candidates
	if len(kept) > maxItems {
		kept = kept[:maxItems]
	}

	selected := make([]string, len(kept))
	var sum, max, min float64
	min = 1
	for i, c := range kept {
		selected[i] = c.bullet.Text
		sum += c.score
		if c.score > max {
			max = c.score
		}
		if c.score < min {
			min = c.score
		}
	}
	mean := 0.0
	if len(kept) > 0 {
		mean = sum / float64(len(kept))
	}

	total := len(candidates)
	if missingEmbedding {
		total = len(bullets)
	}
	return SelectResult{
		Selected: selected,
		Stats: SelectStats{
			Mode:            "semantic",
			TotalCandidates: total,
			SelectedCount:   len(selected),
			DiscardedCount:  total - len(selected),
			MaxScore:        max,
			MinScore:        min,
			MeanScore:       mean,
		},
	}, true
}

func (s *Selector) selectRecency(bullets []SummaryBullet, maxItems int) SelectResult {
	ordered := make([]SummaryBullet, len(bullets))
	copy(ordered, bullets)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Turn > ordered[j].Turn })
	if len(ordered) > maxItems {
		ordered = ordered[:maxItems]
	}
	selected := make([]string, len(ordered))
	for i, b := range ordered {
		selected[i] = b.Text
	}
	return SelectResult{
		Selected: selected,
		Stats: SelectStats{
			Mode:            "recency",
			TotalCandidates: len(bullets),
			SelectedCount:   len(selected),
			DiscardedCount:  len(bullets) - len(selected),
		},
	}
}

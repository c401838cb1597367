// Package memory holds the short-term (recent-turn) and semantic
// (cross-session) memory stores, plus the history compactor that feeds
// both.
package memory

import (
	"context"
	"strings"

	"github.com/invopop/jsonschema"

	"ragorch/internal/llm"
	"ragorch/internal/observability"
)

// CompactConfig tunes how much raw history C3 keeps verbatim versus
// folds into bullets.
type CompactConfig struct {
	RecentTurns        int
	MaxSummaryBullets  int
	MaxSalienceNotes   int
	SummaryModel       string
	MaxChunkChars      int
}

// CompactResult is C3's output: the tail kept verbatim plus the rolling
// bulleted summary and salience notes derived from everything older.
type CompactResult struct {
	Recent         []llm.Message
	SummaryBullets []string
	SalienceNotes  []string
}

// Compactor is C3, the history compactor. It never aborts a session on
// failure: a summarization error degrades to returning every message as
// recent and carrying the prior bullets forward untouched.
type Compactor struct {
	llm llm.LLMClient
	cfg CompactConfig
}

// NewCompactor builds a Compactor. A nil llm client makes Compact a
// pure tail-split (no new bullets are produced, existing ones pass
// through).
func NewCompactor(client llm.LLMClient, cfg CompactConfig) *Compactor {
	if cfg.RecentTurns <= 0 {
		cfg.RecentTurns = 12
	}
	if cfg.MaxSummaryBullets <= 0 {
		cfg.MaxSummaryBullets = 6
	}
	if cfg.MaxSalienceNotes <= 0 {
		cfg.MaxSalienceNotes = 6
	}
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = 4096
	}
	return &Compactor{llm: client, cfg: cfg}
}

type compactionOutput struct {
	SummaryBullets []string `json:"summary_bullets"`
	SalienceNotes  []string `json:"salience_notes"`
}

var compactionSchema = llm.SchemaFor[compactionOutput]()

// Compact splits messages into a verbatim recent tail and an updated
// bulleted summary + salience notes for everything older, merging with
// priorBullets/priorSalience (deduped by normalized text, capped to the
// configured maximums). recentTurns overrides cfg.RecentTurns when > 0.
func (c *Compactor) Compact(ctx context.Context, messages []llm.Message, recentTurns int, priorBullets, priorSalience []string) CompactResult {
	n := recentTurns
	if n <= 0 {
		n = c.cfg.RecentTurns
	}
	if len(messages) <= n {
		return CompactResult{Recent: messages, SummaryBullets: priorBullets, SalienceNotes: priorSalience}
	}

	cutoff := adjustForToolDeps(messages, len(messages)-n)
	older, recent := messages[:cutoff], messages[cutoff:]
	if len(older) == 0 {
		return CompactResult{Recent: recent, SummaryBullets: priorBullets, SalienceNotes: priorSalience}
	}

	log := observability.LoggerWithTrace(ctx)
	if c.llm == nil {
		return CompactResult{Recent: recent, SummaryBullets: priorBullets, SalienceNotes: priorSalience}
	}

	out, err := c.summarize(ctx, older, priorBullets, priorSalience)
	if err != nil {
		log.Warn().Err(err).Msg("compaction_summarize_failed")
		return CompactResult{Recent: messages, SummaryBullets: priorBullets, SalienceNotes: priorSalience}
	}

	return CompactResult{
		Recent:         recent,
		SummaryBullets: dedupCap(append(append([]string{}, priorBullets...), out.SummaryBullets...), c.cfg.MaxSummaryBullets),
		SalienceNotes:  dedupCap(append(append([]string{}, priorSalience...), out.SalienceNotes...), c.cfg.MaxSalienceNotes),
	}
}

func (c *Compactor) summarize(ctx context.Context, chunk []llm.Message, priorBullets, priorSalience []string) (compactionOutput, error) {
	var b strings.Builder
	b.WriteString("Summarize the following older conversation turns into short bullet points.\n")
	b.WriteString("summary_bullets: concise facts about what was discussed or decided.\n")
	b.WriteString("salience_notes: durable facts worth remembering across turns (names, IDs, preferences, constraints).\n")
	if len(priorBullets) > 0 {
		b.WriteString("\nExisting summary bullets (extend, don't repeat):\n- ")
		b.WriteString(strings.Join(priorBullets, "\n- "))
	}
	b.WriteString("\n\nConversation turns:\n")
	for _, m := range chunk {
		content := truncate(strings.TrimSpace(m.Content), c.cfg.MaxChunkChars)
		if content == "" {
			continue
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteString("\n")
	}

	msgs := []llm.Message{{Role: "user", Content: b.String()}}
	var out compactionOutput
	if err := c.llm.Complete(ctx, msgs, c.cfg.SummaryModel, 0, compactionSchema, &out); err != nil {
		return compactionOutput{}, err
	}
	return out, nil
}

// adjustForToolDeps pulls cut leftward so a kept tool-result message's
// matching assistant tool-call message isn't stranded in the summarized
// chunk; providers like Anthropic require the pair to stay together.
func adjustForToolDeps(msgs []llm.Message, cut int) int {
	if cut <= 0 || cut >= len(msgs) {
		if cut < 0 {
			return 0
		}
		if cut > len(msgs) {
			return len(msgs)
		}
		return cut
	}
	required := map[string]struct{}{}
	for i := cut; i < len(msgs); i++ {
		if msgs[i].Role == "tool" && msgs[i].ToolID != "" {
			required[msgs[i].ToolID] = struct{}{}
		}
	}
	if len(required) == 0 {
		return cut
	}
	earliest := cut
	for id := range required {
		for i := cut - 1; i >= 0; i-- {
			if msgs[i].Role != "assistant" {
				continue
			}
			for _, tc := range msgs[i].ToolCalls {
				if tc.ID == id && i < earliest {
					earliest = i
				}
			}
		}
	}
	return earliest
}

func dedupCap(items []string, max int) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(items))
	for _, it := range items {
		norm := strings.ToLower(strings.TrimSpace(it))
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, strings.TrimSpace(it))
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	return string(r[:limit]) + " [TRUNCATED]"
}

package agent

import (
	"ragorch/internal/config"
	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

// Budgeter is C2: applies the per-section token caps configured in
// config.BudgetConfig to an assembled ragtypes.ContextSections, trimming
// the oldest content in each section first so the most recent/relevant
// material survives. It never errors — a section that can't fit even its
// first item is trimmed to empty rather than blocking the pipeline.
type Budgeter struct {
	estimator *llm.Estimator
	cfg       config.BudgetConfig
}

// NewBudgeter builds a Budgeter.
func NewBudgeter(estimator *llm.Estimator, cfg config.BudgetConfig) *Budgeter {
	return &Budgeter{estimator: estimator, cfg: cfg}
}

// Apply returns a trimmed copy of sections (the caller's value is left
// untouched) in which each field's token estimate is within its
// configured cap, together with the resulting ContextBudget. model
// selects the tokenizer encoding.
func (b *Budgeter) Apply(model string, sections ragtypes.ContextSections) (ragtypes.ContextSections, ragtypes.ContextBudget) {
	history, historyTok := b.trimHistory(model, sections.History, b.cfg.HistoryTokenCap, b.cfg.MaxRecentTurns)
	summary, summaryTok := b.trimStrings(model, sections.Summary, b.cfg.SummaryTokenCap, b.cfg.MaxSummaryItems, true)
	salience, salienceTok := b.trimStrings(model, sections.Salience, b.cfg.SalienceTokenCap, b.cfg.MaxSalienceItems, true)
	web, webTok := b.trimText(model, sections.Web, b.cfg.WebContextMaxTok)

	out := ragtypes.ContextSections{History: history, Summary: summary, Salience: salience, Web: web}
	budget := ragtypes.ContextBudget{
		HistoryTokens:  historyTok,
		SummaryTokens:  summaryTok,
		SalienceTokens: salienceTok,
		WebTokens:      webTok,
		TotalTokens:    historyTok + summaryTok + salienceTok + webTok,
	}
	return out, budget
}

// trimHistory keeps at most maxTurns of the most recent messages, then
// drops older messages (oldest first) until the running token estimate
// fits tokenCap. A cap of 0 is treated as unbounded.
func (b *Budgeter) trimHistory(model string, msgs []ragtypes.Message, tokenCap, maxTurns int) ([]ragtypes.Message, int) {
	if maxTurns > 0 && len(msgs) > maxTurns {
		msgs = msgs[len(msgs)-maxTurns:]
	}
	for {
		total := b.estimateMessages(model, msgs)
		if tokenCap <= 0 || total <= tokenCap || len(msgs) == 0 {
			return msgs, total
		}
		msgs = msgs[1:]
	}
}

// trimStrings keeps at most maxItems entries (most-recent-first when
// mostRecentLast is true, i.e. the slice is ordered oldest-to-newest) and
// drops the oldest until the running token estimate fits tokenCap.
func (b *Budgeter) trimStrings(model string, items []string, tokenCap, maxItems int, mostRecentLast bool) ([]string, int) {
	if maxItems > 0 && len(items) > maxItems {
		if mostRecentLast {
			items = items[len(items)-maxItems:]
		} else {
			items = items[:maxItems]
		}
	}
	for {
		total := b.estimateStrings(model, items)
		if tokenCap <= 0 || total <= tokenCap || len(items) == 0 {
			return items, total
		}
		if mostRecentLast {
			items = items[1:]
		} else {
			items = items[:len(items)-1]
		}
	}
}

// trimText truncates text (by estimated-token-proportional rune count)
// until it fits tokenCap. A cap of 0 is unbounded.
func (b *Budgeter) trimText(model, text string, tokenCap int) (string, int) {
	tokens, _ := b.estimator.Estimate(model, text)
	if tokenCap <= 0 || tokens <= tokenCap || text == "" {
		return text, tokens
	}
	runes := []rune(text)
	// tiktoken/heuristic both scale roughly linearly with rune count, so
	// a proportional cut converges in a couple of estimate calls.
	for len(runes) > 0 {
		keep := len(runes) * tokenCap / tokens
		if keep >= len(runes) {
			keep = len(runes) - 1
		}
		if keep <= 0 {
			return "", 0
		}
		runes = runes[:keep]
		tokens, _ = b.estimator.Estimate(model, string(runes))
		if tokens <= tokenCap {
			return string(runes), tokens
		}
	}
	return "", 0
}

func (b *Budgeter) estimateMessages(model string, msgs []ragtypes.Message) int {
	total := 0
	for _, m := range msgs {
		n, _ := b.estimator.Estimate(model, m.Content)
		total += n + 4
	}
	return total
}

func (b *Budgeter) estimateStrings(model string, items []string) int {
	total := 0
	for _, s := range items {
		n, _ := b.estimator.Estimate(model, s)
		total += n
	}
	return total
}

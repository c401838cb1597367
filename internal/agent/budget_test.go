package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragorch/internal/config"
	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

func testBudgeter(cfg config.BudgetConfig) *Budgeter {
	return NewBudgeter(llm.NewEstimator(config.TokenEstimatorConfig{Strategy: "heuristic"}), cfg)
}

func TestBudgeter_WithinCapsIsUnchanged(t *testing.T) {
	b := testBudgeter(config.BudgetConfig{
		HistoryTokenCap:  1000,
		SummaryTokenCap:  1000,
		SalienceTokenCap: 1000,
		WebContextMaxTok: 1000,
		MaxRecentTurns:   10,
		MaxSummaryItems:  10,
		MaxSalienceItems: 10,
	})
	sections := ragtypes.ContextSections{
		History:  []ragtypes.Message{{Role: "user", Content: "hi"}},
		Summary:  []string{"bullet one"},
		Salience: []string{"fact one"},
		Web:      "short web context",
	}
	out, budget := b.Apply("gpt-4o", sections)
	assert.Equal(t, sections, out)
	assert.Greater(t, budget.TotalTokens, 0)
}

func TestBudgeter_HistoryDropsOldestTurnsFirst(t *testing.T) {
	b := testBudgeter(config.BudgetConfig{MaxRecentTurns: 2, HistoryTokenCap: 100000})
	sections := ragtypes.ContextSections{
		History: []ragtypes.Message{
			{Role: "user", Content: "turn 1"},
			{Role: "assistant", Content: "turn 2"},
			{Role: "user", Content: "turn 3"},
			{Role: "assistant", Content: "turn 4"},
		},
	}
	out, _ := b.Apply("gpt-4o", sections)
	require.Len(t, out.History, 2)
	assert.Equal(t, "turn 3", out.History[0].Content)
	assert.Equal(t, "turn 4", out.History[1].Content)
}

func TestBudgeter_HistoryTokenCapTrimsBelowMaxTurns(t *testing.T) {
	long := strings.Repeat("word ", 200)
	b := testBudgeter(config.BudgetConfig{MaxRecentTurns: 10, HistoryTokenCap: 20})
	sections := ragtypes.ContextSections{
		History: []ragtypes.Message{
			{Role: "user", Content: long},
			{Role: "assistant", Content: "short reply"},
		},
	}
	out, budget := b.Apply("gpt-4o", sections)
	assert.LessOrEqual(t, budget.HistoryTokens, 20)
	assert.NotContains(t, out.History, ragtypes.Message{Role: "user", Content: long})
}

func TestBudgeter_SummaryCapKeepsMostRecentBullets(t *testing.T) {
	b := testBudgeter(config.BudgetConfig{SummaryTokenCap: 100000, MaxSummaryItems: 2})
	sections := ragtypes.ContextSections{Summary: []string{"old bullet", "mid bullet", "new bullet"}}
	out, _ := b.Apply("gpt-4o", sections)
	assert.Equal(t, []string{"mid bullet", "new bullet"}, out.Summary)
}

func TestBudgeter_WebContextTruncatesToFitCap(t *testing.T) {
	b := testBudgeter(config.BudgetConfig{WebContextMaxTok: 5})
	sections := ragtypes.ContextSections{Web: strings.Repeat("word ", 500)}
	out, budget := b.Apply("gpt-4o", sections)
	assert.LessOrEqual(t, budget.WebTokens, 5)
	assert.Less(t, len(out.Web), len(sections.Web))
}

func TestBudgeter_ZeroCapIsUnbounded(t *testing.T) {
	b := testBudgeter(config.BudgetConfig{})
	sections := ragtypes.ContextSections{Web: strings.Repeat("word ", 50)}
	out, _ := b.Apply("gpt-4o", sections)
	assert.Equal(t, sections.Web, out.Web)
}

func TestBudgeter_EmptySectionsProduceZeroBudget(t *testing.T) {
	b := testBudgeter(config.BudgetConfig{HistoryTokenCap: 10, SummaryTokenCap: 10, SalienceTokenCap: 10, WebContextMaxTok: 10})
	out, budget := b.Apply("gpt-4o", ragtypes.ContextSections{})
	assert.Equal(t, ragtypes.ContextSections{}, out)
	assert.Equal(t, ragtypes.ContextBudget{}, budget)
}

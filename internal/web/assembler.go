package web

import (
	"context"
	"fmt"

	"ragorch/internal/config"
	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

// Searcher is the capability Assembler calls into; SearchClient satisfies
// it, tests can substitute a stub.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]ragtypes.WebResult, error)
}

// Assembler is C12: runs a web search and builds a token-budgeted context
// string from the results, ordered by source rank. It satisfies
// retrieval.WebAssembler structurally without either package importing
// the other.
type Assembler struct {
	search    Searcher
	estimator *llm.Estimator
	model     string
	resultsMax int
	maxTok    int
}

// NewAssembler builds an Assembler. maxTok is the web-context token cap
// (config.BudgetConfig.WebContextMaxTok).
func NewAssembler(search Searcher, estimator *llm.Estimator, model string, resultsMax, maxTok int) *Assembler {
	if resultsMax <= 0 {
		resultsMax = 8
	}
	return &Assembler{search: search, estimator: estimator, model: model, resultsMax: resultsMax, maxTok: maxTok}
}

// NewAssemblerFromConfig is a convenience constructor wiring the web and
// budget config sections directly.
func NewAssemblerFromConfig(search Searcher, estimator *llm.Estimator, model string, webCfg config.WebConfig, budget config.BudgetConfig) *Assembler {
	return NewAssembler(search, estimator, model, webCfg.ResultsMax, budget.WebContextMaxTok)
}

// Assemble runs the search and builds contextText from the results'
// bodies (full mode) or snippets (snippet mode), stopping once the
// running token estimate would exceed maxTok. A search error is returned
// together with an empty WebContext; the dispatcher records it as an
// activity step and continues without web results.
func (a *Assembler) Assemble(ctx context.Context, query string) (ragtypes.WebContext, error) {
	results, err := a.search.Search(ctx, query, a.resultsMax)
	if err != nil {
		return ragtypes.WebContext{}, err
	}
	if len(results) == 0 {
		return ragtypes.WebContext{}, nil
	}

	var text string
	var used int
	trimmed := false
	for i, r := range results {
		body := r.Body
		if body == "" {
			body = r.Snippet
		}
		line := fmt.Sprintf("[web:%d] %s (%s)\n%s\n", i+1, r.Title, r.URL, body)
		tokens, _ := a.estimator.Estimate(a.model, line)
		if a.maxTok > 0 && used+tokens > a.maxTok && text != "" {
			trimmed = true
			break
		}
		text += line
		used += tokens
	}

	return ragtypes.WebContext{Results: results, ContextText: text, Trimmed: trimmed, Tokens: used}, nil
}

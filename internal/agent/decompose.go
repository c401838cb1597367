package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"ragorch/internal/agent/prompts"
	"ragorch/internal/config"
	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

// SubQuery is one node of a decomposed question.
type SubQuery struct {
	ID           int
	Query        string
	Dependencies []int
	Reasoning    string
}

type subQueryOutput struct {
	ID           int    `json:"id"`
	Query        string `json:"query"`
	Dependencies []int  `json:"dependencies"`
	Reasoning    string `json:"reasoning"`
}

type decomposeOutput struct {
	SubQueries      []subQueryOutput `json:"subQueries"`
	SynthesisPrompt string           `json:"synthesisPrompt"`
}

var decomposeSchema = llm.SchemaFor[decomposeOutput]()

// SubQueryResult is one sub-query's execution outcome.
type SubQueryResult struct {
	SubQuery   SubQuery
	References []ragtypes.Reference
	WebResults []ragtypes.WebResult
	Skipped    bool
}

// SubQueryRunner executes retrieval and web search for one sub-query's
// text. The orchestrator supplies an adapter backed by the retrieval
// dispatcher; decompose.go only needs this narrow capability.
type SubQueryRunner interface {
	RunSubQuery(ctx context.Context, query string) ([]ragtypes.Reference, []ragtypes.WebResult)
}

// DecomposeResult is C9's output. Active is false whenever decomposition
// was abandoned (disabled, LLM failure, or validation failure) so the
// caller falls through to the non-decomposed path.
type DecomposeResult struct {
	Active          bool
	SubQueries      []SubQuery
	SynthesisPrompt string
	Results         []SubQueryResult
	References      []ragtypes.Reference
	WebResults      []ragtypes.WebResult
	Activity        []ragtypes.ActivityStep
}

// Decomposer is C9: breaks a complex question into independent sub-queries,
// executes them in dependency order, and merges their results into a
// single synthetic dispatch result.
type Decomposer struct {
	llm                 llm.LLMClient
	model               string
	maxSubqueries       int
	complexityThreshold float64
}

// NewDecomposer builds a Decomposer.
func NewDecomposer(client llm.LLMClient, model string, cfg config.DecompositionConfig) *Decomposer {
	return &Decomposer{llm: client, model: model, maxSubqueries: cfg.MaxSubqueries, complexityThreshold: cfg.ComplexityThreshold}
}

// ShouldDecompose reports whether question clears the complexity bar for
// attempting decomposition at all.
func (d *Decomposer) ShouldDecompose(question string) bool {
	return assessComplexity(question) >= d.complexityThreshold
}

// Decompose asks the LLM to split question into sub-queries, validates the
// result, and executes it via run. A validation failure (malformed ids, a
// cycle, an out-of-bounds count) returns a zero DecomposeResult with
// Active == false and a nil error; an LLM error returns a zero
// DecomposeResult together with that error. Either way the caller keeps
// its non-decomposed fallback.
func (d *Decomposer) Decompose(ctx context.Context, question string, run SubQueryRunner) (DecomposeResult, error) {
	if d.llm == nil {
		return DecomposeResult{}, nil
	}

	req := []llm.Message{
		{Role: "system", Content: prompts.DecomposeSystemPrompt},
		{Role: "user", Content: question},
	}
	var out decomposeOutput
	if err := d.llm.Complete(ctx, req, d.model, 0, decomposeSchema, &out); err != nil {
		return DecomposeResult{}, err
	}

	subQueries := make([]SubQuery, len(out.SubQueries))
	for i, s := range out.SubQueries {
		subQueries[i] = SubQuery{ID: s.ID, Query: s.Query, Dependencies: s.Dependencies, Reasoning: s.Reasoning}
	}
	if len(subQueries) == 0 || len(subQueries) > d.maxSubqueries {
		return DecomposeResult{}, nil
	}

	levels, ok := topoLevels(subQueries)
	if !ok {
		return DecomposeResult{}, nil
	}

	results, activity := executeSubQueries(ctx, subQueries, levels, run)
	refs, webs := mergeSubQueryResults(results)

	return DecomposeResult{
		Active:          true,
		SubQueries:      subQueries,
		SynthesisPrompt: out.SynthesisPrompt,
		Results:         results,
		References:      refs,
		WebResults:      webs,
		Activity:        activity,
	}, nil
}

// topoLevels validates subQueries (unique ids, dependencies refer to
// defined ids) and groups them into levels for wave-based execution: level
// 0 has no dependencies, level N depends only on levels < N. Returns
// ok == false on a duplicate id, an undefined dependency, or a cycle.
func topoLevels(subQueries []SubQuery) ([][]int, bool) {
	byID := make(map[int]SubQuery, len(subQueries))
	for _, sq := range subQueries {
		if _, dup := byID[sq.ID]; dup {
			return nil, false
		}
		byID[sq.ID] = sq
	}
	for _, sq := range subQueries {
		for _, dep := range sq.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, false
			}
		}
	}

	indegree := make(map[int]int, len(subQueries))
	dependents := make(map[int][]int, len(subQueries))
	for _, sq := range subQueries {
		indegree[sq.ID] = len(sq.Dependencies)
		for _, dep := range sq.Dependencies {
			dependents[dep] = append(dependents[dep], sq.ID)
		}
	}

	var ready []int
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Ints(ready)

	var levels [][]int
	remaining := len(subQueries)
	for len(ready) > 0 {
		levels = append(levels, ready)
		remaining -= len(ready)
		var next []int
		for _, id := range ready {
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sort.Ints(next)
		ready = next
	}
	if remaining != 0 {
		return nil, false // cycle: some nodes never reached indegree 0
	}
	return levels, true
}

// executeSubQueries runs each level's sub-queries concurrently (members of
// one level never depend on each other by construction), recording an
// activity step per sub-query. A sub-query whose dependency failed to
// execute earlier is still run here since topoLevels already guarantees
// every dependency id is defined and reachable.
func executeSubQueries(ctx context.Context, subQueries []SubQuery, levels [][]int, run SubQueryRunner) ([]SubQueryResult, []ragtypes.ActivityStep) {
	byID := make(map[int]SubQuery, len(subQueries))
	for _, sq := range subQueries {
		byID[sq.ID] = sq
	}

	var order []SubQueryResult
	var activity []ragtypes.ActivityStep

	for _, level := range levels {
		levelResults := make([]SubQueryResult, len(level))
		var wg sync.WaitGroup
		for i, id := range level {
			sq := byID[id]
			if run == nil {
				levelResults[i] = SubQueryResult{SubQuery: sq, Skipped: true}
				continue
			}
			wg.Add(1)
			go func(i int, sq SubQuery) {
				defer wg.Done()
				refs, webRes := run.RunSubQuery(ctx, sq.Query)
				levelResults[i] = SubQueryResult{SubQuery: sq, References: refs, WebResults: webRes}
			}(i, sq)
		}
		wg.Wait()

		for i, id := range level {
			res := levelResults[i]
			order = append(order, res)
			detail := fmt.Sprintf("sub-query %d skipped: no runner configured", id)
			if !res.Skipped {
				detail = fmt.Sprintf("sub-query %d %q refs=%d web=%d", id, res.SubQuery.Query, len(res.References), len(res.WebResults))
			}
			activity = append(activity, ragtypes.ActivityStep{Type: "query_decomposition", Detail: detail})
		}
	}
	return order, activity
}

// mergeSubQueryResults concatenates every sub-query's references and web
// results, deduping references by ID and web results by URL (falling back
// to ID when URL is empty), preserving first-seen order.
func mergeSubQueryResults(results []SubQueryResult) ([]ragtypes.Reference, []ragtypes.WebResult) {
	var refs []ragtypes.Reference
	seenRef := make(map[string]bool)
	var webs []ragtypes.WebResult
	seenWeb := make(map[string]bool)

	for _, r := range results {
		for _, ref := range r.References {
			if seenRef[ref.ID] {
				continue
			}
			seenRef[ref.ID] = true
			refs = append(refs, ref)
		}
		for _, w := range r.WebResults {
			key := w.URL
			if key == "" {
				key = w.ID
			}
			if seenWeb[key] {
				continue
			}
			seenWeb[key] = true
			webs = append(webs, w)
		}
	}
	return refs, webs
}

// assessComplexity is a lightweight heuristic: longer questions and ones
// carrying comparison/conjunction language score higher. It trades
// precision for the ability to run with no dependencies beyond the
// question text itself.
func assessComplexity(question string) float64 {
	q := strings.ToLower(question)
	score := 0.0

	if words := strings.Fields(q); len(words) > 20 {
		score += 0.3
	}
	markers := []string{" and ", " vs ", " versus ", " compare ", " difference between ", " both ", " as well as ", ";", " then "}
	for _, m := range markers {
		if strings.Contains(q, m) {
			score += 0.2
			break
		}
	}
	if strings.Count(q, "?") > 1 {
		score += 0.3
	}
	if strings.Count(q, ",") >= 2 {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

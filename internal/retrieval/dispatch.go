package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ragorch/internal/config"
	"ragorch/internal/embedding"
	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

// WebAssembler is the capability C10 calls into for the web leg; defined
// here (consumer side) so this package doesn't need to import the web
// package that implements it.
type WebAssembler interface {
	Assemble(ctx context.Context, query string) (ragtypes.WebContext, error)
}

// DispatchRequest is C10's input.
type DispatchRequest struct {
	Plan     ragtypes.Plan
	Route    ragtypes.RouteMetadata
	Messages []ragtypes.Message
}

// DispatchResult is C10's output.
type DispatchResult struct {
	References     []ragtypes.Reference
	LazyReferences []ragtypes.LazyReference
	Activity       []ragtypes.ActivityStep
	WebResults     []ragtypes.WebResult
	ContextText    string
	WebContextText string
	Source         string // "kb" | "web" | "kb+web" | "none"
	RetrievalMode  string // "direct" | "lazy"
	Escalated      bool
	FallbackReason string
}

// Dispatcher is C10: decides the retrieval path (direct vs. lazy),
// threshold fallback chain, whether to invoke web search, and assembles
// the numbered context blocks handed to the synthesizer.
type Dispatcher struct {
	client    RetrievalClient
	lazy      *LazyManager
	web       WebAssembler
	embedder  embedding.Embedder
	estimator *llm.Estimator
	cfg       config.RetrievalConfig
	budget    config.BudgetConfig
	planner   config.PlannerConfig
	rerank    config.RerankConfig
	features  config.FeatureFlags
	model     string
}

// NewDispatcher builds a Dispatcher. web may be nil when no web capability
// is configured; the web leg is then skipped entirely. embedder may be
// nil too, in which case the optional KB+web semantic boost
// (features.EnableSemanticBoost) never fires even if enabled.
func NewDispatcher(client RetrievalClient, lazy *LazyManager, web WebAssembler, embedder embedding.Embedder, estimator *llm.Estimator, cfg config.RetrievalConfig, budget config.BudgetConfig, planner config.PlannerConfig, rerank config.RerankConfig, features config.FeatureFlags, model string) *Dispatcher {
	return &Dispatcher{client: client, lazy: lazy, web: web, embedder: embedder, estimator: estimator, cfg: cfg, budget: budget, planner: planner, rerank: rerank, features: features, model: model}
}

// Dispatch runs the full C10 algorithm.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) DispatchResult {
	var activity []ragtypes.ActivityStep
	record := func(typ, detail string, took time.Duration, err error) {
		step := ragtypes.ActivityStep{Type: typ, Detail: detail, TookMs: took.Milliseconds()}
		if err != nil {
			step.Err = err.Error()
		}
		activity = append(activity, step)
	}

	query := chooseQuery(req.Plan, req.Messages)
	useLazy := d.features.EnableLazyRetrieval && (req.Route.RetrieverStrategy == ragtypes.StrategyHybrid || req.Route.RetrieverStrategy == ragtypes.StrategyHybridWeb)
	escalated := req.Plan.Confidence < d.planner.ConfidenceDualRetrieval

	var (
		refs        []ragtypes.Reference
		lazyRefs    []ragtypes.LazyReference
		fallback    string
		retrievalMode = "direct"
	)

	if useLazy && d.lazy != nil {
		retrievalMode = "lazy"
		t0 := time.Now()
		lazyRefs, fallback = d.lazyChain(ctx, query)
		record("retrieval_lazy", fmt.Sprintf("query=%q count=%d", query, len(lazyRefs)), time.Since(t0), nil)
	} else {
		t0 := time.Now()
		refs, fallback = d.directChain(ctx, query)
		record("retrieval_direct", fmt.Sprintf("query=%q count=%d", query, len(refs)), time.Since(t0), nil)
	}

	wantWeb := escalated || req.Route.RetrieverStrategy == ragtypes.StrategyHybridWeb || planHasWeb(req.Plan)
	var webRes ragtypes.WebContext
	if wantWeb && d.web != nil {
		t0 := time.Now()
		res, err := d.web.Assemble(ctx, query)
		record("web_search", fmt.Sprintf("query=%q count=%d", query, len(res.Results)), time.Since(t0), err)
		if err == nil {
			webRes = res
		}
	}

	webResults := webRes.Results
	webContextText := webRes.ContextText
	if d.features.EnableWebReranking {
		t0 := time.Now()
		before := len(refs) + len(lazyRefs) + len(webResults)
		refs, lazyRefs, webResults = d.rerankKBWeb(ctx, query, refs, lazyRefs, webResults)
		record("rerank", fmt.Sprintf("rrf k=%d top_k=%d candidates=%d kept=%d", rrfK(d.rerank), d.rerank.RerankingTopK, before, len(refs)+len(lazyRefs)+len(webResults)), time.Since(t0), nil)
		webContextText = d.buildWebContext(webResults)
	}

	contextText := d.buildKBContext(refs, lazyRefs)
	source := sourceLabel(len(refs)+len(lazyRefs) > 0, len(webResults) > 0)

	return DispatchResult{
		References:     refs,
		LazyReferences: lazyRefs,
		Activity:       activity,
		WebResults:     webResults,
		ContextText:    contextText,
		WebContextText: webContextText,
		Source:         source,
		RetrievalMode:  retrievalMode,
		Escalated:      escalated,
		FallbackReason: fallback,
	}
}

// directChain runs the threshold fallback ladder: T1 -> T2 -> pure vector
// -> empty.
func (d *Dispatcher) directChain(ctx context.Context, query string) ([]ragtypes.Reference, string) {
	refs, err := d.client.HybridSearch(ctx, HybridSearchRequest{Query: query, Top: d.cfg.TopK, Threshold: d.cfg.RerankerThreshold})
	if err == nil && len(refs) >= d.cfg.MinDocs {
		return refs, ""
	}
	refs2, err := d.client.HybridSearch(ctx, HybridSearchRequest{Query: query, Top: d.cfg.TopK, Threshold: d.cfg.FallbackRerankerThreshold})
	if err == nil && len(refs2) >= d.cfg.MinDocs {
		return refs2, "threshold_t2"
	}
	refs3, err := d.client.VectorSearch(ctx, VectorSearchRequest{Query: query, Top: d.cfg.TopK})
	if err == nil && len(refs3) > 0 {
		return refs3, "pure_vector"
	}
	if len(refs2) > 0 {
		return refs2, "threshold_t2"
	}
	return nil, "no_results"
}

func (d *Dispatcher) lazyChain(ctx context.Context, query string) ([]ragtypes.LazyReference, string) {
	lazyRefs, err := d.lazy.Search(ctx, HybridSearchRequest{Query: query, Top: d.cfg.TopK, Threshold: d.cfg.RerankerThreshold})
	if err == nil && len(lazyRefs) >= d.cfg.MinDocs {
		return lazyRefs, ""
	}
	lazyRefs2, err := d.lazy.Search(ctx, HybridSearchRequest{Query: query, Top: d.cfg.TopK, Threshold: d.cfg.FallbackRerankerThreshold})
	if err == nil && len(lazyRefs2) >= d.cfg.MinDocs {
		return lazyRefs2, "threshold_t2"
	}
	refs3, err := d.client.VectorSearch(ctx, VectorSearchRequest{Query: query, Top: d.cfg.TopK})
	if err == nil && len(refs3) > 0 {
		return wrapPlain(refs3), "pure_vector"
	}
	if len(lazyRefs2) > 0 {
		return lazyRefs2, "threshold_t2"
	}
	return nil, "no_results"
}

func wrapPlain(refs []ragtypes.Reference) []ragtypes.LazyReference {
	out := make([]ragtypes.LazyReference, len(refs))
	for i, r := range refs {
		ref := r
		out[i] = ragtypes.LazyReference{Reference: ref, IsLoaded: true, LoadFull: func() (ragtypes.Reference, error) { return ref, nil }}
	}
	return out
}

// buildKBContext numbers references [1]..[N] and stops appending once the
// running token estimate would exceed KBContextMaxTok, preserving
// relevance order (the highest-ranked references are kept).
func (d *Dispatcher) buildKBContext(refs []ragtypes.Reference, lazyRefs []ragtypes.LazyReference) string {
	type item struct {
		id, text string
	}
	var items []item
	for _, r := range refs {
		items = append(items, item{r.ID, r.Content})
	}
	for _, lr := range lazyRefs {
		text := lr.Content
		if !lr.IsLoaded {
			text = lr.Summary
		}
		items = append(items, item{lr.ID, text})
	}

	maxTok := d.budget.KBContextMaxTok
	var out string
	var used int
	for i, it := range items {
		line := fmt.Sprintf("[%d] %s\n", i+1, it.text)
		tokens, _ := d.estimator.Estimate(d.model, line)
		if maxTok > 0 && used+tokens > maxTok && out != "" {
			break
		}
		out += line
		used += tokens
	}
	return out
}

// buildWebContext mirrors web.Assembler.Assemble's context-building idiom
// so a reranked/pruned web result list gets the same numbered,
// budget-trimmed block the unranked path gets from the web assembler.
func (d *Dispatcher) buildWebContext(results []ragtypes.WebResult) string {
	var out string
	var used int
	for i, r := range results {
		body := r.Body
		if body == "" {
			body = r.Snippet
		}
		line := fmt.Sprintf("[web:%d] %s (%s)\n%s\n", i+1, r.Title, r.URL, body)
		tokens, _ := d.estimator.Estimate(d.model, line)
		if d.budget.WebContextMaxTok > 0 && used+tokens > d.budget.WebContextMaxTok && out != "" {
			break
		}
		out += line
		used += tokens
	}
	return out
}

func rrfK(cfg config.RerankConfig) int {
	if cfg.RRFKConstant <= 0 {
		return 60
	}
	return cfg.RRFKConstant
}

// kbCandidate is one KB-side rerank candidate: either a plain Reference
// or a LazyReference, kept as an index back into the caller's slices so
// the reordered/pruned result can be rebuilt without copying payloads
// around more than once.
type kbCandidate struct {
	id       string
	text     string
	refIdx   int // index into refs, or -1
	lazyIdx  int // index into lazyRefs, or -1
}

// rerankKBWeb fuses the KB candidate pool (refs+lazyRefs, in their
// existing relevance order) with the web candidate pool (webResults, in
// source-rank order) via Reciprocal Rank Fusion across the two sources,
// optionally boosted by cosine similarity between query and candidate
// text when features.EnableSemanticBoost is set and an embedder is
// configured, then keeps only the top RerankingTopK overall and rebuilds
// each source's list in the fused order.
func (d *Dispatcher) rerankKBWeb(ctx context.Context, query string, refs []ragtypes.Reference, lazyRefs []ragtypes.LazyReference, webResults []ragtypes.WebResult) ([]ragtypes.Reference, []ragtypes.LazyReference, []ragtypes.WebResult) {
	if len(refs)+len(lazyRefs) == 0 || len(webResults) == 0 {
		return refs, lazyRefs, webResults
	}

	var kbCands []kbCandidate
	for i, r := range refs {
		kbCands = append(kbCands, kbCandidate{id: "kb:" + r.ID, text: r.Title + " " + r.Content, refIdx: i, lazyIdx: -1})
	}
	for i, lr := range lazyRefs {
		text := lr.Content
		if !lr.IsLoaded {
			text = lr.Summary
		}
		kbCands = append(kbCands, kbCandidate{id: "kb:" + lr.ID, text: lr.Title + " " + text, refIdx: -1, lazyIdx: i})
	}

	k := rrfK(d.rerank)

	type candidate struct {
		id     string
		source string // "kb" | "web"
		idx    int    // index into kbCands or webResults
		text   string
		fused  float64
	}
	candidates := make([]candidate, 0, len(kbCands)+len(webResults))
	for i, c := range kbCands {
		rank := i + 1
		candidates = append(candidates, candidate{id: c.id, source: "kb", idx: i, text: c.text, fused: 1.0 / float64(k+rank)})
	}
	for i, w := range webResults {
		rank := i + 1
		body := w.Body
		if body == "" {
			body = w.Snippet
		}
		candidates = append(candidates, candidate{id: "web:" + webCandidateID(w, i), source: "web", idx: i, text: w.Title + " " + body, fused: 1.0 / float64(k+rank)})
	}

	if d.features.EnableSemanticBoost && d.embedder != nil && d.rerank.SemanticBoostWeight > 0 && query != "" {
		texts := make([]string, 0, len(candidates)+1)
		texts = append(texts, query)
		for _, c := range candidates {
			texts = append(texts, c.text)
		}
		vecs, err := d.embedder.Embed(ctx, texts)
		if err == nil && len(vecs) == len(texts) {
			queryVec := vecs[0]
			w := d.rerank.SemanticBoostWeight
			for i := range candidates {
				sim := cosine(queryVec, vecs[i+1])
				candidates[i].fused = candidates[i].fused*(1-w) + sim*w
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].fused > candidates[j].fused
	})

	top := d.rerank.RerankingTopK
	if top <= 0 || top > len(candidates) {
		top = len(candidates)
	}
	candidates = candidates[:top]

	var newRefs []ragtypes.Reference
	var newLazy []ragtypes.LazyReference
	var newWeb []ragtypes.WebResult
	for _, c := range candidates {
		switch c.source {
		case "kb":
			kc := kbCands[c.idx]
			if kc.refIdx >= 0 {
				newRefs = append(newRefs, refs[kc.refIdx])
			} else {
				newLazy = append(newLazy, lazyRefs[kc.lazyIdx])
			}
		case "web":
			newWeb = append(newWeb, webResults[c.idx])
		}
	}
	return newRefs, newLazy, newWeb
}

// webCandidateID returns a stable id for a web result across the rerank
// pass: its own ID, falling back to URL, then a positional id when
// neither is set.
func webCandidateID(w ragtypes.WebResult, idx int) string {
	if w.ID != "" {
		return w.ID
	}
	if w.URL != "" {
		return w.URL
	}
	return fmt.Sprintf("pos-%d", idx)
}

func chooseQuery(plan ragtypes.Plan, messages []ragtypes.Message) string {
	for _, step := range plan.Steps {
		if step.Action == ragtypes.ActionVectorSearch && step.Query != "" {
			return step.Query
		}
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func planHasWeb(plan ragtypes.Plan) bool {
	for _, s := range plan.Steps {
		if s.Action == ragtypes.ActionWebSearch || s.Action == ragtypes.ActionBoth {
			return true
		}
	}
	return false
}

func sourceLabel(hasKB, hasWeb bool) string {
	switch {
	case hasKB && hasWeb:
		return "kb+web"
	case hasKB:
		return "kb"
	case hasWeb:
		return "web"
	default:
		return "none"
	}
}

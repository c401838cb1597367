package agent

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"

	"ragorch/internal/agent/memory"
	"ragorch/internal/config"
	"ragorch/internal/llm"
	"ragorch/internal/observability"
	"ragorch/internal/orcerr"
	"ragorch/internal/ragtypes"
	"ragorch/internal/retrieval"
)

var tracer = otel.Tracer("ragorch/agent")

// Hooks is the streaming emit seam: every pipeline stage that produces a
// session event calls the matching hook if the caller set one. A nil
// hook is simply skipped, so a caller only wires the events a given
// transport (sync endpoint, streaming endpoint, test) actually needs.
type Hooks struct {
	OnRoute          func(ragtypes.RouteMetadata)
	OnStatus         func(stage string)
	OnContext        func(ragtypes.ContextBudget)
	OnPlan           func(ragtypes.Plan)
	OnDecomposition  func(subQueries []SubQuery, synthesisPrompt string)
	OnTool           func(retrievalCount, webCount int)
	OnActivity       func([]ragtypes.ActivityStep)
	OnWebContext     func(tokens int, trimmed bool, results []ragtypes.WebResult)
	OnCitations      func([]ragtypes.Reference)
	OnToken          func(delta string)
	OnCritique       func(critique ragtypes.Critique, attempt int)
	OnLazyLoad       func(ids []string, tokensAdded int)
	OnSemanticMemory func(recalled int, entries []memory.SemanticEntry)
	OnComplete       func(answer string)
	OnTelemetry      func(ragtypes.SessionTrace)
	OnTrace          func(ragtypes.SessionTrace)
	OnError          func(message, stage string)
	OnDone           func()
}

func (h Hooks) route(r ragtypes.RouteMetadata) {
	if h.OnRoute != nil {
		h.OnRoute(r)
	}
}
func (h Hooks) status(stage string) {
	if h.OnStatus != nil {
		h.OnStatus(stage)
	}
}
func (h Hooks) context(b ragtypes.ContextBudget) {
	if h.OnContext != nil {
		h.OnContext(b)
	}
}
func (h Hooks) plan(p ragtypes.Plan) {
	if h.OnPlan != nil {
		h.OnPlan(p)
	}
}
func (h Hooks) decomposition(sq []SubQuery, prompt string) {
	if h.OnDecomposition != nil {
		h.OnDecomposition(sq, prompt)
	}
}
func (h Hooks) tool(retrievalCount, webCount int) {
	if h.OnTool != nil {
		h.OnTool(retrievalCount, webCount)
	}
}
func (h Hooks) activity(steps []ragtypes.ActivityStep) {
	if h.OnActivity != nil {
		h.OnActivity(steps)
	}
}
func (h Hooks) webContext(tokens int, trimmed bool, results []ragtypes.WebResult) {
	if h.OnWebContext != nil {
		h.OnWebContext(tokens, trimmed, results)
	}
}
func (h Hooks) citations(refs []ragtypes.Reference) {
	if h.OnCitations != nil {
		h.OnCitations(refs)
	}
}
func (h Hooks) token(delta string) {
	if h.OnToken != nil {
		h.OnToken(delta)
	}
}
func (h Hooks) critique(c ragtypes.Critique, attempt int) {
	if h.OnCritique != nil {
		h.OnCritique(c, attempt)
	}
}
func (h Hooks) lazyLoad(ids []string, tokensAdded int) {
	if h.OnLazyLoad != nil {
		h.OnLazyLoad(ids, tokensAdded)
	}
}
func (h Hooks) semanticMemory(recalled int, entries []memory.SemanticEntry) {
	if h.OnSemanticMemory != nil {
		h.OnSemanticMemory(recalled, entries)
	}
}
func (h Hooks) complete(answer string) {
	if h.OnComplete != nil {
		h.OnComplete(answer)
	}
}
func (h Hooks) telemetry(t ragtypes.SessionTrace) {
	if h.OnTelemetry != nil {
		h.OnTelemetry(t)
	}
}
func (h Hooks) trace(t ragtypes.SessionTrace) {
	if h.OnTrace != nil {
		h.OnTrace(t)
	}
}
func (h Hooks) error(message, stage string) {
	if h.OnError != nil {
		h.OnError(message, stage)
	}
}
func (h Hooks) done() {
	if h.OnDone != nil {
		h.OnDone()
	}
}

// RunRequest is C15's input: the full conversation so far (the latest
// user turn is the question) plus the session/user identifiers memory is
// scoped to.
type RunRequest struct {
	SessionID string
	UserID    string
	Messages  []ragtypes.Message
}

// Engine is C15, the session orchestrator: it owns the critic loop and
// the once-per-session lazy-upgrade feedback between critic and
// retrieval, and drives every other component in dependency order.
// Engine is built with the teacher's functional-options pattern so a
// caller only wires the capabilities a given deployment actually has
// (e.g. no web search, no semantic memory).
type Engine struct {
	router      *Router
	compactor   *memory.Compactor
	shortTerm   *memory.ShortTermStore
	semantic    *memory.SemanticStore
	selector    *Selector
	budgeter    *Budgeter
	planner     *Planner
	decomposer  *Decomposer
	dispatcher  *retrieval.Dispatcher
	synthesizer *Synthesizer
	critic      *Critic
	estimator   *llm.Estimator

	features config.FeatureFlags
	budget   config.BudgetConfig
	planCfg  config.PlannerConfig
	retrCfg  config.RetrievalConfig
	memCfg   config.MemoryConfig
}

// Selector is an alias so engine.go can refer to C6 without importing the
// memory package under a second name at every call site.
type Selector = memory.Selector

// Option configures an Engine at construction time.
type Option func(*Engine)

func WithRouter(r *Router) Option            { return func(e *Engine) { e.router = r } }
func WithCompactor(c *memory.Compactor) Option { return func(e *Engine) { e.compactor = c } }
func WithShortTermStore(s *memory.ShortTermStore) Option {
	return func(e *Engine) { e.shortTerm = s }
}
func WithSemanticStore(s *memory.SemanticStore) Option { return func(e *Engine) { e.semantic = s } }
func WithSelector(s *Selector) Option                  { return func(e *Engine) { e.selector = s } }
func WithBudgeter(b *Budgeter) Option                  { return func(e *Engine) { e.budgeter = b } }
func WithPlanner(p *Planner) Option                    { return func(e *Engine) { e.planner = p } }
func WithDecomposer(d *Decomposer) Option              { return func(e *Engine) { e.decomposer = d } }
func WithDispatcher(d *retrieval.Dispatcher) Option    { return func(e *Engine) { e.dispatcher = d } }
func WithSynthesizer(s *Synthesizer) Option            { return func(e *Engine) { e.synthesizer = s } }
func WithCritic(c *Critic) Option                      { return func(e *Engine) { e.critic = c } }
func WithEstimator(est *llm.Estimator) Option          { return func(e *Engine) { e.estimator = est } }
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.features = cfg.Features
		e.budget = cfg.Budget
		e.planCfg = cfg.Planner
		e.retrCfg = cfg.Retrieval
		e.memCfg = cfg.Memory
	}
}

// NewEngine builds an Engine from options. A nil shortTerm/estimator is
// replaced with a usable zero-configuration default so a caller that
// skips them still gets a working (if unbounded) orchestrator.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.shortTerm == nil {
		e.shortTerm = memory.NewShortTermStore(0, 0)
	}
	if e.estimator == nil {
		e.estimator = llm.NewEstimator(config.TokenEstimatorConfig{Strategy: "heuristic"})
	}
	return e
}

// Run drives one full session turn: route, compact+recall memory, select
// summaries, assemble+budget context, plan, optionally decompose,
// dispatch retrieval, run the critic loop (with at most one lazy
// upgrade), persist memory softly, and assemble the final response and
// trace. hooks may be the zero value for a purely synchronous call, or
// have OnToken set to drive the streaming synthesis path.
func (e *Engine) Run(ctx context.Context, req RunRequest, hooks Hooks) (*ragtypes.ChatResponse, *ragtypes.SessionTrace, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = deterministicSessionID(req.Messages)
	}
	ctx, span := tracer.Start(ctx, "session")
	defer span.End()

	trace := &ragtypes.SessionTrace{SessionID: sessionID}
	question := lastUserMessage(req.Messages)
	log := observability.LoggerWithTrace(ctx)

	if e.synthesizer == nil || e.dispatcher == nil {
		err := fmt.Errorf("%w: engine is missing a required component (synthesizer/dispatcher)", orcerr.Config)
		trace.Err = err.Error()
		hooks.error(err.Error(), "config")
		hooks.done()
		return nil, trace, err
	}

	// Step 2: route.
	hooks.status("route")
	route := e.routeTurn(ctx, req.Messages)
	trace.Route = route
	hooks.route(route)

	// Step 3: compact history + load/recall memory.
	hooks.status("compact")
	snapshot := e.shortTerm.Load(sessionID, 0)
	priorBullets := bulletTexts(snapshot.SummaryBullets)
	compactResult := e.compact(ctx, req.Messages, priorBullets, snapshot.SalienceNotes)
	updated := e.shortTerm.Upsert(sessionID, len(req.Messages), compactResult.SummaryBullets, compactResult.SalienceNotes)

	salience := append([]string{}, updated.SalienceNotes...)
	if e.features.EnableSemanticMemory && e.semantic != nil {
		hooks.status("recall")
		entries, _ := e.semantic.Recall(ctx, question, memory.RecallFilter{
			K:             e.memCfg.RecallK,
			SessionID:     sessionID,
			MinSimilarity: e.memCfg.MinSimilarity,
			MaxAgeDays:    e.memCfg.PruneAgeDays,
		})
		hooks.semanticMemory(len(entries), entries)
		for _, entry := range entries {
			salience = append(salience, entry.Text)
		}
	}

	// Step 4: select summaries.
	var selected []string
	if e.selector != nil {
		selRes := e.selector.Select(ctx, question, updated.SummaryBullets, e.budget.MaxSummaryItems)
		selected = selRes.Selected
	} else {
		selected = bulletTexts(updated.SummaryBullets)
	}

	// Step 5: assemble + budget context.
	sections := ragtypes.ContextSections{
		History:  recentAsRagtypes(compactResult.Recent),
		Summary:  selected,
		Salience: salience,
	}
	budgeted := sections
	budget := ragtypes.ContextBudget{}
	if e.budgeter != nil {
		budgeted, budget = e.budgeter.Apply(route.Model, sections)
	}
	trace.Budget = budget
	hooks.context(budget)

	// Step 6: plan.
	hooks.status("plan")
	plan := e.planTurn(ctx, question, joinTextSections(budgeted))
	trace.Plan = plan
	hooks.plan(plan)

	// Step 7: decompose, if the question clears the complexity bar.
	var (
		refs           []ragtypes.Reference
		lazyRefs       []ragtypes.LazyReference
		webResults     []ragtypes.WebResult
		contextText    string
		webContextText string
	)
	decomposed := false
	if e.features.EnableQueryDecomposition && e.decomposer != nil && e.decomposer.ShouldDecompose(question) {
		hooks.status("decompose")
		runner := &dispatchSubQueryRunner{dispatcher: e.dispatcher, route: route}
		decResult, err := e.decomposer.Decompose(ctx, question, runner)
		if err != nil {
			log.Warn().Err(err).Msg("query_decomposition_failed")
		}
		if decResult.Active {
			decomposed = true
			trace.Activity = append(trace.Activity, decResult.Activity...)
			hooks.decomposition(decResult.SubQueries, decResult.SynthesisPrompt)
			refs = decResult.References
			webResults = decResult.WebResults
			contextText = e.buildKBContextText(route.Model, refs, nil)
			webContextText = buildWebContextText(webResults)
			hooks.tool(len(refs), len(webResults))
			hooks.activity(decResult.Activity)
			hooks.webContext(e.estimateTokens(route.Model, webContextText), false, webResults)
		}
	}

	// Step 8: dispatch retrieval (+ web), unless decomposition already did it.
	if !decomposed {
		hooks.status("dispatch")
		dispatchResult := e.dispatcher.Dispatch(ctx, retrieval.DispatchRequest{Plan: plan, Route: route, Messages: req.Messages})
		trace.Activity = append(trace.Activity, dispatchResult.Activity...)
		trace.Escalated = dispatchResult.Escalated
		trace.FallbackReason = dispatchResult.FallbackReason
		refs = dispatchResult.References
		lazyRefs = dispatchResult.LazyReferences
		webResults = dispatchResult.WebResults
		contextText = dispatchResult.ContextText
		webContextText = dispatchResult.WebContextText
		hooks.tool(len(refs)+len(lazyRefs), len(webResults))
		hooks.activity(dispatchResult.Activity)
		hooks.webContext(e.estimateTokens(route.Model, webContextText), false, webResults)
	}

	// Step 9: critic loop, with at most one lazy upgrade.
	hooks.status("synthesize")
	answer, critiqueHistory, criticError, err := e.criticLoop(ctx, question, &contextText, &webContextText, &lazyRefs, route, hooks)
	if err != nil {
		trace.Err = err.Error()
		hooks.error(err.Error(), "synthesize")
		hooks.done()
		return nil, trace, err
	}
	trace.CritiqueHistory = critiqueHistory
	trace.CriticError = criticError

	// Step 10: persist memory (soft).
	if answer != ragtypes.NoEvidenceAnswer && e.features.EnableSemanticMemory && e.semantic != nil {
		hooks.status("persist_memory")
		var last ragtypes.Critique
		if len(critiqueHistory) > 0 {
			last = critiqueHistory[len(critiqueHistory)-1]
		}
		metadata := map[string]string{
			"coverage":   fmt.Sprintf("%.3f", last.Coverage),
			"confidence": fmt.Sprintf("%.3f", plan.Confidence),
		}
		text := "Q: " + question + " A: " + answer
		if _, err := e.semantic.Add(ctx, text, "episodic", metadata, sessionID, req.UserID, nil); err != nil {
			log.Warn().Err(err).Msg("semantic_memory_persist_failed")
		}
	}

	// Step 11: assemble response + trace.
	citations := mergeCitations(refs, lazyRefs)
	hooks.citations(citations)

	var criticReport *ragtypes.Critique
	if len(critiqueHistory) > 0 {
		last := critiqueHistory[len(critiqueHistory)-1]
		criticReport = &last
	}
	resp := &ragtypes.ChatResponse{
		Answer:    answer,
		Citations: citations,
		Activity:  trace.Activity,
		Metadata: ragtypes.ChatResponseMetadata{
			Plan:          plan,
			ContextBudget: budget,
			CriticReport:  criticReport,
			Route:         &route,
		},
	}

	hooks.complete(answer)
	hooks.telemetry(*trace)
	hooks.trace(*trace)
	hooks.done()
	return resp, trace, nil
}

// RunSession is the synchronous entry point: no partial output is visible
// to the caller until it returns.
func (e *Engine) RunSession(ctx context.Context, req RunRequest) (*ragtypes.ChatResponse, *ragtypes.SessionTrace, error) {
	return e.Run(ctx, req, Hooks{})
}

// RunSessionStream is the streaming entry point: hooks.OnToken (at
// minimum) should be set so the caller observes incremental synthesis
// output; every other hook is optional.
func (e *Engine) RunSessionStream(ctx context.Context, req RunRequest, hooks Hooks) (*ragtypes.ChatResponse, *ragtypes.SessionTrace, error) {
	return e.Run(ctx, req, hooks)
}

func (e *Engine) routeTurn(ctx context.Context, messages []ragtypes.Message) ragtypes.RouteMetadata {
	ctx, span := tracer.Start(ctx, "route")
	defer span.End()
	if e.router == nil {
		return ragtypes.RouteMetadata{Intent: ragtypes.IntentResearch, RetrieverStrategy: ragtypes.StrategyHybridWeb, Model: "default"}
	}
	return e.router.Route(ctx, messages)
}

func (e *Engine) compact(ctx context.Context, messages []ragtypes.Message, priorBullets, priorSalience []string) memory.CompactResult {
	ctx, span := tracer.Start(ctx, "compact")
	defer span.End()
	if e.compactor == nil {
		return memory.CompactResult{Recent: toLLMMessages(messages), SummaryBullets: priorBullets, SalienceNotes: priorSalience}
	}
	return e.compactor.Compact(ctx, toLLMMessages(messages), 0, priorBullets, priorSalience)
}

func (e *Engine) planTurn(ctx context.Context, question, contextText string) ragtypes.Plan {
	ctx, span := tracer.Start(ctx, "plan")
	defer span.End()
	if e.planner == nil {
		return fallbackPlan(question)
	}
	plan, err := e.planner.Plan(ctx, question, contextText)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("planning_failed")
	}
	return plan
}

// criticLoop runs C13's synthesis through at most CriticMaxRetries+1
// attempts, consulting C14 after each attempt. It may perform the
// once-per-session lazy upgrade described by the spec's state machine:
// when coverage is below the lazy-load threshold and unloaded lazy
// references remain, it loads them all, rebuilds contextText, and
// retries without treating that round as a critique-driven revision.
func (e *Engine) criticLoop(ctx context.Context, question string, contextText, webContextText *string, lazyRefs *[]ragtypes.LazyReference, route ragtypes.RouteMetadata, hooks Hooks) (string, []ragtypes.Critique, bool, error) {
	ctx, span := tracer.Start(ctx, "synthesize")
	defer span.End()

	maxIter := e.planCfg.CriticMaxRetries + 1
	if maxIter <= 0 {
		maxIter = 1
	}

	var (
		answer         string
		revisionNotes  []string
		critiqueHist   []ragtypes.Critique
		criticError    bool
		lazyUpgraded   bool
	)

	for attempt := 0; attempt < maxIter; attempt++ {
		req := SynthesisRequest{
			Question:       question,
			ContextText:    *contextText,
			WebContextText: *webContextText,
			RevisionNotes:  revisionNotes,
			Model:          route.Model,
			MaxTokens:      route.MaxTokens,
		}

		// While the critic may still ask for another attempt, this attempt's
		// deltas are held in pending and forwarded only if it is kept, so a
		// superseded attempt's tokens never reach hooks.token.
		var pending []string
		buffered := hooks.OnToken != nil && e.features.EnableCritic && e.critic != nil && attempt < maxIter-1
		var err error
		switch {
		case buffered:
			answer, err = e.synthesizer.SynthesizeStream(ctx, req, func(d string) { pending = append(pending, d) })
		case hooks.OnToken != nil:
			answer, err = e.synthesizer.SynthesizeStream(ctx, req, hooks.token)
		default:
			answer, err = e.synthesizer.Synthesize(ctx, req)
		}
		if err != nil {
			return "", critiqueHist, criticError, err
		}

		if !e.features.EnableCritic || e.critic == nil {
			break
		}

		critique, err := e.critic.Critique(ctx, question, *contextText+*webContextText, answer)
		if err != nil {
			criticError = true
		}
		critiqueHist = append(critiqueHist, critique)
		hooks.critique(critique, attempt)

		last := attempt == maxIter-1
		if critique.Action == ragtypes.CritiqueAccept || critique.Coverage >= e.planCfg.CriticThreshold || last {
			for _, d := range pending {
				hooks.token(d)
			}
			break
		}

		if !lazyUpgraded && critique.Coverage < e.retrCfg.LazyLoadThreshold && hasUnloaded(*lazyRefs) {
			lazyUpgraded = true
			ids, tokensAdded := e.upgradeLazy(ctx, lazyRefs, route.Model)
			*contextText = e.buildKBContextText(route.Model, nil, *lazyRefs)
			hooks.lazyLoad(ids, tokensAdded)
			continue
		}

		revisionNotes = critique.Issues
	}

	return answer, critiqueHist, criticError, nil
}

// upgradeLazy loads every not-yet-loaded lazy reference concurrently and
// replaces it in place with its fully-loaded form.
func (e *Engine) upgradeLazy(ctx context.Context, lazyRefs *[]ragtypes.LazyReference, model string) ([]string, int) {
	refs := *lazyRefs
	var wg sync.WaitGroup
	for i := range refs {
		if refs[i].IsLoaded || refs[i].LoadFull == nil {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			full, err := refs[i].LoadFull()
			if err != nil {
				return
			}
			refs[i].Reference = full
			refs[i].IsLoaded = true
		}(i)
	}
	wg.Wait()

	var ids []string
	tokensAdded := 0
	for _, r := range refs {
		if r.IsLoaded {
			ids = append(ids, r.ID)
			n, _ := e.estimator.Estimate(model, r.Content)
			tokensAdded += n
		}
	}
	*lazyRefs = refs
	return ids, tokensAdded
}

// buildKBContextText numbers plain references and loaded/summary lazy
// references into the same "[n] text" shape the dispatcher builds,
// capped at the configured KB context token budget. Used when the
// engine needs to rebuild context outside the dispatcher's own call (the
// decomposed path, and after a lazy upgrade).
func (e *Engine) buildKBContextText(model string, refs []ragtypes.Reference, lazyRefs []ragtypes.LazyReference) string {
	type item struct{ text string }
	var items []item
	for _, r := range refs {
		items = append(items, item{r.Content})
	}
	for _, lr := range lazyRefs {
		text := lr.Content
		if !lr.IsLoaded {
			text = lr.Summary
		}
		items = append(items, item{text})
	}

	maxTok := e.budget.KBContextMaxTok
	var out string
	var used int
	for i, it := range items {
		line := fmt.Sprintf("[%d] %s\n", i+1, it.text)
		tokens := e.estimateTokens(model, line)
		if maxTok > 0 && used+tokens > maxTok && out != "" {
			break
		}
		out += line
		used += tokens
	}
	return out
}

func (e *Engine) estimateTokens(model, text string) int {
	if e.estimator == nil || text == "" {
		return 0
	}
	n, _ := e.estimator.Estimate(model, text)
	return n
}

// dispatchSubQueryRunner adapts the dispatcher to C9's SubQueryRunner
// capability: each sub-query runs through the same single-step dispatch
// path a non-decomposed question would, scoped to a synthetic
// vector_search plan for that sub-query's text.
type dispatchSubQueryRunner struct {
	dispatcher *retrieval.Dispatcher
	route      ragtypes.RouteMetadata
}

func (r *dispatchSubQueryRunner) RunSubQuery(ctx context.Context, query string) ([]ragtypes.Reference, []ragtypes.WebResult) {
	if r.dispatcher == nil {
		return nil, nil
	}
	plan := ragtypes.Plan{Confidence: 1, Steps: []ragtypes.PlanStep{{Action: ragtypes.ActionVectorSearch, Query: query}}}
	messages := []ragtypes.Message{{Role: "user", Content: query}}
	result := r.dispatcher.Dispatch(ctx, retrieval.DispatchRequest{Plan: plan, Route: r.route, Messages: messages})
	refs := append([]ragtypes.Reference{}, result.References...)
	for _, lr := range result.LazyReferences {
		ref := lr.Reference
		if !lr.IsLoaded {
			ref.Content = lr.Summary
		}
		refs = append(refs, ref)
	}
	return refs, result.WebResults
}

func hasUnloaded(lazyRefs []ragtypes.LazyReference) bool {
	for _, lr := range lazyRefs {
		if !lr.IsLoaded {
			return true
		}
	}
	return false
}

func mergeCitations(refs []ragtypes.Reference, lazyRefs []ragtypes.LazyReference) []ragtypes.Reference {
	out := append([]ragtypes.Reference{}, refs...)
	for _, lr := range lazyRefs {
		ref := lr.Reference
		if !lr.IsLoaded {
			ref.Content = lr.Summary
		}
		out = append(out, ref)
	}
	return out
}

func buildWebContextText(results []ragtypes.WebResult) string {
	var out string
	for i, r := range results {
		body := r.Body
		if body == "" {
			body = r.Snippet
		}
		out += fmt.Sprintf("[web:%d] %s (%s)\n%s\n", i+1, r.Title, r.URL, body)
	}
	return out
}

func joinTextSections(sections ragtypes.ContextSections) string {
	out := ""
	for _, s := range sections.Summary {
		out += s + "\n"
	}
	for _, s := range sections.Salience {
		out += s + "\n"
	}
	return out
}

func bulletTexts(bullets []memory.SummaryBullet) []string {
	out := make([]string, len(bullets))
	for i, b := range bullets {
		out[i] = b.Text
	}
	return out
}

func toLLMMessages(messages []ragtypes.Message) []llm.Message {
	out := make([]llm.Message, len(messages))
	for i, m := range messages {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func recentAsRagtypes(messages []llm.Message) []ragtypes.Message {
	out := make([]ragtypes.Message, len(messages))
	for i, m := range messages {
		out[i] = ragtypes.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// deterministicSessionID derives a stable id from the conversation when
// the caller doesn't supply one, so retried calls with the same
// conversation prefix land on the same short-term memory bucket.
func deterministicSessionID(messages []ragtypes.Message) string {
	h := fnv64a()
	for _, m := range messages {
		h = fnv64aWrite(h, m.Role)
		h = fnv64aWrite(h, m.Content)
	}
	return fmt.Sprintf("sess-%x", h)
}

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

func fnv64a() uint64 { return fnvOffset64 }

func fnv64aWrite(h uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}


package agent

import (
	"context"
	"fmt"

	"ragorch/internal/agent/prompts"
	"ragorch/internal/config"
	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

// routeOutput is the schema-validated shape the LLM returns for C7.
type routeOutput struct {
	Intent     string  `json:"intent" jsonschema:"enum=faq,enum=research,enum=factual_lookup,enum=conversational"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

var routeSchema = llm.SchemaFor[routeOutput]()

// routeDecision is one intent's routing outcome: which retrieval strategy
// to run and the output token cap for that turn.
type routeDecision struct {
	strategy  ragtypes.RetrieverStrategy
	maxTokens int
}

// buildIntentTable maps each closed intent to its routing decision from
// cfg, config-driven so the per-intent token caps can be tuned without a
// code change.
func buildIntentTable(cfg config.RouterConfig) map[ragtypes.Intent]routeDecision {
	return map[ragtypes.Intent]routeDecision{
		ragtypes.IntentFAQ:            {ragtypes.StrategyVector, cfg.FAQMaxTokens},
		ragtypes.IntentFactualLookup:  {ragtypes.StrategyHybrid, cfg.FactualLookupMaxTokens},
		ragtypes.IntentResearch:       {ragtypes.StrategyHybridWeb, cfg.ResearchMaxTokens},
		ragtypes.IntentConversational: {ragtypes.StrategyVector, cfg.ConversationalMaxTokens},
	}
}

// Router is C7: classifies the user's turn into one of a closed set of
// intents and maps that classification to a model tier, retrieval
// strategy, and output token cap. Disabled via
// FeatureFlags.EnableIntentRouting, in which case Route always returns the
// research/hybrid+web default so downstream components see one consistent
// strategy.
type Router struct {
	llm         llm.LLMClient
	llmCfg      config.LLMConfig
	enabled     bool
	intentTable map[ragtypes.Intent]routeDecision
	fallbackCap int
}

// NewRouter builds a Router. The per-intent token caps come from
// routerCfg rather than being hardcoded, so operators can retune them
// without a redeploy.
func NewRouter(client llm.LLMClient, llmCfg config.LLMConfig, routerCfg config.RouterConfig, enabled bool) *Router {
	return &Router{
		llm:         client,
		llmCfg:      llmCfg,
		enabled:     enabled,
		intentTable: buildIntentTable(routerCfg),
		fallbackCap: routerCfg.ResearchMaxTokens,
	}
}

// Route classifies messages and returns C7's routing metadata. A
// classification failure (disabled, nil client, or LLM error) degrades to
// the research/hybrid+web default rather than aborting the session —
// routing only ever narrows the pipeline, so the safe failure mode is the
// widest strategy.
func (r *Router) Route(ctx context.Context, messages []ragtypes.Message) ragtypes.RouteMetadata {
	if !r.enabled || r.llm == nil {
		return r.fallback("intent routing disabled")
	}

	query := lastUserMessage(messages)
	req := []llm.Message{
		{Role: "system", Content: prompts.RouteSystemPrompt},
		{Role: "user", Content: query},
	}

	var out routeOutput
	if err := r.llm.Complete(ctx, req, r.llmCfg.SmallModel, 0, routeSchema, &out); err != nil {
		return r.fallback(fmt.Sprintf("route classification failed: %v", err))
	}

	intent := ragtypes.Intent(out.Intent)
	decision, ok := r.intentTable[intent]
	if !ok {
		return r.fallback(fmt.Sprintf("unrecognized intent %q", out.Intent))
	}

	model := r.llmCfg.SmallModel
	if intent == ragtypes.IntentResearch {
		model = r.llmCfg.LargeModel
	}

	return ragtypes.RouteMetadata{
		Intent:            intent,
		Confidence:        out.Confidence,
		Reasoning:         out.Reasoning,
		Model:             model,
		RetrieverStrategy: decision.strategy,
		MaxTokens:         decision.maxTokens,
	}
}

func (r *Router) fallback(reason string) ragtypes.RouteMetadata {
	return ragtypes.RouteMetadata{
		Intent:            ragtypes.IntentResearch,
		Confidence:        0,
		Reasoning:         reason,
		Model:             r.llmCfg.LargeModel,
		RetrieverStrategy: ragtypes.StrategyHybridWeb,
		MaxTokens:         r.fallbackCap,
	}
}

func lastUserMessage(messages []ragtypes.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// Package config loads the typed configuration for the orchestration
// pipeline: feature flags, per-section token budgets, retrieval/planner/
// critic/rerank/decomposition tunables, and the ambient logging/tracing/
// embedding settings. All options default per spec.md §6; nothing is
// required to be set for the process to start.
package config

import (
	"fmt"

	"ragorch/internal/orcerr"
)

// FeatureFlags toggles optional pipeline stages. All default false except
// EnableCritic and EnableIntentRouting, which Default sets true.
type FeatureFlags struct {
	EnableCritic             bool `yaml:"enable_critic"`
	EnableIntentRouting      bool `yaml:"enable_intent_routing"`
	EnableLazyRetrieval      bool `yaml:"enable_lazy_retrieval"`
	EnableSemanticSummary    bool `yaml:"enable_semantic_summary"`
	EnableSemanticMemory     bool `yaml:"enable_semantic_memory"`
	EnableQueryDecomposition bool `yaml:"enable_query_decomposition"`
	EnableWebReranking       bool `yaml:"enable_web_reranking"`
	EnableSemanticBoost      bool `yaml:"enable_semantic_boost"`
	EnableResultDiversify    bool `yaml:"enable_result_diversify"` // loaded, but no component reads it
}

// BudgetConfig holds the per-section token caps applied by C2.
type BudgetConfig struct {
	HistoryTokenCap   int `yaml:"context_history_token_cap"`
	SummaryTokenCap   int `yaml:"context_summary_token_cap"`
	SalienceTokenCap  int `yaml:"context_salience_token_cap"`
	WebContextMaxTok  int `yaml:"web_context_max_tokens"`
	KBContextMaxTok   int `yaml:"kb_context_max_tokens"`
	MaxRecentTurns    int `yaml:"context_max_recent_turns"`
	MaxSummaryItems   int `yaml:"context_max_summary_items"`
	MaxSalienceItems  int `yaml:"context_max_salience_items"`
}

// RetrievalConfig tunes C10/C11.
type RetrievalConfig struct {
	TopK                      int     `yaml:"rag_top_k"`
	RerankerThreshold         float64 `yaml:"reranker_threshold"`
	MinDocs                   int     `yaml:"retrieval_min_docs"`
	FallbackRerankerThreshold float64 `yaml:"retrieval_fallback_reranker_threshold"`
	LazySummaryMaxChars       int     `yaml:"lazy_summary_max_chars"`
	LazyPrefetchCount         int     `yaml:"lazy_prefetch_count"`
	LazyLoadThreshold         float64 `yaml:"lazy_load_threshold"`

	// VectorBackend selects the vector store: "memory" (default) or "qdrant".
	VectorBackend     string `yaml:"vector_backend"`
	VectorDSN         string `yaml:"vector_dsn"`
	VectorCollection  string `yaml:"vector_collection"`
	VectorDimensions  int    `yaml:"vector_dimensions"`
	VectorMetric      string `yaml:"vector_metric"`
}

// WebConfig tunes C12.
type WebConfig struct {
	ResultsMax int    `yaml:"web_results_max"`
	Mode       string `yaml:"web_search_mode"` // "snippet" | "full"

	SearXNGURL        string `yaml:"searxng_url"`
	RequestsPerSecond float64 `yaml:"web_requests_per_second"`
	BurstSize         int    `yaml:"web_burst_size"`
	FetchTimeoutMS    int    `yaml:"web_fetch_timeout_ms"`
	FetchMaxBytes     int64  `yaml:"web_fetch_max_bytes"`
}

// PlannerConfig tunes C8 and the critic loop (C14/C15).
type PlannerConfig struct {
	ConfidenceDualRetrieval float64 `yaml:"planner_confidence_dual_retrieval"`
	CriticMaxRetries        int     `yaml:"critic_max_retries"`
	CriticThreshold         float64 `yaml:"critic_threshold"`
}

// RerankConfig tunes the RRF fusion pass (and its optional semantic
// boost) in C10.
type RerankConfig struct {
	RRFKConstant        int     `yaml:"rrf_k_constant"`
	RerankingTopK       int     `yaml:"reranking_top_k"`
	SemanticBoostWeight float64 `yaml:"semantic_boost_weight"`
}

// RouterConfig tunes C7's per-intent routing decisions: the output token
// cap applied at synthesis for each closed intent.
type RouterConfig struct {
	FAQMaxTokens            int `yaml:"router_faq_max_tokens"`
	ResearchMaxTokens       int `yaml:"router_research_max_tokens"`
	FactualLookupMaxTokens  int `yaml:"router_factual_lookup_max_tokens"`
	ConversationalMaxTokens int `yaml:"router_conversational_max_tokens"`
}

// DecompositionConfig tunes C9.
type DecompositionConfig struct {
	ComplexityThreshold float64 `yaml:"decomposition_complexity_threshold"`
	MaxSubqueries       int     `yaml:"decomposition_max_subqueries"`
}

// MemoryConfig tunes C4/C5.
type MemoryConfig struct {
	RecallK         int     `yaml:"semantic_memory_recall_k"`
	MinSimilarity   float64 `yaml:"semantic_memory_min_similarity"`
	PruneAgeDays    int     `yaml:"semantic_memory_prune_age_days"`
	PruneMinUsage   int     `yaml:"semantic_memory_prune_min_usage"`
	Backend         string  `yaml:"semantic_memory_backend"` // not read: the semantic store is always in-process
}

// EmbeddingConfig configures the Embedder capability's HTTP backend.
type EmbeddingConfig struct {
	BaseURL         string            `yaml:"base_url"`
	Path            string            `yaml:"path"`
	Model           string            `yaml:"model"`
	APIHeader       string            `yaml:"api_header"`
	APIKey          string            `yaml:"api_key"`
	Headers         map[string]string `yaml:"headers"`
	Timeout         int               `yaml:"timeout_seconds"`
	Dimensions      int               `yaml:"dimensions"`
	SingleInputOnly bool              `yaml:"single_input_only"`
}

// TokenEstimatorConfig selects C1's counting strategy.
type TokenEstimatorConfig struct {
	Strategy string `yaml:"strategy"` // "heuristic" | "tiktoken"
}

// LLMConfig selects the default model tiers used by C7's routing table.
type LLMConfig struct {
	Provider   string `yaml:"provider"` // not read: internal/llm/openai is the only provider
	SmallModel string `yaml:"small_model"`
	LargeModel string `yaml:"large_model"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
}

// ObsConfig configures OpenTelemetry export; empty OTLP disables it.
type ObsConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
	OTLP           string `yaml:"otlp_endpoint"`
}

// Config is the root configuration object, composed the way the teacher
// composes its own Config: one nested struct per concern.
type Config struct {
	LogPath            string `yaml:"log_path"`
	LogLevel           string `yaml:"log_level"`
	RequestTimeoutMS   int    `yaml:"request_timeout_ms"`

	Features      FeatureFlags         `yaml:"features"`
	Budget        BudgetConfig         `yaml:"budget"`
	Retrieval     RetrievalConfig      `yaml:"retrieval"`
	Web           WebConfig            `yaml:"web"`
	Planner       PlannerConfig        `yaml:"planner"`
	Router        RouterConfig         `yaml:"router"`
	Rerank        RerankConfig         `yaml:"rerank"`
	Decomposition DecompositionConfig  `yaml:"decomposition"`
	Memory        MemoryConfig         `yaml:"memory"`
	Embedding     EmbeddingConfig      `yaml:"embedding"`
	TokenEstimator TokenEstimatorConfig `yaml:"token_estimator"`
	LLM           LLMConfig            `yaml:"llm"`
	Obs           ObsConfig            `yaml:"obs"`
}

// Default returns the configuration defaulted per spec.md §6 / SPEC_FULL.md
// §10-§11, with nothing loaded from disk or env.
func Default() Config {
	return Config{
		LogLevel:         "info",
		RequestTimeoutMS: 60_000,
		Features: FeatureFlags{
			EnableCritic:        true,
			EnableIntentRouting: true,
		},
		Budget: BudgetConfig{
			HistoryTokenCap:  1800,
			SummaryTokenCap:  600,
			SalienceTokenCap: 400,
			WebContextMaxTok: 8000,
			KBContextMaxTok:  4000,
			MaxRecentTurns:   12,
			MaxSummaryItems:  6,
			MaxSalienceItems: 6,
		},
		Retrieval: RetrievalConfig{
			TopK:                      5,
			RerankerThreshold:         3.0,
			MinDocs:                   3,
			FallbackRerankerThreshold: 2.0,
			LazySummaryMaxChars:       300,
			LazyPrefetchCount:         10,
			LazyLoadThreshold:         0.5,
			VectorBackend:             "memory",
			VectorCollection:          "ragorch",
			VectorDimensions:          1536,
			VectorMetric:              "cosine",
		},
		Web: WebConfig{
			ResultsMax:        8,
			Mode:              "snippet",
			SearXNGURL:        "http://localhost:8888",
			RequestsPerSecond: 1.0,
			BurstSize:         3,
			FetchTimeoutMS:    15_000,
			FetchMaxBytes:     2 << 20,
		},
		Planner: PlannerConfig{
			ConfidenceDualRetrieval: 0.45,
			CriticMaxRetries:        2,
			CriticThreshold:         0.75,
		},
		Router: RouterConfig{
			FAQMaxTokens:            500,
			ResearchMaxTokens:       2000,
			FactualLookupMaxTokens:  600,
			ConversationalMaxTokens: 400,
		},
		Rerank: RerankConfig{
			RRFKConstant:        60,
			RerankingTopK:       10,
			SemanticBoostWeight: 0.3,
		},
		Decomposition: DecompositionConfig{
			ComplexityThreshold: 0.6,
			MaxSubqueries:       8,
		},
		Memory: MemoryConfig{
			RecallK:       3,
			MinSimilarity: 0.6,
			PruneAgeDays:  90,
			PruneMinUsage: 0,
			Backend:       "memory",
		},
		TokenEstimator: TokenEstimatorConfig{Strategy: "heuristic"},
		LLM: LLMConfig{
			Provider:   "openai",
			SmallModel: "gpt-4o-mini",
			LargeModel: "gpt-4o",
		},
		Obs: ObsConfig{ServiceName: "ragorch", ServiceVersion: "0.1.0", Environment: "development"},
	}
}

// Validate enforces the invariants configuration loading promises the rest
// of the pipeline: every cap and bound must be positive. A violation is a
// ConfigError, fatal at init — never silently clamped.
func (c Config) Validate() error {
	type check struct {
		name string
		val  int
	}
	checks := []check{
		{"budget.context_history_token_cap", c.Budget.HistoryTokenCap},
		{"budget.context_summary_token_cap", c.Budget.SummaryTokenCap},
		{"budget.context_salience_token_cap", c.Budget.SalienceTokenCap},
		{"budget.web_context_max_tokens", c.Budget.WebContextMaxTok},
		{"budget.context_max_recent_turns", c.Budget.MaxRecentTurns},
		{"retrieval.rag_top_k", c.Retrieval.TopK},
		{"retrieval.retrieval_min_docs", c.Retrieval.MinDocs},
		{"web.web_results_max", c.Web.ResultsMax},
		{"planner.critic_max_retries", c.Planner.CriticMaxRetries + 1},
		{"router.router_faq_max_tokens", c.Router.FAQMaxTokens},
		{"router.router_research_max_tokens", c.Router.ResearchMaxTokens},
		{"router.router_factual_lookup_max_tokens", c.Router.FactualLookupMaxTokens},
		{"router.router_conversational_max_tokens", c.Router.ConversationalMaxTokens},
		{"rerank.rrf_k_constant", c.Rerank.RRFKConstant},
		{"decomposition.decomposition_max_subqueries", c.Decomposition.MaxSubqueries},
	}
	for _, ch := range checks {
		if ch.val <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", orcerr.Config, ch.name, ch.val)
		}
	}
	if c.Planner.ConfidenceDualRetrieval < 0 || c.Planner.ConfidenceDualRetrieval > 1 {
		return fmt.Errorf("%w: planner.planner_confidence_dual_retrieval must be in [0,1]", orcerr.Config)
	}
	if c.Planner.CriticThreshold < 0 || c.Planner.CriticThreshold > 1 {
		return fmt.Errorf("%w: planner.critic_threshold must be in [0,1]", orcerr.Config)
	}
	if c.Decomposition.ComplexityThreshold < 0 || c.Decomposition.ComplexityThreshold > 1 {
		return fmt.Errorf("%w: decomposition.decomposition_complexity_threshold must be in [0,1]", orcerr.Config)
	}
	return nil
}

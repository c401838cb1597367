package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads config.yaml (if present), applies a .env overlay, then applies
// individual environment-variable overrides, and finally validates the
// result. Missing config.yaml is not an error — Default() is used as the
// base. Invalid values are a ConfigError, fatal at init.
func Load() (Config, error) {
	return LoadPath("config.yaml")
}

// LoadPath is Load with an explicit path, mainly for tests.
func LoadPath(path string) (Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	cfg := Default()

	if b, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.LogPath = getenv("LOG_PATH", cfg.LogPath)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.RequestTimeoutMS = getenvInt("REQUEST_TIMEOUT_MS", cfg.RequestTimeoutMS)

	cfg.Features.EnableCritic = getenvBool("ENABLE_CRITIC", cfg.Features.EnableCritic)
	cfg.Features.EnableIntentRouting = getenvBool("ENABLE_INTENT_ROUTING", cfg.Features.EnableIntentRouting)
	cfg.Features.EnableLazyRetrieval = getenvBool("ENABLE_LAZY_RETRIEVAL", cfg.Features.EnableLazyRetrieval)
	cfg.Features.EnableSemanticSummary = getenvBool("ENABLE_SEMANTIC_SUMMARY", cfg.Features.EnableSemanticSummary)
	cfg.Features.EnableSemanticMemory = getenvBool("ENABLE_SEMANTIC_MEMORY", cfg.Features.EnableSemanticMemory)
	cfg.Features.EnableQueryDecomposition = getenvBool("ENABLE_QUERY_DECOMPOSITION", cfg.Features.EnableQueryDecomposition)
	cfg.Features.EnableWebReranking = getenvBool("ENABLE_WEB_RERANKING", cfg.Features.EnableWebReranking)
	cfg.Features.EnableSemanticBoost = getenvBool("ENABLE_SEMANTIC_BOOST", cfg.Features.EnableSemanticBoost)
	cfg.Features.EnableResultDiversify = getenvBool("ENABLE_RESULT_DIVERSIFY", cfg.Features.EnableResultDiversify)

	cfg.Budget.HistoryTokenCap = getenvInt("CONTEXT_HISTORY_TOKEN_CAP", cfg.Budget.HistoryTokenCap)
	cfg.Budget.SummaryTokenCap = getenvInt("CONTEXT_SUMMARY_TOKEN_CAP", cfg.Budget.SummaryTokenCap)
	cfg.Budget.SalienceTokenCap = getenvInt("CONTEXT_SALIENCE_TOKEN_CAP", cfg.Budget.SalienceTokenCap)
	cfg.Budget.WebContextMaxTok = getenvInt("WEB_CONTEXT_MAX_TOKENS", cfg.Budget.WebContextMaxTok)
	cfg.Budget.KBContextMaxTok = getenvInt("KB_CONTEXT_MAX_TOKENS", cfg.Budget.KBContextMaxTok)
	cfg.Budget.MaxRecentTurns = getenvInt("CONTEXT_MAX_RECENT_TURNS", cfg.Budget.MaxRecentTurns)
	cfg.Budget.MaxSummaryItems = getenvInt("CONTEXT_MAX_SUMMARY_ITEMS", cfg.Budget.MaxSummaryItems)
	cfg.Budget.MaxSalienceItems = getenvInt("CONTEXT_MAX_SALIENCE_ITEMS", cfg.Budget.MaxSalienceItems)

	cfg.Retrieval.TopK = getenvInt("RAG_TOP_K", cfg.Retrieval.TopK)
	cfg.Retrieval.RerankerThreshold = getenvFloat("RERANKER_THRESHOLD", cfg.Retrieval.RerankerThreshold)
	cfg.Retrieval.MinDocs = getenvInt("RETRIEVAL_MIN_DOCS", cfg.Retrieval.MinDocs)
	cfg.Retrieval.FallbackRerankerThreshold = getenvFloat("RETRIEVAL_FALLBACK_RERANKER_THRESHOLD", cfg.Retrieval.FallbackRerankerThreshold)
	cfg.Retrieval.LazySummaryMaxChars = getenvInt("LAZY_SUMMARY_MAX_CHARS", cfg.Retrieval.LazySummaryMaxChars)
	cfg.Retrieval.LazyPrefetchCount = getenvInt("LAZY_PREFETCH_COUNT", cfg.Retrieval.LazyPrefetchCount)
	cfg.Retrieval.LazyLoadThreshold = getenvFloat("LAZY_LOAD_THRESHOLD", cfg.Retrieval.LazyLoadThreshold)
	cfg.Retrieval.VectorBackend = getenv("VECTOR_BACKEND", cfg.Retrieval.VectorBackend)
	cfg.Retrieval.VectorDSN = getenv("VECTOR_DSN", cfg.Retrieval.VectorDSN)
	cfg.Retrieval.VectorCollection = getenv("VECTOR_COLLECTION", cfg.Retrieval.VectorCollection)
	cfg.Retrieval.VectorDimensions = getenvInt("VECTOR_DIMENSIONS", cfg.Retrieval.VectorDimensions)

	cfg.Web.ResultsMax = getenvInt("WEB_RESULTS_MAX", cfg.Web.ResultsMax)
	cfg.Web.Mode = getenv("WEB_SEARCH_MODE", cfg.Web.Mode)
	cfg.Web.SearXNGURL = getenv("SEARXNG_URL", cfg.Web.SearXNGURL)
	cfg.Web.RequestsPerSecond = getenvFloat("WEB_REQUESTS_PER_SECOND", cfg.Web.RequestsPerSecond)
	cfg.Web.BurstSize = getenvInt("WEB_BURST_SIZE", cfg.Web.BurstSize)
	cfg.Web.FetchTimeoutMS = getenvInt("WEB_FETCH_TIMEOUT_MS", cfg.Web.FetchTimeoutMS)

	cfg.Planner.ConfidenceDualRetrieval = getenvFloat("PLANNER_CONFIDENCE_DUAL_RETRIEVAL", cfg.Planner.ConfidenceDualRetrieval)
	cfg.Planner.CriticMaxRetries = getenvInt("CRITIC_MAX_RETRIES", cfg.Planner.CriticMaxRetries)
	cfg.Planner.CriticThreshold = getenvFloat("CRITIC_THRESHOLD", cfg.Planner.CriticThreshold)

	cfg.Router.FAQMaxTokens = getenvInt("ROUTER_FAQ_MAX_TOKENS", cfg.Router.FAQMaxTokens)
	cfg.Router.ResearchMaxTokens = getenvInt("ROUTER_RESEARCH_MAX_TOKENS", cfg.Router.ResearchMaxTokens)
	cfg.Router.FactualLookupMaxTokens = getenvInt("ROUTER_FACTUAL_LOOKUP_MAX_TOKENS", cfg.Router.FactualLookupMaxTokens)
	cfg.Router.ConversationalMaxTokens = getenvInt("ROUTER_CONVERSATIONAL_MAX_TOKENS", cfg.Router.ConversationalMaxTokens)

	cfg.Rerank.RRFKConstant = getenvInt("RRF_K_CONSTANT", cfg.Rerank.RRFKConstant)
	cfg.Rerank.RerankingTopK = getenvInt("RERANKING_TOP_K", cfg.Rerank.RerankingTopK)
	cfg.Rerank.SemanticBoostWeight = getenvFloat("SEMANTIC_BOOST_WEIGHT", cfg.Rerank.SemanticBoostWeight)

	cfg.Decomposition.ComplexityThreshold = getenvFloat("DECOMPOSITION_COMPLEXITY_THRESHOLD", cfg.Decomposition.ComplexityThreshold)
	cfg.Decomposition.MaxSubqueries = getenvInt("DECOMPOSITION_MAX_SUBQUERIES", cfg.Decomposition.MaxSubqueries)

	cfg.Memory.RecallK = getenvInt("SEMANTIC_MEMORY_RECALL_K", cfg.Memory.RecallK)
	cfg.Memory.MinSimilarity = getenvFloat("SEMANTIC_MEMORY_MIN_SIMILARITY", cfg.Memory.MinSimilarity)
	cfg.Memory.PruneAgeDays = getenvInt("SEMANTIC_MEMORY_PRUNE_AGE_DAYS", cfg.Memory.PruneAgeDays)

	cfg.Obs.OTLP = getenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Obs.OTLP)
	cfg.Obs.ServiceVersion = getenv("OTEL_SERVICE_VERSION", cfg.Obs.ServiceVersion)
	cfg.Obs.Environment = getenv("DEPLOYMENT_ENVIRONMENT", cfg.Obs.Environment)

	cfg.LLM.Provider = getenv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.SmallModel = getenv("LLM_SMALL_MODEL", cfg.LLM.SmallModel)
	cfg.LLM.LargeModel = getenv("LLM_LARGE_MODEL", cfg.LLM.LargeModel)
	cfg.LLM.BaseURL = getenv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getenv("LLM_API_KEY", cfg.LLM.APIKey)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

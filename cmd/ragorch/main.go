// Command ragorch runs one orchestrated turn against the full
// retrieval-augmented pipeline: load configuration, wire every
// component (C1-C14), and drive the session orchestrator (C15) either
// to completion or streaming token-by-token to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"ragorch/internal/agent"
	"ragorch/internal/agent/memory"
	"ragorch/internal/config"
	"ragorch/internal/embedding"
	"ragorch/internal/llm"
	"ragorch/internal/llm/openai"
	"ragorch/internal/observability"
	"ragorch/internal/persistence/databases"
	"ragorch/internal/ragtypes"
	"ragorch/internal/retrieval"
	"ragorch/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	question := flag.String("q", "", "user question")
	sessionID := flag.String("session", "", "session id (defaults to a hash of the question)")
	userID := flag.String("user", "", "user id")
	stream := flag.Bool("stream", false, "stream tokens to stdout as they arrive")
	flag.Parse()
	if *question == "" {
		fmt.Fprintln(os.Stderr, "usage: ragorch -q \"...\"")
		os.Exit(2)
	}

	if err := run(cfg, *question, *sessionID, *userID, *stream); err != nil {
		log.Fatal().Err(err).Msg("ragorch")
	}
}

func run(cfg config.Config, question, sessionID, userID string, stream bool) error {
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)
	log.Info().Msg("ragorch starting")

	baseCtx := context.Background()
	if shutdown, err := observability.InitOTel(baseCtx, cfg.Obs); err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without tracing")
	} else {
		defer func() { _ = shutdown(context.Background()) }()
	}

	eng, err := buildEngine(baseCtx, cfg)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	ctx := baseCtx
	var cancel context.CancelFunc
	if cfg.RequestTimeoutMS > 0 {
		ctx, cancel = context.WithTimeout(baseCtx, time.Duration(cfg.RequestTimeoutMS)*time.Millisecond)
		defer cancel()
	}

	req := agent.RunRequest{
		SessionID: sessionID,
		UserID:    userID,
		Messages:  []ragtypes.Message{{Role: "user", Content: question}},
	}

	var resp *ragtypes.ChatResponse
	if stream {
		hooks := agent.Hooks{
			OnStatus: func(stage string) { log.Debug().Str("stage", stage).Msg("status") },
			OnToken:  func(delta string) { fmt.Print(delta) },
		}
		resp, _, err = eng.RunSessionStream(ctx, req, hooks)
		fmt.Println()
	} else {
		resp, _, err = eng.RunSession(ctx, req)
	}
	if err != nil {
		return err
	}

	if !stream {
		fmt.Println(resp.Answer)
	}
	for i, c := range resp.Citations {
		fmt.Printf("[%d] %s %s\n", i+1, c.Title, c.URL)
	}
	return nil
}

// buildEngine composes every capability adapter and pipeline component
// into a ready-to-run Engine: LLM client, embedder, retrieval backend,
// lazy loader, web search/assembler, and the C1-C14 components the
// session orchestrator drives.
func buildEngine(ctx context.Context, cfg config.Config) (*agent.Engine, error) {
	provider := openai.New(cfg.LLM)
	llmClient := llm.NewLLMClient(provider)

	embedder := embedding.NewHTTPEmbedder(cfg.Embedding)

	dbManager, err := databases.NewManager(ctx, cfg.Retrieval)
	if err != nil {
		return nil, fmt.Errorf("init databases: %w", err)
	}

	retrievalClient := retrieval.NewClient(dbManager, embedder, cfg.Retrieval, cfg.Rerank)
	estimator := llm.NewEstimator(cfg.TokenEstimator)

	var lazyMgr *retrieval.LazyManager
	if cfg.Features.EnableLazyRetrieval {
		lazyMgr = retrieval.NewLazyManager(retrievalClient, estimator, cfg.LLM.LargeModel, cfg.Retrieval.LazySummaryMaxChars)
	}

	var webAssembler retrieval.WebAssembler
	if cfg.Web.SearXNGURL != "" {
		searchClient := web.NewSearchClient(cfg.Web)
		webAssembler = web.NewAssemblerFromConfig(searchClient, estimator, cfg.LLM.LargeModel, cfg.Web, cfg.Budget)
	}

	dispatcher := retrieval.NewDispatcher(retrievalClient, lazyMgr, webAssembler, embedder, estimator, cfg.Retrieval, cfg.Budget, cfg.Planner, cfg.Rerank, cfg.Features, cfg.LLM.LargeModel)

	compactor := memory.NewCompactor(llmClient, memory.CompactConfig{
		RecentTurns:       cfg.Budget.MaxRecentTurns,
		MaxSummaryBullets: cfg.Budget.MaxSummaryItems,
		MaxSalienceNotes:  cfg.Budget.MaxSalienceItems,
		SummaryModel:      cfg.LLM.SmallModel,
	})

	var semanticStore *memory.SemanticStore
	if cfg.Features.EnableSemanticMemory {
		semanticStore = memory.NewSemanticStore(embedder, nil)
	}

	opts := []agent.Option{
		agent.WithConfig(cfg),
		agent.WithRouter(agent.NewRouter(llmClient, cfg.LLM, cfg.Router, cfg.Features.EnableIntentRouting)),
		agent.WithCompactor(compactor),
		agent.WithShortTermStore(memory.NewShortTermStore(cfg.Budget.MaxSummaryItems, cfg.Budget.MaxSalienceItems)),
		agent.WithSelector(memory.NewSelector(embedder, cfg.Features.EnableSemanticSummary)),
		agent.WithBudgeter(agent.NewBudgeter(estimator, cfg.Budget)),
		agent.WithPlanner(agent.NewPlanner(llmClient, cfg.LLM.LargeModel)),
		agent.WithDispatcher(dispatcher),
		agent.WithSynthesizer(agent.NewSynthesizer(provider, 3)),
		agent.WithEstimator(estimator),
	}
	if semanticStore != nil {
		opts = append(opts, agent.WithSemanticStore(semanticStore))
	}
	if cfg.Features.EnableQueryDecomposition {
		opts = append(opts, agent.WithDecomposer(agent.NewDecomposer(llmClient, cfg.LLM.LargeModel, cfg.Decomposition)))
	}
	if cfg.Features.EnableCritic {
		opts = append(opts, agent.WithCritic(agent.NewCritic(llmClient, cfg.LLM.LargeModel, cfg.Planner.CriticThreshold)))
	}

	return agent.NewEngine(opts...), nil
}

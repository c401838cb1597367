package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragorch/internal/agent/memory"
	"ragorch/internal/config"
	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
	"ragorch/internal/retrieval"
)

type stubRetrievalClient struct {
	refs []ragtypes.Reference
}

func (s *stubRetrievalClient) HybridSearch(ctx context.Context, req retrieval.HybridSearchRequest) ([]ragtypes.Reference, error) {
	return s.refs, nil
}
func (s *stubRetrievalClient) VectorSearch(ctx context.Context, req retrieval.VectorSearchRequest) ([]ragtypes.Reference, error) {
	return s.refs, nil
}
func (s *stubRetrievalClient) GetByID(ctx context.Context, id string) (ragtypes.Reference, error) {
	for _, r := range s.refs {
		if r.ID == id {
			return r, nil
		}
	}
	return ragtypes.Reference{}, nil
}

func testEstimator() *llm.Estimator {
	return llm.NewEstimator(config.TokenEstimatorConfig{Strategy: "heuristic"})
}

func buildTestEngine(t *testing.T, refs []ragtypes.Reference, provider llm.Provider) (*Engine, config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.Retrieval.MinDocs = 1

	estimator := testEstimator()
	client := &stubRetrievalClient{refs: refs}
	dispatcher := retrieval.NewDispatcher(client, nil, nil, nil, estimator, cfg.Retrieval, cfg.Budget, cfg.Planner, cfg.Rerank, cfg.Features, cfg.LLM.LargeModel)
	synthesizer := NewSynthesizer(provider, 1)

	e := NewEngine(
		WithConfig(cfg),
		WithShortTermStore(memory.NewShortTermStore(20, 20)),
		WithBudgeter(NewBudgeter(estimator, cfg.Budget)),
		WithDispatcher(dispatcher),
		WithSynthesizer(synthesizer),
		WithEstimator(estimator),
	)
	return e, cfg
}

func TestEngine_RunSession_HappyPathGroundedAnswer(t *testing.T) {
	refs := []ragtypes.Reference{{ID: "doc-1", Content: "Paris is the capital of France."}}
	provider := &stubSynthProvider{resp: llm.Message{Content: "Paris [1]"}}
	e, _ := buildTestEngine(t, refs, provider)

	req := RunRequest{
		SessionID: "s1",
		Messages:  []ragtypes.Message{{Role: "user", Content: "What is the capital of France?"}},
	}
	resp, trace, err := e.RunSession(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Paris [1]", resp.Answer)
	assert.Len(t, resp.Citations, 1)
	assert.Equal(t, "s1", trace.SessionID)
	assert.Empty(t, trace.Err)
}

func TestEngine_RunSession_NoEvidenceAnswersLiteral(t *testing.T) {
	provider := &stubSynthProvider{err: assertNeverCalled{}}
	e, _ := buildTestEngine(t, nil, provider)

	req := RunRequest{
		SessionID: "s2",
		Messages:  []ragtypes.Message{{Role: "user", Content: "What is the capital of France?"}},
	}
	resp, _, err := e.RunSession(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ragtypes.NoEvidenceAnswer, resp.Answer)
	assert.Empty(t, resp.Citations)
}

func TestEngine_RunSession_SynthesisFailurePropagates(t *testing.T) {
	refs := []ragtypes.Reference{{ID: "doc-1", Content: "some fact"}}
	provider := &stubSynthProvider{err: assertNeverCalled{}, errsBefore: 99}
	e, _ := buildTestEngine(t, refs, provider)

	req := RunRequest{
		SessionID: "s3",
		Messages:  []ragtypes.Message{{Role: "user", Content: "tell me about it"}},
	}
	resp, trace, err := e.RunSession(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, resp)
	var synthErr *SynthesisError
	assert.ErrorAs(t, err, &synthErr)
	assert.NotEmpty(t, trace.Err)
}

func TestEngine_RunSessionStream_ForwardsTokens(t *testing.T) {
	refs := []ragtypes.Reference{{ID: "doc-1", Content: "some fact"}}
	provider := &stubSynthProvider{streamText: "streamed [1]"}
	e, _ := buildTestEngine(t, refs, provider)

	var got string
	var completed string
	hooks := Hooks{
		OnToken:    func(delta string) { got += delta },
		OnComplete: func(answer string) { completed = answer },
	}
	req := RunRequest{SessionID: "s4", Messages: []ragtypes.Message{{Role: "user", Content: "q"}}}
	resp, _, err := e.RunSessionStream(context.Background(), req, hooks)
	require.NoError(t, err)
	assert.Equal(t, "streamed [1]", got)
	assert.Equal(t, "streamed [1]", completed)
	assert.Equal(t, "streamed [1]", resp.Answer)
}

func TestEngine_RunSession_MissingDispatcherIsConfigError(t *testing.T) {
	e := NewEngine(WithSynthesizer(NewSynthesizer(&stubSynthProvider{}, 1)))
	req := RunRequest{Messages: []ragtypes.Message{{Role: "user", Content: "q"}}}
	_, trace, err := e.RunSession(context.Background(), req)
	require.Error(t, err)
	assert.NotEmpty(t, trace.Err)
}

// assertNeverCalled is an error value used to make a test fail loudly if a
// stub provider the test expects to stay idle is invoked anyway.
type assertNeverCalled struct{}

func (assertNeverCalled) Error() string { return "provider should not have been called" }

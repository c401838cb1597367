package llm

import (
	"context"
	"fmt"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"ragorch/internal/config"
	"ragorch/internal/orcerr"
)

// Tokenizer provides accurate token counting for a specific provider.
type Tokenizer interface {
	// CountTokens returns the number of tokens in the given text.
	// Returns an error if tokenization fails.
	CountTokens(ctx context.Context, text string) (int, error)

	// CountMessagesTokens returns token count for a conversation.
	// This accounts for message formatting overhead (roles, separators, etc.)
	CountMessagesTokens(ctx context.Context, msgs []Message) (int, error)
}

// TokenizableProvider is an optional interface that providers can implement
// to offer accurate token counting.
type TokenizableProvider interface {
	Provider
	Tokenizer() Tokenizer
}

// EstimateTokens provides a heuristic fallback (chars/4) when accurate
// tokenization is unavailable.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	// Simple heuristic: 4 characters per token on average.
	return len([]rune(s))/4 + 1
}

// EstimateTokensForMessages provides a rough token estimate for a slice
// of messages by summing EstimateTokens over their content.
func EstimateTokensForMessages(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	return total
}

// Estimator is the model-aware token counter used throughout context
// budgeting. With config.TokenEstimatorConfig.Strategy == "tiktoken" it
// counts with the real BPE encoding for the requested model, caching one
// encoder per model seen; any other strategy (including the zero value)
// uses the chars/4 heuristic. A tiktoken encoding lookup failure never
// surfaces to the caller — it falls back to the heuristic rather than
// block the pipeline on a tokenizer quirk.
type Estimator struct {
	strategy string
	mu       sync.Mutex
	cache    map[string]*tiktoken.Tiktoken
}

// NewEstimator builds an Estimator from the token estimator config.
func NewEstimator(cfg config.TokenEstimatorConfig) *Estimator {
	return &Estimator{strategy: cfg.Strategy, cache: make(map[string]*tiktoken.Tiktoken)}
}

// Estimate counts tokens for text under model's encoding. model must be
// non-empty; an empty model is a validation error since the caller almost
// always meant to pass one through from routing.
func (e *Estimator) Estimate(model, text string) (int, error) {
	if model == "" {
		return 0, fmt.Errorf("%w: model must not be empty", orcerr.Validation)
	}
	if text == "" {
		return 0, nil
	}
	if e.strategy != "tiktoken" {
		return EstimateTokens(text), nil
	}
	enc, err := e.encodingFor(model)
	if err != nil {
		return EstimateTokens(text), nil
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// EstimateMessages sums Estimate over msgs plus a small per-message
// overhead for role/separator framing, mirroring how chat APIs bill
// messages rather than raw text.
func (e *Estimator) EstimateMessages(model string, msgs []Message) (int, error) {
	total := 0
	for _, m := range msgs {
		n, err := e.Estimate(model, m.Content)
		if err != nil {
			return 0, err
		}
		total += n + 4
	}
	return total, nil
}

func (e *Estimator) encodingFor(model string) (*tiktoken.Tiktoken, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.cache[model]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	e.cache[model] = enc
	return enc, nil
}

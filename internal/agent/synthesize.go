package agent

import (
	"context"
	"fmt"
	"strings"

	"ragorch/internal/agent/prompts"
	"ragorch/internal/llm"
	"ragorch/internal/orcerr"
	"ragorch/internal/ragtypes"
)

// SynthesisRequest is C13's input: the question, the numbered KB/web
// context blocks already assembled and budgeted by C2/C10/C12, and any
// revision notes carried over from a prior critique.
type SynthesisRequest struct {
	Question      string
	ContextText    string
	WebContextText string
	RevisionNotes []string
	Model         string
	// MaxTokens bounds the synthesized answer's length, per C7's
	// per-intent routing decision. <= 0 leaves the provider's own
	// default output cap in place.
	MaxTokens int
}

// SynthesisError wraps orcerr.Synthesis for a terminal provider failure
// after Synthesizer's internal retries are exhausted — the one error the
// session orchestrator surfaces as a session failure.
type SynthesisError struct {
	err error
}

func (e *SynthesisError) Error() string { return e.err.Error() }
func (e *SynthesisError) Unwrap() error { return e.err }

// Synthesizer is C13: produces the final grounded answer from assembled
// context, either synchronously or streaming content deltas as they
// arrive. With no context and no web results at all it bypasses the LLM
// entirely and returns the literal no-evidence answer, since there is
// nothing to ground a call in.
type Synthesizer struct {
	provider   llm.Provider
	maxRetries int
}

// NewSynthesizer builds a Synthesizer. maxRetries <= 0 defaults to 1 (a
// single attempt, no retry).
func NewSynthesizer(provider llm.Provider, maxRetries int) *Synthesizer {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Synthesizer{provider: provider, maxRetries: maxRetries}
}

// Synthesize runs the synchronous path: one full completion, no partial
// output visible to the caller until it returns.
func (s *Synthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (string, error) {
	if bypass, ok := noEvidenceBypass(req); ok {
		return bypass, nil
	}

	msgs := buildSynthesisMessages(req)
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		resp, err := s.provider.Chat(ctx, msgs, nil, req.Model, req.MaxTokens)
		if err == nil {
			return resp.Content, nil
		}
		lastErr = err
	}
	return "", &SynthesisError{err: fmt.Errorf("%w: %v", orcerr.Synthesis, lastErr)}
}

// synthStreamHandler adapts an llm.StreamHandler's surface down to the
// single OnDelta callback synthesis actually drives; the other
// StreamHandler methods are no-ops since C13 never issues tool calls or
// expects image/thought-summary output.
type synthStreamHandler struct {
	onDelta func(string)
}

func (h *synthStreamHandler) OnDelta(content string)          { h.onDelta(content) }
func (h *synthStreamHandler) OnToolCall(tc llm.ToolCall)       {}
func (h *synthStreamHandler) OnImage(img llm.GeneratedImage)   {}
func (h *synthStreamHandler) OnThoughtSummary(summary string) {}

// SynthesizeStream runs the streaming path, forwarding content deltas to
// onDelta as they arrive. On the no-evidence bypass, onDelta is called
// once with the full literal answer so streaming and sync callers behave
// identically.
func (s *Synthesizer) SynthesizeStream(ctx context.Context, req SynthesisRequest, onDelta func(string)) (string, error) {
	if bypass, ok := noEvidenceBypass(req); ok {
		onDelta(bypass)
		return bypass, nil
	}

	msgs := buildSynthesisMessages(req)
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var full strings.Builder
		handler := &synthStreamHandler{onDelta: func(chunk string) {
			full.WriteString(chunk)
			onDelta(chunk)
		}}
		if err := s.provider.ChatStream(ctx, msgs, nil, req.Model, req.MaxTokens, handler); err == nil {
			return full.String(), nil
		} else {
			lastErr = err
		}
	}
	return "", &SynthesisError{err: fmt.Errorf("%w: %v", orcerr.Synthesis, lastErr)}
}

func buildSynthesisMessages(req SynthesisRequest) []llm.Message {
	numbered := req.ContextText
	if req.WebContextText != "" {
		numbered += req.WebContextText
	}
	return []llm.Message{
		{Role: "system", Content: prompts.SynthesisSystemPrompt},
		{Role: "user", Content: prompts.SynthesisUserPrompt(req.Question, numbered, req.RevisionNotes)},
	}
}

// noEvidenceBypass returns the literal no-evidence answer when both
// context sections are empty, sparing the provider a call with no
// grounding material to work from.
func noEvidenceBypass(req SynthesisRequest) (string, bool) {
	if strings.TrimSpace(req.ContextText) == "" && strings.TrimSpace(req.WebContextText) == "" {
		return ragtypes.NoEvidenceAnswer, true
	}
	return "", false
}

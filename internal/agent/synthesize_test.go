package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

type stubSynthProvider struct {
	resp       llm.Message
	err        error
	errsBefore int // fail this many Chat/ChatStream calls before succeeding
	calls      int
	streamErr  error
	streamText string
}

func (s *stubSynthProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, maxTokens int) (llm.Message, error) {
	s.calls++
	if s.calls <= s.errsBefore {
		return llm.Message{}, s.err
	}
	return s.resp, nil
}

func (s *stubSynthProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, maxTokens int, h llm.StreamHandler) error {
	s.calls++
	if s.calls <= s.errsBefore {
		return s.streamErr
	}
	h.OnDelta(s.streamText)
	return nil
}

func TestSynthesizer_NoEvidenceBypassesProvider(t *testing.T) {
	p := &stubSynthProvider{err: errors.New("should not be called")}
	s := NewSynthesizer(p, 1)
	out, err := s.Synthesize(context.Background(), SynthesisRequest{Question: "what?"})
	require.NoError(t, err)
	assert.Equal(t, ragtypes.NoEvidenceAnswer, out)
	assert.Equal(t, 0, p.calls)
}

func TestSynthesizer_ReturnsProviderAnswer(t *testing.T) {
	p := &stubSynthProvider{resp: llm.Message{Role: "assistant", Content: "answer [1]"}}
	s := NewSynthesizer(p, 1)
	out, err := s.Synthesize(context.Background(), SynthesisRequest{Question: "q", ContextText: "[1] fact"})
	require.NoError(t, err)
	assert.Equal(t, "answer [1]", out)
}

func TestSynthesizer_RetriesThenSucceeds(t *testing.T) {
	p := &stubSynthProvider{err: errors.New("transient"), errsBefore: 1, resp: llm.Message{Content: "ok"}}
	s := NewSynthesizer(p, 3)
	out, err := s.Synthesize(context.Background(), SynthesisRequest{Question: "q", ContextText: "[1] fact"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, p.calls)
}

func TestSynthesizer_ExhaustedRetriesReturnsSynthesisError(t *testing.T) {
	p := &stubSynthProvider{err: errors.New("permanent"), errsBefore: 5}
	s := NewSynthesizer(p, 2)
	_, err := s.Synthesize(context.Background(), SynthesisRequest{Question: "q", ContextText: "[1] fact"})
	require.Error(t, err)
	var synthErr *SynthesisError
	assert.ErrorAs(t, err, &synthErr)
	assert.Equal(t, 2, p.calls)
}

func TestSynthesizer_StreamForwardsDeltasAndReturnsFullText(t *testing.T) {
	p := &stubSynthProvider{streamText: "streamed answer"}
	s := NewSynthesizer(p, 1)
	var got string
	out, err := s.SynthesizeStream(context.Background(), SynthesisRequest{Question: "q", ContextText: "[1] fact"}, func(chunk string) { got += chunk })
	require.NoError(t, err)
	assert.Equal(t, "streamed answer", out)
	assert.Equal(t, "streamed answer", got)
}

func TestSynthesizer_StreamNoEvidenceCallsOnDeltaOnce(t *testing.T) {
	p := &stubSynthProvider{err: errors.New("should not be called")}
	s := NewSynthesizer(p, 1)
	calls := 0
	var got string
	out, err := s.SynthesizeStream(context.Background(), SynthesisRequest{Question: "q"}, func(chunk string) { calls++; got += chunk })
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ragtypes.NoEvidenceAnswer, out)
	assert.Equal(t, ragtypes.NoEvidenceAnswer, got)
}

package agent

import (
	"context"
	"strings"

	"ragorch/internal/agent/prompts"
	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

type critiqueOutput struct {
	Grounded bool     `json:"grounded"`
	Coverage float64  `json:"coverage"`
	Issues   []string `json:"issues"`
}

var critiqueSchema = llm.SchemaFor[critiqueOutput]()

// Critic is C14: judges a synthesized answer against the context it was
// built from. A judging failure degrades to accepting the draft rather
// than looping forever on a critic that can't run — the critic loop must
// always terminate.
type Critic struct {
	llm       llm.LLMClient
	model     string
	threshold float64
}

// NewCritic builds a Critic. threshold is the minimum coverage required
// for Action == accept alongside Grounded == true.
func NewCritic(client llm.LLMClient, model string, threshold float64) *Critic {
	return &Critic{llm: client, model: model, threshold: threshold}
}

// Critique evaluates draft against question/contextText. The literal
// no-evidence answer is always accepted without calling the LLM, since
// there is nothing to ground or cover.
func (c *Critic) Critique(ctx context.Context, question, contextText, draft string) (ragtypes.Critique, error) {
	if strings.TrimSpace(draft) == ragtypes.NoEvidenceAnswer {
		return ragtypes.Critique{Grounded: true, Coverage: 1, Action: ragtypes.CritiqueAccept}, nil
	}
	if c.llm == nil {
		return ragtypes.Critique{Grounded: true, Coverage: 1, Action: ragtypes.CritiqueAccept}, nil
	}

	user := "Question: " + question + "\n\nContext:\n" + contextText + "\n\nDraft answer:\n" + draft
	req := []llm.Message{
		{Role: "system", Content: prompts.CritiqueSystemPrompt},
		{Role: "user", Content: user},
	}

	var out critiqueOutput
	if err := c.llm.Complete(ctx, req, c.model, 0, critiqueSchema, &out); err != nil {
		return ragtypes.Critique{Grounded: true, Coverage: 1, Action: ragtypes.CritiqueAccept}, err
	}

	action := ragtypes.CritiqueRevise
	if out.Grounded && out.Coverage >= c.threshold {
		action = ragtypes.CritiqueAccept
	}
	return ragtypes.Critique{Grounded: out.Grounded, Coverage: out.Coverage, Issues: out.Issues, Action: action}, nil
}

package agent

import (
	"context"

	"ragorch/internal/agent/prompts"
	"ragorch/internal/llm"
	"ragorch/internal/ragtypes"
)

// planStepOutput mirrors ragtypes.PlanStep for schema derivation; the LLM
// is asked for this shape directly rather than ragtypes.PlanStep so the
// enum constraint on Action is visible in the generated schema.
type planStepOutput struct {
	Action string `json:"action" jsonschema:"enum=vector_search,enum=web_search,enum=both,enum=answer"`
	Query  string `json:"query"`
	K      int    `json:"k"`
}

type planOutput struct {
	Confidence float64          `json:"confidence"`
	Steps      []planStepOutput `json:"steps"`
}

var planSchema = llm.SchemaFor[planOutput]()

// Planner is C8: turns the user's turn plus assembled context into an
// ordered retrieval plan with a confidence score. A plan with no steps is
// invalid per the spec's invariant (at least one step); Plan repairs that
// case by supplying a single implicit answer step (keeping the LLM's
// confidence) so downstream components always receive a well-formed Plan.
type Planner struct {
	llm   llm.LLMClient
	model string
}

// NewPlanner builds a Planner.
func NewPlanner(client llm.LLMClient, model string) *Planner {
	return &Planner{llm: client, model: model}
}

// Plan asks the LLM for a plan given the user's question and the
// assembled context sections so far (history/summary/salience). query is
// the resolved user question; contextText is optional prior context to
// ground the plan's confidence estimate.
func (p *Planner) Plan(ctx context.Context, query, contextText string) (ragtypes.Plan, error) {
	if p.llm == nil {
		return fallbackPlan(query), nil
	}

	user := "Question: " + query
	if contextText != "" {
		user += "\n\nKnown context so far:\n" + contextText
	}
	req := []llm.Message{
		{Role: "system", Content: prompts.PlanSystemPrompt},
		{Role: "user", Content: user},
	}

	var out planOutput
	if err := p.llm.Complete(ctx, req, p.model, 0, planSchema, &out); err != nil {
		return fallbackPlan(query), err
	}

	plan := ragtypes.Plan{Confidence: out.Confidence}
	for _, s := range out.Steps {
		plan.Steps = append(plan.Steps, ragtypes.PlanStep{
			Action: ragtypes.PlanStepAction(s.Action),
			Query:  s.Query,
			K:      s.K,
		})
	}
	if len(plan.Steps) == 0 {
		plan.Steps = []ragtypes.PlanStep{{Action: ragtypes.ActionAnswer}}
	}
	return plan, nil
}

// fallbackPlan is used when planning is unavailable or fails: a single
// answer step at zero confidence, which both keeps the plan well-formed
// and triggers the dual-retrieval escalation downstream.
func fallbackPlan(query string) ragtypes.Plan {
	return ragtypes.Plan{
		Confidence: 0,
		Steps:      []ragtypes.PlanStep{{Action: ragtypes.ActionAnswer, Query: query}},
	}
}

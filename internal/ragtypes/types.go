// Package ragtypes holds the data model shared across every stage of the
// orchestration pipeline: messages, retrieval hits, plans, route metadata,
// context sections/budgets, critique results, activity steps, and the
// final session trace/response. It has no dependencies on any other
// internal package so every component (router, planner, retrieval, web,
// synthesizer, critic, orchestrator) can import it without a cycle.
package ragtypes

import "time"

// Message is a role-tagged conversation turn. The orchestrator never
// mutates a caller-supplied message list.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Reference is a retrieval hit. ID is unique within a single session's
// final reference list; citation indices are 1-based positions into that
// list.
type Reference struct {
	ID         string
	Title      string
	Content    string
	Score      float64
	PageNumber int
	URL        string
	Metadata   map[string]any
}

// LazyReference is a Reference whose full content is deferred behind
// LoadFull. Exactly one of Content (once loaded) or Summary is the active
// payload. LoadFull is idempotent: repeated calls return the same
// Reference and never grow SummaryTokens.
type LazyReference struct {
	Reference
	Summary       string
	SummaryTokens int
	IsLoaded      bool
	LoadFull      func() (Reference, error)
}

// WebResult is one hit from an external web search. Rank is 1-based
// source-order.
type WebResult struct {
	ID        string
	Title     string
	URL       string
	Snippet   string
	Body      string
	Rank      int
	Relevance float64
	FetchedAt time.Time
	Metadata  map[string]any
}

// PlanStepAction enumerates the closed set of actions a PlanStep may take.
type PlanStepAction string

const (
	ActionVectorSearch PlanStepAction = "vector_search"
	ActionWebSearch    PlanStepAction = "web_search"
	ActionBoth         PlanStepAction = "both"
	ActionAnswer       PlanStepAction = "answer"
)

// PlanStep is one ordered action in a Plan.
type PlanStep struct {
	Action PlanStepAction
	Query  string
	K      int
}

// Plan is the planner's (C8) structured output. Invariant: at least one
// step; a trailing answer step is optional.
type Plan struct {
	Confidence float64
	Steps      []PlanStep
}

// RetrieverStrategy enumerates the router's (C7) retrieval strategy
// recommendation.
type RetrieverStrategy string

const (
	StrategyVector     RetrieverStrategy = "vector"
	StrategyHybrid      RetrieverStrategy = "hybrid"
	StrategyHybridWeb   RetrieverStrategy = "hybrid+web"
)

// Intent enumerates the router's (C7) closed classification set.
type Intent string

const (
	IntentFAQ            Intent = "faq"
	IntentResearch        Intent = "research"
	IntentFactualLookup   Intent = "factual_lookup"
	IntentConversational  Intent = "conversational"
)

// RouteMetadata is C7's output.
type RouteMetadata struct {
	Intent            Intent
	Confidence        float64
	Reasoning         string
	Model             string
	RetrieverStrategy RetrieverStrategy
	MaxTokens         int
}

// ContextSections are the four independently-budgeted sections assembled
// ahead of synthesis.
type ContextSections struct {
	History  []Message
	Summary  []string
	Salience []string
	Web      string
}

// ContextBudget records the post-trim token counts per section. Invariant:
// each field is <= its configured cap.
type ContextBudget struct {
	HistoryTokens int
	SummaryTokens int
	SalienceTokens int
	WebTokens      int
	TotalTokens    int
}

// CritiqueAction is the closed outcome set of a Critique.
type CritiqueAction string

const (
	CritiqueAccept CritiqueAction = "accept"
	CritiqueRevise CritiqueAction = "revise"
)

// Critique is C14's output. Invariant: Action == accept implies Grounded
// and Coverage >= the configured threshold, or the caller has exhausted
// its retry budget (in which case Action is treated as terminal
// regardless of its literal value).
type Critique struct {
	Grounded bool
	Coverage float64
	Issues   []string
	Action   CritiqueAction
}

// ActivityStep records one executed sub-operation for the session trace
// and the streamed `activity` event.
type ActivityStep struct {
	Type   string
	Detail string
	TookMs int64
	Err    string
}

// SessionTrace aggregates everything produced during one session,
// regardless of success.
type SessionTrace struct {
	SessionID       string
	Route           RouteMetadata
	Plan            Plan
	Budget          ContextBudget
	Activity        []ActivityStep
	CritiqueHistory []Critique
	CriticError     bool
	Escalated       bool
	FallbackReason  string
	Err             string
}

// ChatResponseMetadata is the out-of-band diagnostic payload attached to a
// ChatResponse.
type ChatResponseMetadata struct {
	Plan          Plan
	ContextBudget ContextBudget
	CriticReport  *Critique
	Route         *RouteMetadata
	Evaluation    map[string]any
}

// ChatResponse is the final answer handed back to either external surface
// (sync or streaming).
type ChatResponse struct {
	Answer   string
	Citations []Reference
	Activity []ActivityStep
	Metadata ChatResponseMetadata
}

// NoEvidenceAnswer is the literal answer required when grounding evidence
// is absent.
const NoEvidenceAnswer = "I do not know."

// WebContext is C12's output: the assembled, token-budgeted web context
// plus the raw results it was built from. Defined here (not in the web
// package) so the retrieval dispatcher can depend on the contract without
// importing the web package that produces it.
type WebContext struct {
	Results     []WebResult
	ContextText string
	Trimmed     bool
	Tokens      int
}

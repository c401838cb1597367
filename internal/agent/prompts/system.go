// Package prompts holds the prompt templates used by the LLM-backed
// components of the orchestration pipeline.
package prompts

import "strings"

// SynthesisSystemPrompt is C13's fixed system instruction: answer only from
// the provided context, cite inline, and say "I do not know." on
// insufficient evidence.
const SynthesisSystemPrompt = `Respond using ONLY the provided context. Cite inline as [1], [2]... If evidence is insufficient, reply exactly 'I do not know.'`

// SynthesisUserPrompt builds C13's user turn: the question, a numbered
// context block, and optional revision notes carried over from a prior
// critique.
func SynthesisUserPrompt(question, numberedContext string, revisionNotes []string) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nContext:\n")
	b.WriteString(numberedContext)
	if len(revisionNotes) > 0 {
		b.WriteString("\n\nAddress the following issues from the previous attempt:\n")
		for _, n := range revisionNotes {
			b.WriteString("- ")
			b.WriteString(n)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// RouteSystemPrompt is C7's classifier instruction.
const RouteSystemPrompt = `Classify the user's question into exactly one intent: faq, research, factual_lookup, or conversational. Respond with the requested JSON schema only.`

// PlanSystemPrompt is C8's planning instruction.
const PlanSystemPrompt = `Produce a plan to answer the user's question: a confidence score in [0,1] and an ordered list of steps. Each step is one of vector_search, web_search, both, or answer. Respond with the requested JSON schema only.`

// DecomposeSystemPrompt is C9's decomposition instruction.
const DecomposeSystemPrompt = `Decompose the user's question into the smallest set of independent sub-questions needed to answer it fully. Each sub-query may declare dependencies on other sub-query ids by index. Respond with the requested JSON schema only.`

// CritiqueSystemPrompt is C14's evaluation instruction.
const CritiqueSystemPrompt = `Evaluate whether the draft answer is grounded in the provided evidence and how completely it covers the question. Respond with the requested JSON schema only.`

// CompactionSystemPrompt is C3's summarization instruction.
const CompactionSystemPrompt = `Summarize the older portion of this conversation into concise factual bullets, plus separate durable salience notes (facts, preferences, decisions) about the user. Respond with the requested JSON schema only.`

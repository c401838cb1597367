// Package orcerr defines the sentinel error kinds propagated across the
// orchestration pipeline. Components wrap one of these with fmt.Errorf's
// %w verb and callers discriminate with errors.Is; there is no custom
// error-struct hierarchy, matching the plain-wrapping idiom used
// throughout the rest of the module.
package orcerr

import "errors"

var (
	// Config marks an invalid configuration, fatal at init.
	Config = errors.New("config error")

	// Capability marks an external collaborator failure (LLM, retrieval,
	// web, or embedder). Retried per the calling component's contract;
	// surfaces as a soft fallback or propagates depending on the caller.
	Capability = errors.New("capability error")

	// Budget marks a section that could not be fit within its cap. No
	// component returns it: the budgeter drops whole history turns,
	// summary bullets and salience notes until a section fits (which can
	// leave it empty) and truncates only the web text.
	Budget = errors.New("budget error")

	// Validation marks malformed planner/critic/decomposer/compaction
	// LLM output that failed schema validation at the boundary.
	Validation = errors.New("validation error")

	// Synthesis marks a terminal LLM failure during answer synthesis
	// after internal retries are exhausted. Surfaces as a session failure.
	Synthesis = errors.New("synthesis error")

	// Timeout marks a deadline exceeded for a single call or a session.
	Timeout = errors.New("timeout error")
)

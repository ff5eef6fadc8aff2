// Package executor implements the central step pipeline: the only code
// path that may call into untrusted agent logic, and only after the
// policy engine and capability check have both cleared the step.
//
//	State → Policy → Capability → Agent.Propose → Verify → Transition → Audit
//
// The security invariant is structural, not advisory: Propose is called
// from exactly one place in this package, and only after Evaluate returns
// Allow (or RequireVerification) and every required capability is held.
package executor

import "github.com/Mindburn-Labs/stepguard/pkg/contracts"

// Agent is untrusted logic driving one execution's state machine — it may
// be backed by an LLM, an external tool, or arbitrary application code. The
// executor never trusts its output until the verifier has approved it.
type Agent interface {
	// Propose produces an output for the given input without side effects.
	// Must be pure from the runtime's perspective: read state and input,
	// return an output. State is advanced separately, by Transition, only
	// after verification passes.
	//
	// Guaranteed to be called only after policy evaluation returns Allow
	// (or RequireVerification) and the capability check passes.
	Propose(state contracts.AgentState, input contracts.AgentInput) (contracts.AgentOutput, error)

	// Transition applies output to state and returns the next state. Called
	// only after the verifier has approved output. The returned state's
	// Step must equal state.Step + 1.
	Transition(state contracts.AgentState, output contracts.AgentOutput) (contracts.AgentState, error)

	// RequiredCapabilities returns the capability names this step needs.
	// Checked against the execution's capability set before Propose is
	// called; any missing capability denies the step without invoking the
	// agent.
	RequiredCapabilities(state contracts.AgentState, input contracts.AgentInput) []string

	// DescribeAction returns (action, resource): the plain strings the
	// policy engine uses to populate PolicyContext. The agent defines
	// their semantics, e.g. ("read_patient_record", "patient/12345").
	DescribeAction(state contracts.AgentState, input contracts.AgentInput) (action, resource string)

	// IsTerminal reports whether state is a terminal state. When true after
	// a step completes, the executor finalizes the audit log and returns a
	// Complete result.
	IsTerminal(state contracts.AgentState) bool
}

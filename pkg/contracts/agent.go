// Package contracts defines the shared value model flowing through the
// stepguard execution pipeline: identifiers, agent state, inputs and
// outputs, policy types, verification types, and step-level results.
// No business logic lives here — only data definitions.
package contracts

import (
	"encoding/json"

	"github.com/google/uuid"
)

// AgentId is a stable, human-readable identifier for an agent type.
// Used across policy rules, audit logs, and capability grants.
type AgentId string

// ExecutionId uniquely identifies a single agent execution instance.
// Every call to Executor.Step operates within an execution identified by
// this UUID, which appears in every audit record.
type ExecutionId string

// NewExecutionId returns a fresh, unique ExecutionId (UUID v4).
func NewExecutionId() ExecutionId {
	return ExecutionId(uuid.New().String())
}

// AgentState is a snapshot of all state the agent carries between steps.
// The runtime treats Context as an opaque blob passed to Agent.Propose and
// received back from Agent.Transition; the executor reads Phase into the
// policy context and Step into the audit record, and leaves the
// termination check to Agent.IsTerminal.
type AgentState struct {
	AgentId     AgentId         `json:"agent_id"`
	ExecutionId ExecutionId     `json:"execution_id"`
	Phase       string          `json:"phase"`
	Context     json.RawMessage `json:"context"`
	Step        uint64          `json:"step"`
}

// AgentInput is an input event delivered to the agent at the start of a
// step. Kind is a discriminant for the agent to interpret; policy rules do
// not see it (they match on the action and resource the agent describes).
// Payload carries the full event body and is never inspected by the runtime.
type AgentInput struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// AgentOutput is what Agent.Propose produces before verification. After the
// verifier approves it, it is passed to Agent.Transition and then stored in
// the audit record.
type AgentOutput struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

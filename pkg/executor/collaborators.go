package executor

import "github.com/Mindburn-Labs/stepguard/pkg/contracts"

// PolicyEngine is the first and most critical gate in the pipeline.
// Implementations are trusted and must be deterministic; policy evaluation
// should be fast and side-effect free.
type PolicyEngine interface {
	Evaluate(ctx contracts.PolicyContext) (contracts.PolicyVerdict, error)
}

// AuditWriter is the immutable execution record. Every step that reaches a
// decision — whatever its verdict, including a capability-missing denial —
// produces exactly one StepRecord that must be persisted; a step that ends
// in an agent error or a verification failure writes none. A
// failed write is fatal: the executor surfaces AuditWriteFailed and the
// step result is discarded by the caller.
type AuditWriter interface {
	Write(record contracts.StepRecord) error
	Finalize() error
}

// Verifier is the last gate before state advances. Implementations are
// trusted and must not call agent logic.
type Verifier interface {
	Verify(output contracts.AgentOutput, schema contracts.OutputSchema) (contracts.VerificationReport, error)
}

// Package audit implements the hash-chain audit writer: the trusted
// subsystem that records every executor step as a tamper-evident,
// append-only log. Each event's hash binds the execution identity, its
// position in the chain, the previous event's hash, and the canonical
// bytes of its own record — so altering or reordering any past event
// invalidates every hash after it.
package audit

import (
	"time"

	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
)

// GenesisHash is the prev_hash value used for the first event in a chain:
// 64 ASCII zero characters, the same width as a SHA-256 hex digest.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Event is a single entry in an execution's audit chain.
type Event struct {
	Sequence    uint64                `json:"sequence"`
	ExecutionId contracts.ExecutionId `json:"execution_id"`
	Record      contracts.StepRecord  `json:"record"`
	PrevHash    string                `json:"prev_hash"`
	ThisHash    string                `json:"this_hash"`
}

// Log is the exported, read-only view of a complete audit chain for one
// execution.
type Log struct {
	ExecutionId  contracts.ExecutionId `json:"execution_id"`
	Events       []Event               `json:"events"`
	FinalizedAt  *time.Time            `json:"finalized_at,omitempty"`
	TerminalHash string                `json:"terminal_hash"`
}

package audit

import (
	"crypto/sha256"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
	"github.com/Mindburn-Labs/stepguard/pkg/stepguarderr"
)

// Writer is the interface the executor depends on. InMemoryWriter is the
// only implementation shipped here; hosts that need durable storage
// implement Writer themselves and still get VerifyChain for free since it
// operates on plain Event values.
type Writer interface {
	Write(record contracts.StepRecord) error
	Finalize() error
	VerifyIntegrity() bool
	ExportLog() Log
}

// InMemoryWriter is the hash-chain audit writer: an append-only, in-memory
// event log guarded by a single mutex. The lock is held only for the
// duration of appending one event — never across calls into the agent,
// policy engine, or verifier, which all happen before Write is invoked.
type InMemoryWriter struct {
	mu sync.Mutex

	executionID contracts.ExecutionId
	events      []Event
	sequence    uint64
	lastHash    string
	finalizedAt *time.Time
	newHash     hasherFunc

	logger *slog.Logger
}

// Option configures an InMemoryWriter at construction time.
type Option func(*InMemoryWriter)

// WithSHA3 switches the event hash function from SHA-256 to SHA3-256
// (golang.org/x/crypto/sha3), for hosts that need to standardize on the
// SHA-3 family for compliance reasons. The chain format is otherwise
// identical, but this_hash values are not self-describing and VerifyChain
// always uses SHA-256, so a SHA3-256 chain is checked with the writer's own
// VerifyIntegrity.
func WithSHA3() Option {
	return func(w *InMemoryWriter) {
		w.newHash = sha3NewHash
	}
}

// NewInMemoryWriter returns a writer for a single execution, seeded with
// the genesis sentinel as its initial prev_hash.
func NewInMemoryWriter(executionID contracts.ExecutionId, opts ...Option) *InMemoryWriter {
	w := &InMemoryWriter{
		executionID: executionID,
		lastHash:    GenesisHash,
		newHash:     sha256.New,
		logger:      slog.Default().With("execution_id", string(executionID)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write appends record as the next event in the chain, computing its
// this_hash from the current lastHash and sequence, then advancing both.
func (w *InMemoryWriter) Write(record contracts.StepRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	thisHash, err := hashEvent(w.newHash, w.executionID, w.sequence, record, w.lastHash)
	if err != nil {
		return stepguarderr.AuditWriteFailed("compute event hash", err)
	}

	w.events = append(w.events, Event{
		Sequence:    w.sequence,
		ExecutionId: w.executionID,
		Record:      record,
		PrevHash:    w.lastHash,
		ThisHash:    thisHash,
	})

	w.sequence++
	w.lastHash = thisHash

	w.logger.Debug("audit event written", "sequence", w.sequence-1, "this_hash", thisHash)
	return nil
}

// Finalize marks the chain closed. It does not prevent further writes —
// the executor stops calling Write once the agent reaches a terminal
// state — it only records when that happened, for export.
func (w *InMemoryWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.finalizedAt = &now
	w.logger.Info("audit chain finalized", "events", len(w.events), "terminal_hash", w.lastHash)
	return nil
}

// VerifyIntegrity recomputes every event's hash from its fields and checks
// the prev_hash/sequence links, returning false on the first mismatch.
func (w *InMemoryWriter) VerifyIntegrity() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return verifyChainWith(w.newHash, w.executionID, w.events)
}

// ExportLog returns a snapshot of the complete chain.
func (w *InMemoryWriter) ExportLog() Log {
	w.mu.Lock()
	defer w.mu.Unlock()

	events := make([]Event, len(w.events))
	copy(events, w.events)

	terminalHash := ""
	if len(events) > 0 {
		terminalHash = events[len(events)-1].ThisHash
	}

	return Log{
		ExecutionId:  w.executionID,
		Events:       events,
		FinalizedAt:  w.finalizedAt,
		TerminalHash: terminalHash,
	}
}

package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/Mindburn-Labs/stepguard/pkg/canonicalize"
	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
)

// hasherFunc constructs a fresh hash.Hash. Swappable per writer instance
// (see WithSHA3); defaults to sha256.New.
type hasherFunc func() hash.Hash

// hashEvent computes this_hash for an event, binding the execution identity,
// its sequence number, the previous event's hash, and the canonical bytes
// of its record:
//
//	H(executionId || sequence_le_u64 || prevHash || canonical(record))
//
// Sequence is encoded little-endian; prevHash is fed as its ASCII hex bytes,
// not decoded. Changing any prior event — its content or its position —
// changes this_hash and every hash computed after it.
func hashEvent(newHash hasherFunc, executionID contracts.ExecutionId, sequence uint64, record contracts.StepRecord, prevHash string) (string, error) {
	canonicalRecord, err := canonicalize.JCS(record)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalize record: %w", err)
	}

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], sequence)

	h := newHash()
	h.Write([]byte(executionID))
	h.Write(seqBuf[:])
	h.Write([]byte(prevHash))
	h.Write(canonicalRecord)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChain reports whether every event's this_hash is correctly derived
// from its own fields and whether prev_hash/sequence links are unbroken
// from the genesis sentinel. An empty chain is trivially valid.
func VerifyChain(executionID contracts.ExecutionId, events []Event) bool {
	return verifyChainWith(sha256.New, executionID, events)
}

func verifyChainWith(newHash hasherFunc, executionID contracts.ExecutionId, events []Event) bool {
	expectedPrev := GenesisHash
	var expectedSeq uint64

	for _, ev := range events {
		if ev.Sequence != expectedSeq {
			return false
		}
		if ev.PrevHash != expectedPrev {
			return false
		}

		want, err := hashEvent(newHash, executionID, ev.Sequence, ev.Record, ev.PrevHash)
		if err != nil || want != ev.ThisHash {
			return false
		}

		expectedPrev = ev.ThisHash
		expectedSeq++
	}

	return true
}

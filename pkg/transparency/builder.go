// Package transparency defines the Builder contract the core service
// consumes: it submits LogLeaf values and receives map checkpoints
// back. Checkpoints are not signed: CheckpointNotice carries no
// signature. The core never builds proofs itself; this package
// also provides an in-memory reference Builder for tests and the
// single-node entrypoint, backed by a simple Merkle map of logs.
package transparency

import (
	"sync"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/store"
)

// CheckpointNotice is what a Builder hands back to the core once it
// has sealed a batch of leaves: the checkpoint's identity and value,
// and the participants it covers, in submission order.
type CheckpointNotice struct {
	ID           hashing.AnyHash
	Checkpoint   store.MapCheckpoint
	Participants []store.LogLeaf
}

// Builder accepts leaves from validated records and periodically
// produces map checkpoints covering them. The channel returned by
// Checkpoints is the only suspension point the core awaits on this
// collaborator.
type Builder interface {
	SubmitLeaf(leaf store.LogLeaf) error
	Checkpoints() <-chan CheckpointNotice
}

// MemoryBuilder is the reference Builder: it accumulates leaves in
// submission order (FIFO) and seals a checkpoint whenever Flush is
// called, or automatically once a batch reaches batchSize submissions.
type MemoryBuilder struct {
	alg       hashing.Alg
	batchSize int

	mu      sync.Mutex
	pending []store.LogLeaf
	seq     uint64

	notices chan CheckpointNotice
}

// NewMemoryBuilder creates a builder that auto-flushes every batchSize
// leaves; batchSize <= 0 disables auto-flush (Flush must be called
// explicitly, as tests typically do).
func NewMemoryBuilder(alg hashing.Alg, batchSize int) *MemoryBuilder {
	return &MemoryBuilder{
		alg:       alg,
		batchSize: batchSize,
		notices:   make(chan CheckpointNotice, 64),
	}
}

func (b *MemoryBuilder) SubmitLeaf(leaf store.LogLeaf) error {
	b.mu.Lock()
	b.pending = append(b.pending, leaf)
	shouldFlush := b.batchSize > 0 && len(b.pending) >= b.batchSize
	b.mu.Unlock()
	if shouldFlush {
		return b.Flush()
	}
	return nil
}

func (b *MemoryBuilder) Checkpoints() <-chan CheckpointNotice {
	return b.notices
}

// Flush seals whatever leaves are currently pending into one
// checkpoint. It is a no-op if nothing is pending.
func (b *MemoryBuilder) Flush() error {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	participants := make([]store.LogLeaf, len(b.pending))
	copy(participants, b.pending)
	b.pending = b.pending[:0]
	b.seq++
	seq := b.seq
	b.mu.Unlock()

	mapRoot, logRoot, err := computeRoots(b.alg, participants)
	if err != nil {
		return err
	}
	checkpoint := store.MapCheckpoint{
		LogRoot:   logRoot,
		MapRoot:   mapRoot,
		LogLength: seq,
	}
	id, err := hashing.Sum(b.alg, append([]byte("checkpoint:"), mapRoot.Bytes...))
	if err != nil {
		return err
	}
	b.notices <- CheckpointNotice{ID: id, Checkpoint: checkpoint, Participants: participants}
	return nil
}

// Package store defines the DataStore contract: storage of
// pending/validated/rejected records, checkpoints, and content-missing
// sets, plus the in-memory reference implementation.
package store

import (
	"github.com/JAFLabs/bytecodealliance-registry/pkg/envelope"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
)

// Status is a record's position in its lifecycle. Transitions are
// monotone: Pending is left exactly once.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRejected  Status = "rejected"
	StatusValidated Status = "validated"
	StatusPublished Status = "published"
)

// RecordInfo is what a store returns for a single record: its current
// status, its envelope, and — once published — the checkpoint that
// covers it.
type RecordInfo struct {
	Status         Status
	Envelope       *envelope.Envelope
	RejectReason   string
	CheckpointID   hashing.AnyHash
	HasCheckpoint  bool
	CheckpointIdx  int
}

// LogLeaf is the pair submitted to the transparency builder and
// persisted in checkpoints.
type LogLeaf struct {
	LogID    hashing.AnyHash
	RecordID hashing.AnyHash
}

// MapCheckpoint is produced externally by the transparency builder and
// consumed by the core; its own envelope (operator-signed) is carried
// alongside it by callers, not by this type.
type MapCheckpoint struct {
	LogRoot   hashing.AnyHash
	MapRoot   hashing.AnyHash
	LogLength uint64
}

// Checkpoint is a stored, identified MapCheckpoint together with the
// participants it covers, in the order they were installed.
type Checkpoint struct {
	ID           hashing.AnyHash
	Value        MapCheckpoint
	Participants []LogLeaf
}

// InitialLeaf is the recovery-time view of a single log: its id and the
// leaves it has accumulated, in validation order.
type InitialLeaf struct {
	LogID  hashing.AnyHash
	Leaves []LogLeaf
}

package store

import (
	"github.com/JAFLabs/bytecodealliance-registry/pkg/envelope"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
)

// DataStore is the storage contract every backend implements. Every
// method is fallible with a typed *Error (or the validator's
// *valerr.Error, surfaced verbatim); implementations must never let an
// error silently convert to success.
//
// Three backends satisfy this interface in this module: MemoryDataStore
// (the correctness reference), and the SQL-backed stores under
// pkg/store/sqlite and pkg/store/postgres.
type DataStore interface {
	StoreOperatorRecord(logID, recordID hashing.AnyHash, env *envelope.Envelope) error
	RejectOperatorRecord(logID, recordID hashing.AnyHash, reason string) error
	ValidateOperatorRecord(logID, recordID hashing.AnyHash) ([]hashing.AnyHash, error)

	StorePackageRecord(logID hashing.AnyHash, name string, recordID hashing.AnyHash, env *envelope.Envelope, missing map[string]hashing.AnyHash) error
	RejectPackageRecord(logID, recordID hashing.AnyHash, reason string) error
	ValidatePackageRecord(logID, recordID hashing.AnyHash) ([]hashing.AnyHash, error)

	IsContentMissing(logID, recordID hashing.AnyHash, digest hashing.AnyHash) (bool, error)
	SetContentPresent(logID, recordID hashing.AnyHash, digest hashing.AnyHash) (wasLastMissing bool, err error)

	StoreCheckpoint(checkpointID hashing.AnyHash, checkpoint MapCheckpoint, participants []LogLeaf) error
	GetLatestCheckpoint() (Checkpoint, error)

	GetOperatorRecord(logID, recordID hashing.AnyHash) (RecordInfo, error)
	GetPackageRecord(logID, recordID hashing.AnyHash) (RecordInfo, error)

	GetOperatorRecords(logID hashing.AnyHash, root hashing.AnyHash, since *hashing.AnyHash, limit int) ([]*envelope.Envelope, error)
	GetPackageRecords(logID hashing.AnyHash, root hashing.AnyHash, since *hashing.AnyHash, limit int) ([]*envelope.Envelope, error)

	GetInitialLeaves() ([]InitialLeaf, error)

	// GetNames enumerates all package names known to this store.
	GetNames() ([]string, error)
}

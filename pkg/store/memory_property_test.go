//go:build property
// +build property

package store

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/envelope"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/operator"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
)

// TestCheckpointParticipantFetchContainsRecord checks the checkpoint
// invariant: for every installed checkpoint c and every participant
// record r, get_operator_records(log_id, c.ID, nil, unbounded) contains
// r.
func TestCheckpointParticipantFetchContainsRecord(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("every checkpoint participant appears in its own fetch window", prop.ForAll(
		func(seed byte, n int) bool {
			root := seededSigner(seed)
			ds, err := NewMemoryDataStore(hashing.Sha256, signing.Ed25519Verifier{})
			if err != nil {
				return false
			}
			logID, err := hashing.OperatorLogID(hashing.Sha256)
			if err != nil {
				return false
			}

			genesisBody, err := operator.NewBody(nil, time.Unix(1000, 0), 1, []operator.Entry{
				operator.Init{HashAlg: hashing.Sha256, Key: root.PublicKey()},
			})
			if err != nil {
				return false
			}
			genesis, err := envelope.New(genesisBody, hashing.Sha256, root)
			if err != nil {
				return false
			}
			recordID, err := envelope.RecordID(genesis, hashing.Sha256)
			if err != nil {
				return false
			}
			if err := ds.StoreOperatorRecord(logID, recordID, genesis); err != nil {
				return false
			}
			if _, err := ds.ValidateOperatorRecord(logID, recordID); err != nil {
				return false
			}

			leaves := []LogLeaf{{LogID: logID, RecordID: recordID}}
			head := recordID

			for i := 0; i < n; i++ {
				body, err := operator.NewBody(&head, time.Unix(int64(1001+i), 0), 1, []operator.Entry{
					operator.GrantFlat{Key: root.PublicKey(), Permissions: []operator.Permission{operator.PermissionCommit}},
				})
				if err != nil {
					return false
				}
				env, err := envelope.New(body, hashing.Sha256, root)
				if err != nil {
					return false
				}
				recID, err := envelope.RecordID(env, hashing.Sha256)
				if err != nil {
					return false
				}
				if err := ds.StoreOperatorRecord(logID, recID, env); err != nil {
					return false
				}
				if _, err := ds.ValidateOperatorRecord(logID, recID); err != nil {
					return false
				}
				leaves = append(leaves, LogLeaf{LogID: logID, RecordID: recID})
				head = recID
			}

			checkpointID, err := hashing.Sum(hashing.Sha256, []byte("checkpoint"))
			if err != nil {
				return false
			}
			if err := ds.StoreCheckpoint(checkpointID, MapCheckpoint{LogRoot: head, MapRoot: head, LogLength: uint64(len(leaves))}, leaves); err != nil {
				return false
			}

			fetched, err := ds.GetOperatorRecords(logID, checkpointID, nil, -1)
			if err != nil {
				return false
			}
			if len(fetched) != len(leaves) {
				return false
			}
			fetchedIDs := make(map[string]bool, len(fetched))
			for _, env := range fetched {
				id, err := envelope.RecordID(env, hashing.Sha256)
				if err != nil {
					return false
				}
				fetchedIDs[id.String()] = true
			}
			for _, leaf := range leaves {
				if !fetchedIDs[leaf.RecordID.String()] {
					return false
				}
			}
			return true
		},
		gen.UInt8Range(0, 255),
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}

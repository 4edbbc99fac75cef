//go:build property
// +build property

package pkglog

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/envelope"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/pkgversion"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
)

// buildReleaseChain signs a genesis Init followed by n distinct
// Release records off one root key, returning the envelopes in order.
func buildReleaseChain(t *testing.T, root signing.Signer, n int) []*envelope.Envelope {
	t.Helper()
	envs := make([]*envelope.Envelope, 0, n+1)

	genesis := sign(t, []Entry{Init{HashAlg: hashing.Sha256, Key: root.PublicKey()}}, nil, time.Unix(1000, 0), root)
	envs = append(envs, genesis)
	head, err := envelope.RecordID(genesis, hashing.Sha256)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < n; i++ {
		ver, err := pkgversion.Parse("1.0." + itoa(i))
		if err != nil {
			t.Fatal(err)
		}
		d, err := hashing.Sum(hashing.Sha256, []byte("content-"+itoa(i)))
		if err != nil {
			t.Fatal(err)
		}
		ts := time.Unix(int64(1001+i), 0)
		rec := sign(t, []Entry{Release{Version: ver, ContentDigest: d}}, &head, ts, root)
		envs = append(envs, rec)
		head, err = envelope.RecordID(rec, hashing.Sha256)
		if err != nil {
			t.Fatal(err)
		}
	}
	return envs
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

// TestReplayFromEmptySucceeds checks that replaying any valid record
// sequence through a fresh validator, in order, always succeeds.
func TestReplayFromEmptySucceeds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("replaying a valid record sequence from empty state succeeds", prop.ForAll(
		func(seed byte, n int) bool {
			root := seededSigner(seed)
			envs := buildReleaseChain(t, root, n)

			v := NewValidator(signing.Ed25519Verifier{})
			for _, env := range envs {
				if _, err := v.Validate(env); err != nil {
					return false
				}
			}
			return true
		},
		gen.UInt8Range(0, 255),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

// TestPrevChainFormsSingleLinkedList checks that every record's Prev
// points at the record immediately before it, and the genesis record
// has no Prev.
func TestPrevChainFormsSingleLinkedList(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("record.prev forms a singly-linked chain rooted at nil", prop.ForAll(
		func(seed byte, n int) bool {
			root := seededSigner(seed)
			envs := buildReleaseChain(t, root, n)

			bodies := make([]struct {
				prev *hashing.AnyHash
				id   hashing.AnyHash
			}, len(envs))
			for i, env := range envs {
				body, err := env.Body()
				if err != nil {
					return false
				}
				id, err := envelope.RecordID(env, hashing.Sha256)
				if err != nil {
					return false
				}
				bodies[i] = struct {
					prev *hashing.AnyHash
					id   hashing.AnyHash
				}{prev: body.Prev, id: id}
			}

			if bodies[0].prev != nil {
				return false
			}
			for i := 1; i < len(bodies); i++ {
				if bodies[i].prev == nil || !bodies[i].prev.Equal(bodies[i-1].id) {
					return false
				}
			}
			return true
		},
		gen.UInt8Range(0, 255),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

// TestReleaseMultisetEqualsLogEntries checks that after validating a
// release chain, a new Release for any version the chain introduced is
// rejected — i.e. the validator's bookkeeping remembers every version
// the log has released.
func TestReleaseMultisetEqualsLogEntries(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("every released version is rejected on re-release", prop.ForAll(
		func(seed byte, n int) bool {
			root := seededSigner(seed)
			envs := buildReleaseChain(t, root, n)

			v := NewValidator(signing.Ed25519Verifier{})
			for _, env := range envs {
				if _, err := v.Validate(env); err != nil {
					return false
				}
			}

			for i := 0; i < n; i++ {
				ver, err := pkgversion.Parse("1.0." + itoa(i))
				if err != nil {
					return false
				}
				d, err := hashing.Sum(hashing.Sha256, []byte("other-content"))
				if err != nil {
					return false
				}
				head := v.HeadID()
				dup := sign(t, []Entry{Release{Version: ver, ContentDigest: d}}, &head, time.Unix(int64(2000+i), 0), root)
				if _, err := v.Validate(dup); err == nil {
					return false
				}
			}
			return true
		},
		gen.UInt8Range(0, 255),
		gen.IntRange(0, 6),
	))

	properties.TestingRun(t)
}

// TestSnapshotRollbackStateEquivalent checks that validating a record
// then rolling back a prior snapshot restores a state that behaves
// identically to the pre-validate state: the same record validates
// again with the same resulting head.
func TestSnapshotRollbackStateEquivalent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("snapshot then validate then rollback is state-equivalent to never validating", prop.ForAll(
		func(seed byte) bool {
			root := seededSigner(seed)
			v := NewValidator(signing.Ed25519Verifier{})
			genesis := sign(t, []Entry{Init{HashAlg: hashing.Sha256, Key: root.PublicKey()}}, nil, time.Unix(1000, 0), root)
			if _, err := v.Validate(genesis); err != nil {
				return false
			}

			preHead := v.HeadID()
			snap := v.Snapshot()

			ver, err := pkgversion.Parse("1.0.0")
			if err != nil {
				return false
			}
			d, err := hashing.Sum(hashing.Sha256, []byte("payload"))
			if err != nil {
				return false
			}
			rec := sign(t, []Entry{Release{Version: ver, ContentDigest: d}}, &preHead, time.Unix(1001, 0), root)
			if _, err := v.Validate(rec); err != nil {
				return false
			}
			if v.HeadID().Equal(preHead) {
				return false
			}
			postHead := v.HeadID()

			v.Rollback(snap)
			if !v.HeadID().Equal(preHead) {
				return false
			}

			// The rolled-back state must accept the exact same record
			// again and land on the exact same resulting head.
			if _, err := v.Validate(rec); err != nil {
				return false
			}
			return v.HeadID().Equal(postHead)
		},
		gen.UInt8Range(0, 255),
	))

	properties.TestingRun(t)
}

//go:build property
// +build property

package envelope

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/recordlog"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
)

func propSeededSigner(b byte) *signing.Ed25519Signer {
	seed := make([]byte, 32)
	seed[0] = b
	return signing.NewEd25519SignerFromSeed(seed)
}

// TestSerializeDeserializeRoundTrip checks deserialize(serialize(env))
// == env and that RecordID is stable across the round trip.
func TestSerializeDeserializeRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("marshal/unmarshal round-trips an envelope and preserves its record id", prop.ForAll(
		func(seed byte, version uint32, unixSeconds int64, kindIsPackage bool) bool {
			signer := propSeededSigner(seed)
			kind := recordlog.KindOperator
			if kindIsPackage {
				kind = recordlog.KindPackage
			}
			body := recordlog.Body{
				Kind:      kind,
				Timestamp: time.Unix(unixSeconds, 0).UTC(),
				Version:   version,
				Entries:   []recordlog.EntryEnvelope{},
			}

			env, err := New(body, hashing.Sha256, signer)
			if err != nil {
				return false
			}
			id1, err := RecordID(env, hashing.Sha256)
			if err != nil {
				return false
			}

			data, err := Marshal(env)
			if err != nil {
				return false
			}
			round, err := Unmarshal(data)
			if err != nil {
				return false
			}

			if string(round.ContentBytes) != string(env.ContentBytes) {
				return false
			}
			if !round.KeyID.Equal(env.KeyID) {
				return false
			}
			if string(round.Signature.Bytes) != string(env.Signature.Bytes) {
				return false
			}

			id2, err := RecordID(round, hashing.Sha256)
			if err != nil {
				return false
			}
			return id1.Equal(id2)
		},
		gen.UInt8Range(0, 255),
		gen.UInt32Range(0, 1000),
		gen.Int64Range(0, 4000000000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

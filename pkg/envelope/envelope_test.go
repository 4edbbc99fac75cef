package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/recordlog"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
)

func testBody() recordlog.Body {
	entry, _ := recordlog.EncodeEntry("init", map[string]any{"hash_alg": "sha256"})
	return recordlog.Body{
		Kind:      recordlog.KindOperator,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Version:   1,
		Entries:   []recordlog.EntryEnvelope{entry},
	}
}

func TestNewAndVerifyRoundTrip(t *testing.T) {
	signer := signing.NewEd25519SignerFromSeed(make([]byte, 32))
	env, err := New(testBody(), hashing.Sha256, signer)
	require.NoError(t, err)

	pub, err := Verify(env, signing.Ed25519Verifier{}, func(hashing.AnyHash) (signing.PublicKey, bool) {
		return signer.PublicKey(), true
	})
	require.NoError(t, err)
	assert.Equal(t, signer.PublicKey().Bytes, pub.Bytes)
}

func TestVerifyRejectsUnknownKey(t *testing.T) {
	signer := signing.NewEd25519SignerFromSeed(make([]byte, 32))
	env, err := New(testBody(), hashing.Sha256, signer)
	require.NoError(t, err)

	_, err = Verify(env, signing.Ed25519Verifier{}, func(hashing.AnyHash) (signing.PublicKey, bool) {
		return signing.PublicKey{}, false
	})
	require.Error(t, err)
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	signer := signing.NewEd25519SignerFromSeed(make([]byte, 32))
	env, err := New(testBody(), hashing.Sha256, signer)
	require.NoError(t, err)

	env.ContentBytes = append(env.ContentBytes, ' ')
	_, err = Verify(env, signing.Ed25519Verifier{}, func(hashing.AnyHash) (signing.PublicKey, bool) {
		return signer.PublicKey(), true
	})
	require.Error(t, err)
}

func TestBodyRoundTrip(t *testing.T) {
	signer := signing.NewEd25519SignerFromSeed(make([]byte, 32))
	body := testBody()
	env, err := New(body, hashing.Sha256, signer)
	require.NoError(t, err)

	decoded, err := env.Body()
	require.NoError(t, err)
	assert.Equal(t, body.Kind, decoded.Kind)
	assert.Equal(t, body.Version, decoded.Version)
	assert.Len(t, decoded.Entries, 1)
	assert.Equal(t, "init", decoded.Entries[0].Type)
}

func TestBodyRejectsMalformedContent(t *testing.T) {
	env := &Envelope{ContentBytes: []byte(`{"kind":"operator"}`)}
	_, err := env.Body()
	require.Error(t, err)
}

func TestRecordIDDependsOnSigner(t *testing.T) {
	signerA := signing.NewEd25519SignerFromSeed(make([]byte, 32))
	seedB := make([]byte, 32)
	seedB[0] = 1
	signerB := signing.NewEd25519SignerFromSeed(seedB)

	body := testBody()
	envA, err := New(body, hashing.Sha256, signerA)
	require.NoError(t, err)
	envB, err := New(body, hashing.Sha256, signerB)
	require.NoError(t, err)

	idA, err := RecordID(envA, hashing.Sha256)
	require.NoError(t, err)
	idB, err := RecordID(envB, hashing.Sha256)
	require.NoError(t, err)
	assert.False(t, idA.Equal(idB))
}
